package core

import "sort"

// RoomSet tracks which rooms the client believes it has joined. A room with
// a false flag has been left (or was left without ever being joined).
type RoomSet struct {
	rooms map[string]bool
}

// NewRoomSet constructs an empty set.
func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]bool)}
}

// Join marks the room joined. Returns false if it already was.
func (r *RoomSet) Join(room string) bool {
	if r.rooms[room] {
		return false
	}
	r.rooms[room] = true
	return true
}

// Leave marks the room not joined, creating the entry if needed.
func (r *RoomSet) Leave(room string) {
	r.rooms[room] = false
}

// Joined reports whether the room is currently joined.
func (r *RoomSet) Joined(room string) bool {
	return r.rooms[room]
}

// List returns the joined rooms in name order.
func (r *RoomSet) List() []string {
	out := make([]string, 0, len(r.rooms))
	for name, joined := range r.rooms {
		if joined {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
