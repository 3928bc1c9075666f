package core

import (
	"math"

	"github.com/gammazero/deque"

	"github.com/vovakirdan/coinchat-client/internal/proto"
)

// OutboundItem is something waiting in the outbox for the pump.
type OutboundItem interface {
	// Event is the wire event the item is sent as.
	Event() string
	// Payload is the wire body.
	Payload() any
}

// ChatItem is a queued chat line.
type ChatItem struct {
	Room    string
	Message string
	Color   string
}

func (c ChatItem) Event() string { return proto.EventChat }

func (c ChatItem) Payload() any {
	return proto.ChatData{Room: c.Room, Message: c.Message, Color: c.Color}
}

// TipItem is a queued tip.
type TipItem struct {
	Room    string
	User    string
	Amount  float64
	Message string
}

func (t TipItem) Event() string { return proto.EventTip }

func (t TipItem) Payload() any {
	return proto.TipData{Room: t.Room, User: t.User, Tip: t.Amount, Message: t.Message}
}

// normalizeChat fills the default color and rejects empty rooms or messages.
func normalizeChat(item ChatItem) (ChatItem, bool) {
	if item.Room == "" || item.Message == "" {
		return item, false
	}
	if item.Color == "" {
		item.Color = proto.DefaultColor
	}
	return item, true
}

func validTip(item TipItem) bool {
	if item.Room == "" || item.User == "" {
		return false
	}
	if math.IsNaN(item.Amount) || math.IsInf(item.Amount, 0) || item.Amount <= 0 {
		return false
	}
	return true
}

// Outbox is a FIFO of pending outbound items. It is not safe for concurrent
// use; Client guards it with its own mutex.
type Outbox struct {
	items deque.Deque[OutboundItem]
}

// Push appends to the tail.
func (o *Outbox) Push(item OutboundItem) {
	o.items.PushBack(item)
}

// Pop removes the head. ok is false when the outbox is empty.
func (o *Outbox) Pop() (item OutboundItem, ok bool) {
	if o.items.Len() == 0 {
		return nil, false
	}
	return o.items.PopFront(), true
}

// Len is the number of pending items.
func (o *Outbox) Len() int {
	return o.items.Len()
}
