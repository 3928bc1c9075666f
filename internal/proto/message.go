package proto

import "encoding/json"

// Envelope frames every event on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	// Emitted by the transport itself.
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"

	// Inbound from the chat service.
	EventChat     = "chat"
	EventLoggedIn = "loggedin"

	// Outbound to the chat service.
	EventAccounts = "accounts"
	EventJoinRoom = "joinroom"
	EventQuitRoom = "quitroom"
	EventTip      = "tip"

	LoginAction  = "login"
	DefaultColor = "000"
)

// LoginData authenticates with either a password or a session token.
type LoginData struct {
	Action   string `json:"action"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Session  string `json:"session,omitempty"`
}

// JoinRoomData requests membership in a room.
type JoinRoomData struct {
	Join string `json:"join"`
}

// QuitRoomData leaves a room.
type QuitRoomData struct {
	Room string `json:"room"`
}

// ChatData is an outbound chat line.
type ChatData struct {
	Room    string `json:"room"`
	Message string `json:"message"`
	Color   string `json:"color"`
}

// TipData sends coins to a user in a room.
type TipData struct {
	Room    string  `json:"room"`
	User    string  `json:"user"`
	Tip     float64 `json:"tip"`
	Message string  `json:"message,omitempty"`
}

// ChatEvent is a chat line delivered by the service. Message may carry
// server-rendered markup.
type ChatEvent struct {
	Room    string `json:"room"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// ErrorData describes a transport-level failure.
type ErrorData struct {
	Msg string `json:"msg"`
}
