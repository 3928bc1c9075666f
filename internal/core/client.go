package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/coinchat-client/internal/proto"
	"github.com/vovakirdan/coinchat-client/internal/transport"
	"github.com/vovakirdan/coinchat-client/internal/transport/ws"
)

const (
	// DefaultEndpoint is the public chat service.
	DefaultEndpoint = "https://coinchat.org:443"
	// DefaultPumpInterval matches the service's outbound rate limit.
	DefaultPumpInterval = 600 * time.Millisecond
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Options configure a Client.
type Options struct {
	Username string
	Password string
	Session  string

	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// Insecure allows a plain ws:// endpoint, for local testing.
	Insecure bool
	// PumpInterval defaults to DefaultPumpInterval.
	PumpInterval time.Duration
	// Clock drives the pump; defaults to the wall clock.
	Clock clock.Clock
	// NewTransport builds a fresh transport for every Connect; defaults to
	// the WebSocket adapter.
	NewTransport func() transport.Transport
	Logger       *zerolog.Logger
}

// Status is a point-in-time snapshot of a client.
type Status struct {
	ID       string   `json:"id"`
	State    string   `json:"state"`
	Username string   `json:"username"`
	LoggedIn bool     `json:"logged_in"`
	Rooms    []string `json:"rooms"`
	Pending  int      `json:"pending"`
	Handlers int      `json:"handlers"`
}

// Client is a chat session: it owns the connection, the joined rooms, the
// throttled outbox and the inbound handler chain.
type Client struct {
	id           string
	creds        Credentials
	endpoint     string
	insecure     bool
	interval     time.Duration
	clock        clock.Clock
	newTransport func() transport.Transport
	log          zerolog.Logger

	handlers registry

	mu           sync.Mutex
	state        State
	closing      bool
	transport    transport.Transport
	rooms        *RoomSet
	outbox       Outbox
	loginPending bool
	onLoggedIn   func()
	loggedIn     bool
	pumpStop     chan struct{}
	pumpWG       *conc.WaitGroup
}

// NewClient validates credentials and builds a disconnected client.
func NewClient(opts Options) (*Client, error) {
	creds := Credentials{Username: opts.Username, Password: opts.Password, Session: opts.Session}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Client{
		id:           uuid.NewString(),
		creds:        creds,
		endpoint:     opts.Endpoint,
		insecure:     opts.Insecure,
		interval:     opts.PumpInterval,
		clock:        opts.Clock,
		newTransport: opts.NewTransport,
		rooms:        NewRoomSet(),
	}
	c.log = logger.With().Str("client_id", c.id).Str("user", creds.Username).Logger()

	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.interval <= 0 {
		c.interval = DefaultPumpInterval
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.newTransport == nil {
		c.newTransport = func() transport.Transport {
			return ws.New(logger)
		}
	}
	return c, nil
}

// ID identifies this client instance in logs and status output.
func (c *Client) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connecting and returns immediately. It returns false if a
// connection exists or is being established. onConnected runs once the
// transport acknowledges the connection.
func (c *Client) Connect(onConnected func()) bool {
	c.mu.Lock()
	if c.state != StateDisconnected || c.closing {
		c.mu.Unlock()
		return false
	}
	t := c.newTransport()
	c.transport = t
	c.state = StateConnecting
	c.mu.Unlock()

	t.On(proto.EventConnect, func(json.RawMessage) { c.handleConnect(t, onConnected) })
	t.On(proto.EventConnectError, func(payload json.RawMessage) { c.handleConnectError(t, payload) })
	t.On(proto.EventDisconnect, func(payload json.RawMessage) { c.handleDrop(t, payload) })

	c.log.Info().Str("endpoint", c.endpoint).Msg("connecting")
	if err := t.Connect(c.endpoint, transport.Options{Secure: !c.insecure}); err != nil {
		c.log.Error().Err(err).Str("endpoint", c.endpoint).Msg("connect failed")
		c.mu.Lock()
		if c.transport == t {
			c.transport = nil
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		_ = t.Close()
		return false
	}
	return true
}

// Disconnect stops the pump, leaves every joined room and closes the
// transport. It returns false if not connected. Nothing is emitted after it
// returns.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	if c.state != StateConnected || c.closing {
		c.mu.Unlock()
		return false
	}
	c.closing = true
	stopPump := c.detachPumpLocked()
	joined := c.rooms.List()
	c.mu.Unlock()

	stopPump()
	for _, room := range joined {
		c.Leave(room)
	}

	c.mu.Lock()
	t := c.transport
	c.resetSessionLocked()
	c.closing = false
	pending := c.outbox.Len()
	c.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close transport")
		}
	}
	c.log.Info().Int("pending", pending).Msg("disconnected")
	return true
}

// Login sends the stored credentials. At most one login may be in flight;
// onLoggedIn runs once when the service acknowledges it.
func (c *Client) Login(onLoggedIn func()) error {
	c.mu.Lock()
	if c.state != StateConnected || c.closing {
		c.mu.Unlock()
		return coreError(ErrCodeNotConnected, "login requires a connection", ErrNotConnected)
	}
	if c.loginPending {
		c.mu.Unlock()
		return coreError(ErrCodeLoginInFlight, "login already in flight", ErrLoginInFlight)
	}
	c.loginPending = true
	c.onLoggedIn = onLoggedIn
	c.mu.Unlock()

	if !c.Emit(proto.EventAccounts, c.loginPayload()) {
		c.mu.Lock()
		c.loginPending = false
		c.onLoggedIn = nil
		c.mu.Unlock()
		return coreError(ErrCodeNotConnected, "login request not sent", ErrNotConnected)
	}
	c.log.Debug().Msg("login sent")
	return nil
}

func (c *Client) loginPayload() proto.LoginData {
	if c.creds.Password != "" {
		return proto.LoginData{
			Action:   proto.LoginAction,
			Username: c.creds.Username,
			Password: c.creds.Password,
		}
	}
	return proto.LoginData{Action: proto.LoginAction, Session: c.creds.Session}
}

// Join requests membership in room. It returns false if the room is already
// joined or the name is empty. Call it once Connect has acknowledged: a room
// joined while disconnected is marked locally but never requested, and stays
// that way until Leave.
func (c *Client) Join(room string) bool {
	if room == "" {
		return false
	}
	c.mu.Lock()
	added := c.rooms.Join(room)
	c.mu.Unlock()
	if !added {
		return false
	}

	if !c.Emit(proto.EventJoinRoom, proto.JoinRoomData{Join: room}) {
		c.log.Warn().Str("room", room).Msg("join marked but not sent; call Leave and Join again once connected")
	}
	return true
}

// Leave quits room. Leaving is always allowed, even for rooms never joined.
func (c *Client) Leave(room string) {
	c.mu.Lock()
	c.rooms.Leave(room)
	c.mu.Unlock()

	if !c.Emit(proto.EventQuitRoom, proto.QuitRoomData{Room: room}) {
		c.log.Debug().Str("room", room).Msg("leave marked but not sent")
	}
}

// Rooms lists the joined rooms.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms.List()
}

// PushMessage queues a chat line in the default color.
func (c *Client) PushMessage(room, message string) bool {
	return c.PushChat(ChatItem{Room: room, Message: message})
}

// PushChat queues a chat line. It returns false if room or message is empty.
func (c *Client) PushChat(item ChatItem) bool {
	item, ok := normalizeChat(item)
	if !ok {
		return false
	}
	c.push(item)
	return true
}

// PushTip queues a tip.
func (c *Client) PushTip(room, user string, amount float64, message string) bool {
	return c.PushTipItem(TipItem{Room: room, User: user, Amount: amount, Message: message})
}

// PushTipItem queues a tip. It returns false without a room or user, or when
// amount is not a positive finite number.
func (c *Client) PushTipItem(item TipItem) bool {
	if !validTip(item) {
		return false
	}
	c.push(item)
	return true
}

func (c *Client) push(item OutboundItem) {
	c.mu.Lock()
	c.outbox.Push(item)
	c.mu.Unlock()
}

// Pending is the number of queued outbound items.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.Len()
}

// Emit sends an event right away, bypassing the outbox. It returns false if
// event is empty, the client is not connected or the transport rejects it.
func (c *Client) Emit(event string, payload any) bool {
	if event == "" {
		return false
	}
	c.mu.Lock()
	t, state := c.transport, c.state
	c.mu.Unlock()
	if state != StateConnected || t == nil {
		return false
	}

	if err := t.Emit(event, payload); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("emit failed")
		return false
	}
	return true
}

// Register appends a handler. Accepted shapes are Handler, HandlerFunc and
// func(*Message); anything else yields an error wrapping ErrInvalidHandler.
func (c *Client) Register(handler any) error {
	h, err := asHandler(handler)
	if err != nil {
		return err
	}
	c.handlers.add(h)
	return nil
}

// Handlers is the number of registered handlers.
func (c *Client) Handlers() int {
	return c.handlers.len()
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{
		ID:       c.id,
		State:    c.state.String(),
		Username: c.creds.Username,
		LoggedIn: c.loggedIn,
		Rooms:    c.rooms.List(),
		Pending:  c.outbox.Len(),
	}
	c.mu.Unlock()
	st.Handlers = c.handlers.len()
	return st
}

func (c *Client) handleConnect(t transport.Transport, onConnected func()) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.startPumpLocked()
	c.mu.Unlock()

	t.On(proto.EventChat, func(payload json.RawMessage) { c.handleChat(t, payload) })
	t.On(proto.EventLoggedIn, func(json.RawMessage) { c.handleLoggedIn(t) })

	c.log.Info().Dur("pump_interval", c.interval).Msg("connected")
	if onConnected != nil {
		onConnected()
	}
}

func (c *Client) handleConnectError(t transport.Transport, payload json.RawMessage) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = t.Close()
	c.log.Warn().Str("reason", reason(payload)).Msg("connection attempt failed")
}

// handleDrop tears the session down after the transport lost its connection.
// Rooms are marked left locally; the service already dropped us from them.
func (c *Client) handleDrop(t transport.Transport, payload json.RawMessage) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnected || c.closing {
		c.mu.Unlock()
		return
	}
	stopPump := c.detachPumpLocked()
	for _, room := range c.rooms.List() {
		c.rooms.Leave(room)
	}
	c.resetSessionLocked()
	c.mu.Unlock()

	stopPump()
	_ = t.Close()
	c.log.Warn().Str("reason", reason(payload)).Msg("connection lost")
}

func (c *Client) handleLoggedIn(t transport.Transport) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.loggedIn = true
	pending, cb := c.loginPending, c.onLoggedIn
	c.loginPending = false
	c.onLoggedIn = nil
	c.mu.Unlock()

	c.log.Info().Msg("logged in")
	if pending && cb != nil {
		cb()
	}
}

func (c *Client) handleChat(t transport.Transport, payload json.RawMessage) {
	c.mu.Lock()
	live := c.transport == t && c.state == StateConnected
	c.mu.Unlock()
	if !live {
		return
	}

	var ev proto.ChatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("decode chat event")
		return
	}

	msg, err := Classify(ev.Room, ev.User, ev.Message, c.creds.Username)
	if err != nil {
		c.log.Warn().Err(err).Str("room", ev.Room).Str("from", ev.User).Msg("unreadable tip delivered as chat")
	}
	if msg.IsTip {
		c.log.Info().Str("room", msg.Room).Str("from", msg.User).Float64("amount", msg.TipAmount).Msg("tip received")
	}

	c.handlers.dispatch(msg)
}

// startPumpLocked drains one outbox item per tick. Caller holds c.mu.
func (c *Client) startPumpLocked() {
	stop := make(chan struct{})
	ticker := c.clock.Ticker(c.interval)
	wg := new(conc.WaitGroup)
	wg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.pumpOnce()
			}
		}
	})
	c.pumpStop = stop
	c.pumpWG = wg
}

// detachPumpLocked hands back a func that stops the pump and waits for it.
// The func must be called without c.mu held.
func (c *Client) detachPumpLocked() func() {
	stop, wg := c.pumpStop, c.pumpWG
	c.pumpStop, c.pumpWG = nil, nil
	return func() {
		if stop == nil {
			return
		}
		close(stop)
		wg.Wait()
	}
}

func (c *Client) pumpOnce() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	item, ok := c.outbox.Pop()
	c.mu.Unlock()
	if !ok {
		return
	}

	if !c.Emit(item.Event(), item.Payload()) {
		c.log.Warn().Str("event", item.Event()).Msg("dropped outbound item")
	}
}

// resetSessionLocked returns connection-scoped state to its initial values.
// Queued items and registered handlers survive.
func (c *Client) resetSessionLocked() {
	c.transport = nil
	c.state = StateDisconnected
	c.loginPending = false
	c.onLoggedIn = nil
	c.loggedIn = false
}

func reason(payload json.RawMessage) string {
	var data proto.ErrorData
	if len(payload) == 0 || json.Unmarshal(payload, &data) != nil {
		return ""
	}
	return data.Msg
}
