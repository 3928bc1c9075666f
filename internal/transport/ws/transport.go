// Package ws implements transport.Transport over a WebSocket carrying JSON
// envelopes of the form {"event": name, "data": payload}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vovakirdan/coinchat-client/internal/proto"
	"github.com/vovakirdan/coinchat-client/internal/transport"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultSendBuffer  = 64
	defaultReadLimit   = 1 << 20
	defaultFlushWait   = 2 * time.Second
)

var (
	ErrNotConnected      = errors.New("transport not connected")
	ErrClosed            = errors.New("transport closed")
	ErrAlreadyConnecting = errors.New("transport already connecting")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrEmptyEvent        = errors.New("event name is required")
)

// Transport is a single-use WebSocket connection: once closed it cannot be
// reconnected; callers build a new one.
type Transport struct {
	log         *zerolog.Logger
	dialTimeout time.Duration
	flushWait   time.Duration
	dialOpts    *websocket.DialOptions

	mu        sync.RWMutex
	listeners map[string][]transport.Listener
	conn      *websocket.Conn
	started   bool
	closed    bool

	sendCh     chan proto.Envelope
	flush      chan struct{}
	writerDone chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         conc.WaitGroup
	done       chan struct{}
}

// Option customizes a Transport.
type Option func(*Transport)

// WithDialTimeout bounds the initial handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

// WithSendBuffer sets how many outbound envelopes may wait for the writer.
func WithSendBuffer(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.sendCh = make(chan proto.Envelope, n)
		}
	}
}

// WithFlushWait bounds how long Close waits for queued envelopes to be written.
func WithFlushWait(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.flushWait = d
		}
	}
}

// WithDialOptions passes options through to websocket.Dial.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(t *Transport) {
		t.dialOpts = opts
	}
}

// New builds an unconnected transport.
func New(logger *zerolog.Logger, opts ...Option) *Transport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		log:         logger,
		dialTimeout: defaultDialTimeout,
		flushWait:   defaultFlushWait,
		listeners:   make(map[string][]transport.Listener),
		sendCh:      make(chan proto.Envelope, defaultSendBuffer),
		flush:       make(chan struct{}),
		writerDone:  make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// On subscribes fn to a named event. Safe to call from inside a listener.
func (t *Transport) On(event string, fn transport.Listener) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners[event] = append(t.listeners[event], fn)
	t.mu.Unlock()
}

// Connect starts dialing in the background and returns immediately.
func (t *Transport) Connect(rawURL string, opts transport.Options) error {
	target, err := normalizeURL(rawURL, opts.Secure)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyConnecting
	}
	t.started = true
	t.mu.Unlock()

	t.wg.Go(func() { t.dial(target) })
	go func() {
		if r := t.wg.WaitAndRecover(); r != nil {
			t.log.Error().Str("panic", r.String()).Msg("ws transport goroutine panicked")
		}
		close(t.done)
	}()
	return nil
}

// Done is closed once every goroutine started by Connect has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Emit queues an event for the writer.
func (t *Transport) Emit(event string, payload any) error {
	if event == "" {
		return ErrEmptyEvent
	}

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = raw
	}

	t.mu.RLock()
	conn, closed := t.conn, t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	select {
	case t.sendCh <- proto.Envelope{Event: event, Data: data}:
		return nil
	case <-t.ctx.Done():
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. Envelopes already accepted by Emit are
// written first, bounded by the flush wait. Listeners are not invoked
// afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	var err error
	if conn != nil {
		close(t.flush)
		timer := time.NewTimer(t.flushWait)
		select {
		case <-t.writerDone:
		case <-timer.C:
			t.log.Warn().Int("queued", len(t.sendCh)).Msg("ws flush timed out")
		}
		timer.Stop()
		err = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	t.cancel()
	return err
}

func (t *Transport) dial(target string) {
	ctx, cancel := context.WithTimeout(t.ctx, t.dialTimeout)
	conn, _, err := websocket.Dial(ctx, target, t.dialOpts)
	cancel()
	if err != nil {
		t.log.Warn().Err(err).Str("url", target).Msg("ws dial failed")
		t.dispatch(proto.EventConnectError, errorPayload(err))
		return
	}
	conn.SetReadLimit(defaultReadLimit)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return
	}
	t.conn = conn
	t.mu.Unlock()

	// The writer runs before the connect ack so Close can always flush; the
	// reader waits until connect listeners have subscribed.
	t.wg.Go(func() { t.writeLoop(conn) })

	t.log.Debug().Str("url", target).Msg("ws connected")
	t.dispatch(proto.EventConnect, nil)

	t.wg.Go(func() { t.readLoop(conn) })
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer t.cancel()

	for {
		var env proto.Envelope
		if err := wsjson.Read(t.ctx, conn, &env); err != nil {
			if t.ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				t.log.Debug().Err(err).Msg("ws closed by peer")
			default:
				t.log.Warn().Err(err).Msg("ws read failed")
			}
			t.dispatch(proto.EventDisconnect, errorPayload(err))
			return
		}
		if env.Event == "" {
			t.log.Debug().Msg("dropping envelope without event name")
			continue
		}
		t.dispatch(env.Event, env.Data)
	}
}

func (t *Transport) writeLoop(conn *websocket.Conn) {
	defer close(t.writerDone)

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.flush:
			t.drain(conn)
			return
		case env := <-t.sendCh:
			if !t.write(conn, env) {
				return
			}
		}
	}
}

// drain writes whatever is still buffered once Close has been requested.
func (t *Transport) drain(conn *websocket.Conn) {
	for {
		select {
		case env := <-t.sendCh:
			if !t.write(conn, env) {
				return
			}
		default:
			return
		}
	}
}

func (t *Transport) write(conn *websocket.Conn, env proto.Envelope) bool {
	if err := wsjson.Write(t.ctx, conn, env); err != nil {
		if t.ctx.Err() != nil {
			return false
		}
		t.log.Warn().Err(err).Str("event", env.Event).Msg("ws write failed")
		// Closing makes the reader fail and report the disconnect.
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return false
	}
	return true
}

func (t *Transport) dispatch(event string, payload json.RawMessage) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return
	}
	fns := append([]transport.Listener(nil), t.listeners[event]...)
	t.mu.RUnlock()

	for _, fn := range fns {
		var pc panics.Catcher
		pc.Try(func() { fn(payload) })
		if r := pc.Recovered(); r != nil {
			t.log.Error().Str("event", event).Str("panic", r.String()).Msg("ws listener panicked")
		}
	}
}

func errorPayload(err error) json.RawMessage {
	raw, _ := json.Marshal(proto.ErrorData{Msg: err.Error()})
	return raw
}

func normalizeURL(raw string, secure bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		if secure {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.String(), nil
}
