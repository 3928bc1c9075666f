package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/coinchat-client/internal/proto"
	"github.com/vovakirdan/coinchat-client/internal/transport"
)

type emitted struct {
	event   string
	payload any
}

// fakeTransport records emits and lets tests fire inbound events by hand.
type fakeTransport struct {
	mu        sync.Mutex
	listeners map[string][]transport.Listener
	emits     []emitted
	url       string
	opts      transport.Options
	closed    bool
	autoAck   bool
}

func (f *fakeTransport) Connect(url string, opts transport.Options) error {
	f.mu.Lock()
	f.url = url
	f.opts = opts
	ack := f.autoAck
	f.mu.Unlock()

	if ack {
		f.fire(proto.EventConnect, nil)
	}
	return nil
}

func (f *fakeTransport) On(event string, fn transport.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[string][]transport.Listener)
	}
	f.listeners[event] = append(f.listeners[event], fn)
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake transport closed")
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fire delivers an inbound event even after Close, like a late socket event.
func (f *fakeTransport) fire(event string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		raw = data
	}

	f.mu.Lock()
	fns := append([]transport.Listener(nil), f.listeners[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

// emitsOf returns emits matching any of events, in send order.
func (f *fakeTransport) emitsOf(events ...string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.emits {
		for _, want := range events {
			if e.event == want {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

type harness struct {
	client *Client
	clock  *clock.Mock

	mu         sync.Mutex
	transports []*fakeTransport
	autoAck    bool
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{clock: clock.NewMock(), autoAck: true}
	if opts.Username == "" {
		opts.Username = "bob"
	}
	if opts.Password == "" && opts.Session == "" {
		opts.Password = "hunter2"
	}
	opts.Clock = h.clock
	opts.NewTransport = func() transport.Transport {
		h.mu.Lock()
		defer h.mu.Unlock()
		ft := &fakeTransport{autoAck: h.autoAck}
		h.transports = append(h.transports, ft)
		return ft
	}

	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	h.client = client
	return h
}

func (h *harness) setAutoAck(v bool) {
	h.mu.Lock()
	h.autoAck = v
	h.mu.Unlock()
}

func (h *harness) last() *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.transports) == 0 {
		return nil
	}
	return h.transports[len(h.transports)-1]
}

func (h *harness) connect(t *testing.T) *fakeTransport {
	t.Helper()
	if !h.client.Connect(nil) {
		t.Fatal("connect returned false")
	}
	if st := h.client.State(); st != StateConnected {
		t.Fatalf("state = %v, want connected", st)
	}
	return h.last()
}

// tick advances the mock clock by one pump interval.
func (h *harness) tick() {
	h.clock.Add(h.client.interval)
}

func mustEmit(t *testing.T, ft *fakeTransport, n int, events ...string) []emitted {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := ft.emitsOf(events...); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d %v emits, got %d", n, events, len(ft.emitsOf(events...)))
	return nil
}
