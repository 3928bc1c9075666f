package ws

import (
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/coinchat-client/internal/proto"
	"github.com/vovakirdan/coinchat-client/internal/transport"
)

// startEchoServer answers "accounts" with "loggedin" and echoes every other event.
func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			var env proto.Envelope
			if err := wsjson.Read(ctx, conn, &env); err != nil {
				return
			}
			reply := env
			if env.Event == proto.EventAccounts {
				reply = proto.Envelope{Event: proto.EventLoggedIn}
			}
			if env.Event == "hangup" {
				conn.Close(websocket.StatusGoingAway, "bye")
				return
			}
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1)
}

func waitSignal(t *testing.T, ch <-chan json.RawMessage, what string) json.RawMessage {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func subscribe(tr *Transport, event string) <-chan json.RawMessage {
	ch := make(chan json.RawMessage, 8)
	tr.On(event, func(payload json.RawMessage) {
		ch <- payload
	})
	return ch
}

func TestTransportRoundTrip(t *testing.T) {
	ts := startEchoServer(t)

	tr := New(nil)
	t.Cleanup(func() { _ = tr.Close() })

	connected := subscribe(tr, proto.EventConnect)
	chats := subscribe(tr, proto.EventChat)
	loggedIn := subscribe(tr, proto.EventLoggedIn)

	if err := tr.Connect(wsURL(ts), transport.Options{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect ack")

	if err := tr.Emit(proto.EventChat, proto.ChatData{Room: "lobby", Message: "hi", Color: "000"}); err != nil {
		t.Fatalf("emit chat: %v", err)
	}
	payload := waitSignal(t, chats, "chat echo")

	var got proto.ChatData
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal echo: %v", err)
	}
	if got.Room != "lobby" || got.Message != "hi" || got.Color != "000" {
		t.Fatalf("unexpected echo payload: %+v", got)
	}

	if err := tr.Emit(proto.EventAccounts, proto.LoginData{Action: proto.LoginAction, Session: "s"}); err != nil {
		t.Fatalf("emit accounts: %v", err)
	}
	waitSignal(t, loggedIn, "loggedin")
}

func TestTransportConnectErrorIsDispatched(t *testing.T) {
	ts := httptest.NewServer(stdhttp.NotFoundHandler())
	target := wsURL(ts)
	ts.Close()

	tr := New(nil, WithDialTimeout(time.Second))
	t.Cleanup(func() { _ = tr.Close() })

	failed := subscribe(tr, proto.EventConnectError)
	if err := tr.Connect(target, transport.Options{}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var data proto.ErrorData
	if err := json.Unmarshal(waitSignal(t, failed, "connect_error"), &data); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if data.Msg == "" {
		t.Fatal("expected error message in payload")
	}
}

func TestTransportPeerCloseDispatchesDisconnect(t *testing.T) {
	ts := startEchoServer(t)

	tr := New(nil)
	t.Cleanup(func() { _ = tr.Close() })

	connected := subscribe(tr, proto.EventConnect)
	dropped := subscribe(tr, proto.EventDisconnect)

	if err := tr.Connect(wsURL(ts), transport.Options{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect ack")

	if err := tr.Emit("hangup", nil); err != nil {
		t.Fatalf("emit hangup: %v", err)
	}
	waitSignal(t, dropped, "disconnect")

	select {
	case <-tr.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("transport goroutines did not exit")
	}
}

func TestTransportEmitStates(t *testing.T) {
	tr := New(nil)

	if err := tr.Emit("", nil); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("expected ErrEmptyEvent, got %v", err)
	}
	if err := tr.Emit(proto.EventChat, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Emit(proto.EventChat, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := tr.Connect("ws://localhost:1", transport.Options{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on reconnect, got %v", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in     string
		secure bool
		want   string
		ok     bool
	}{
		{"https://coinchat.org:443", true, "wss://coinchat.org:443", true},
		{"https://coinchat.org:443", false, "wss://coinchat.org:443", true},
		{"http://localhost:8080/ws", true, "wss://localhost:8080/ws", true},
		{"ws://localhost:8080/ws", false, "ws://localhost:8080/ws", true},
		{"ftp://example.com", true, "", false},
		{"ws://", false, "", false},
	}
	for _, tc := range cases {
		got, err := normalizeURL(tc.in, tc.secure)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("normalizeURL(%q, %v) = %q, %v; want %q", tc.in, tc.secure, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("normalizeURL(%q) expected error, got %q", tc.in, got)
		}
	}
}

// startRecordingServer reports the name of every envelope it reads, in order.
func startRecordingServer(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()

	events := make(chan string, 64)
	ts := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		for {
			var env proto.Envelope
			if err := wsjson.Read(r.Context(), conn, &env); err != nil {
				return
			}
			events <- env.Event
		}
	}))
	t.Cleanup(ts.Close)
	return ts, events
}

func TestTransportCloseFlushesQueuedEnvelopes(t *testing.T) {
	for run := 0; run < 20; run++ {
		ts, events := startRecordingServer(t)

		tr := New(nil)
		connected := subscribe(tr, proto.EventConnect)
		if err := tr.Connect(wsURL(ts), transport.Options{}); err != nil {
			t.Fatalf("connect: %v", err)
		}
		waitSignal(t, connected, "connect ack")

		for _, room := range []string{"a", "b"} {
			if err := tr.Emit(proto.EventQuitRoom, proto.QuitRoomData{Room: room}); err != nil {
				t.Fatalf("emit quitroom %s: %v", room, err)
			}
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("run %d: close: %v", run, err)
		}

		for i := 0; i < 2; i++ {
			select {
			case ev := <-events:
				if ev != proto.EventQuitRoom {
					t.Fatalf("run %d: server got %q, want quitroom", run, ev)
				}
			case <-time.After(3 * time.Second):
				t.Fatalf("run %d: server received %d of 2 quitroom frames", run, i)
			}
		}
	}
}

func TestTransportListenerPanicKeepsConnection(t *testing.T) {
	ts := startEchoServer(t)

	tr := New(nil)
	t.Cleanup(func() { _ = tr.Close() })

	connected := subscribe(tr, proto.EventConnect)
	dropped := subscribe(tr, proto.EventDisconnect)
	tr.On(proto.EventChat, func(json.RawMessage) { panic("handler bug") })
	chats := subscribe(tr, proto.EventChat)
	loggedIn := subscribe(tr, proto.EventLoggedIn)

	if err := tr.Connect(wsURL(ts), transport.Options{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, connected, "connect ack")

	if err := tr.Emit(proto.EventChat, proto.ChatData{Room: "lobby", Message: "boom", Color: "000"}); err != nil {
		t.Fatalf("emit chat: %v", err)
	}
	waitSignal(t, chats, "chat after panicking listener")

	if err := tr.Emit(proto.EventAccounts, proto.LoginData{Action: proto.LoginAction, Session: "s"}); err != nil {
		t.Fatalf("emit accounts: %v", err)
	}
	waitSignal(t, loggedIn, "loggedin after panic")

	select {
	case <-dropped:
		t.Fatal("listener panic should not drop the connection")
	case <-tr.Done():
		t.Fatal("transport goroutines exited after listener panic")
	default:
	}
}
