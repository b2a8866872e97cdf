package conn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/transporttest"
)

func newManager(f *transporttest.Factory) *Manager {
	b := bus.New()
	return New(f.New, status.NewMachine(b), b, nil)
}

func TestConnectTwiceOpensOnce(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if f.Count() != 1 {
		t.Errorf("sockets created = %d, want 1", f.Count())
	}
	if n := f.Last().Connects(); n != 1 {
		t.Errorf("open attempts = %d, want 1", n)
	}
	if st := m.Status(); !st.Connected || st.Connecting {
		t.Errorf("status = %+v, want connected", st)
	}
}

func TestConnectWhileConnecting(t *testing.T) {
	f := &transporttest.Factory{Configure: func(s *transporttest.Socket) { s.Pending = true }}
	m := newManager(f)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := m.Status(); !st.Connecting || st.Connected {
		t.Fatalf("status = %+v, want connecting", st)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := f.Last().Connects(); n != 1 {
		t.Errorf("open attempts = %d, want 1", n)
	}

	f.Last().Accept()
	if st := m.Status(); !st.Connected || st.Connecting {
		t.Errorf("status = %+v, want connected", st)
	}
}

func TestConnectError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"transport message", errors.New("connection refused"), "connection refused"},
		{"fallback", errors.New(""), "connect_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &transporttest.Factory{Configure: func(s *transporttest.Socket) { s.ConnectErr = tt.err }}
			m := newManager(f)

			if err := m.Connect(context.Background()); err == nil {
				t.Fatal("Connect() expected error")
			}
			st := m.Status()
			if st.Connected || st.Connecting {
				t.Errorf("status = %+v, want disconnected", st)
			}
			if st.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", st.Error, tt.wantMsg)
			}
		})
	}
}

func TestConnectAfterErrorRetriesOnSameSocket(t *testing.T) {
	f := &transporttest.Factory{Configure: func(s *transporttest.Socket) { s.ConnectErr = errors.New("refused") }}
	m := newManager(f)
	_ = m.Connect(context.Background())

	f.Last().ConnectErr = nil
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.Count() != 1 {
		t.Errorf("sockets created = %d, want 1", f.Count())
	}
	st := m.Status()
	if !st.Connected {
		t.Errorf("status = %+v, want connected", st)
	}
	if st.Error != "" {
		t.Errorf("error = %q, want cleared on connect", st.Error)
	}
}

func TestOnConnectRunsOnEveryConnect(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	calls := 0
	m.OnConnect(func() { calls++ })

	_ = m.Connect(context.Background())
	f.Last().Drop(transport.DisconnectInfo{Reason: "io server disconnect"})
	_ = m.Connect(context.Background())

	if calls != 2 {
		t.Errorf("on-connect calls = %d, want 2", calls)
	}
}

func TestDropSetsError(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	_ = m.Connect(context.Background())

	f.Last().Drop(transport.DisconnectInfo{Reason: "transport error", Error: "read: connection reset"})

	st := m.Status()
	if st.Connected || st.Connecting {
		t.Errorf("status = %+v, want disconnected", st)
	}
	if st.Error != "read: connection reset" {
		t.Errorf("error = %q", st.Error)
	}
}

func TestCleanDropKeepsErrorEmpty(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	_ = m.Connect(context.Background())

	f.Last().Drop(transport.DisconnectInfo{Reason: "io server disconnect"})

	if st := m.Status(); st.Connected || st.Error != "" {
		t.Errorf("status = %+v, want disconnected without error", st)
	}
}

func TestServerError(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	_ = m.Connect(context.Background())

	f.Last().Deliver(transport.EventServerError, "room full")
	st := m.Status()
	if st.Error != "room full" {
		t.Errorf("error = %q, want room full", st.Error)
	}
	if !st.Connected {
		t.Error("server error changed connectivity")
	}

	f.Last().Deliver(transport.EventServerError, "")
	if st := m.Status(); st.Error != "server error" {
		t.Errorf("error = %q, want server error", st.Error)
	}
}

func TestDisconnectReleasesSocket(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)

	var got []string
	m.Handle(transport.EventMessage, func(p json.RawMessage) { got = append(got, string(p)) })

	_ = m.Connect(context.Background())
	first := f.Last()
	m.Disconnect()

	if !first.Closed() {
		t.Error("socket not closed")
	}
	if n := first.Listeners(transport.EventMessage); n != 0 {
		t.Errorf("listeners left on released socket = %d", n)
	}
	if st := m.Status(); st.Connected || st.Connecting {
		t.Errorf("status = %+v, want disconnected", st)
	}

	m.Disconnect()

	_ = m.Connect(context.Background())
	if f.Count() != 2 {
		t.Fatalf("sockets created = %d, want 2", f.Count())
	}
	second := f.Last()
	if n := second.Listeners(transport.EventMessage); n != 1 {
		t.Errorf("listeners on new socket = %d, want 1", n)
	}

	first.Deliver(transport.EventMessage, "stale")
	second.Deliver(transport.EventMessage, "fresh")
	if len(got) != 1 || got[0] != `"fresh"` {
		t.Errorf("delivered = %v, want exactly the fresh event", got)
	}
}

func TestDisconnectWithoutSocket(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	m.Disconnect()
	if f.Count() != 0 {
		t.Errorf("Disconnect() created a socket")
	}
}

func TestEmitWithoutSocket(t *testing.T) {
	m := newManager(&transporttest.Factory{})
	if err := m.Emit(transport.EventJoinRoom, map[string]string{}); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Emit() error = %v, want ErrNotConnected", err)
	}
}

func TestEmitWhileConnecting(t *testing.T) {
	f := &transporttest.Factory{Configure: func(s *transporttest.Socket) { s.Pending = true }}
	m := newManager(f)
	_ = m.Connect(context.Background())

	if err := m.Emit(transport.EventMessage, map[string]string{}); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Emit() error = %v, want ErrNotConnected", err)
	}
	if n := len(f.Last().Emitted()); n != 0 {
		t.Errorf("emitted = %d, want nothing queued", n)
	}
}

func TestHandleAfterSocketExists(t *testing.T) {
	f := &transporttest.Factory{}
	m := newManager(f)
	_ = m.Connect(context.Background())

	calls := 0
	m.Handle(transport.EventPeerLeft, func(json.RawMessage) { calls++ })
	f.Last().Deliver(transport.EventPeerLeft, map[string]string{"id": "1"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
