package daemon

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/transporttest"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// testHome points the profile tree at a short temp dir; Unix socket paths
// are limited to about 104 chars on macOS.
func testHome(t *testing.T) {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "chatsync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(profile.HomeEnv, dir)
}

func newApp(t *testing.T, storage string, f *transporttest.Factory) *fx.App {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = storage
	cfg.PersistDebounce = config.Duration{Duration: 10 * time.Millisecond}
	logger, _ := zap.NewDevelopment()

	return fx.New(
		Module(Params{Profile: "test", Config: cfg, Factory: f.New, Logger: logger}),
		fx.NopLogger,
	)
}

func dial(t *testing.T) *api.ChatServiceClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+profile.SocketPath("test"),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return api.NewChatServiceClient(conn)
}

func waitState(t *testing.T, c *api.ChatServiceClient, ok func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var last map[string]any
	for time.Now().Before(deadline) {
		st, err := c.GetState(context.Background())
		if err == nil {
			last = st.AsMap()
			if ok(last) {
				return last
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("state never matched, last = %v", last)
	return nil
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	f := &transporttest.Factory{}
	app := newApp(t, "memory", f)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A second daemon on the same profile must be refused.
	if _, err := lock.Acquire(profile.Dir("test")); err == nil {
		t.Error("profile lock not held while running")
	} else {
		var held *lock.HeldError
		if !errors.As(err, &held) {
			t.Errorf("error = %v, want HeldError", err)
		}
	}

	c := dial(t)
	st := waitState(t, c, func(m map[string]any) bool { return m["connected"] == true })
	if st["profile"] != "test" || st["room"] != "general" {
		t.Errorf("state = %v", st)
	}

	// The daemon joined the default room on connect.
	emitted := f.Last().Emitted()
	if len(emitted) == 0 || emitted[0].Event != transport.EventJoinRoom {
		t.Errorf("first emit = %+v, want chat-join-room", emitted)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(profile.SocketPath("test")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket left after stop: %v", err)
	}
	l, err := lock.Acquire(profile.Dir("test"))
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = l.Release()
}

func TestHistorySurvivesRestart(t *testing.T) {
	for _, storage := range []string{"sqlite", "pebble"} {
		t.Run(storage, func(t *testing.T) {
			testHome(t)
			ctx := context.Background()

			f := &transporttest.Factory{}
			app := newApp(t, storage, f)
			if err := app.Start(ctx); err != nil {
				t.Fatal(err)
			}
			c := dial(t)
			waitState(t, c, func(m map[string]any) bool { return m["connected"] == true })

			f.Last().Deliver(transport.EventMessage, map[string]any{
				"content":  "persist me",
				"dateEmis": "2024-05-01T12:00:00Z",
				"roomName": "general",
				"category": "MESSAGE",
				"serverId": "srv",
				"pseudo":   "Alice",
			})
			if err := app.Stop(ctx); err != nil {
				t.Fatal(err)
			}

			app = newApp(t, storage, &transporttest.Factory{})
			if err := app.Start(ctx); err != nil {
				t.Fatal(err)
			}
			defer func() { _ = app.Stop(ctx) }()

			st := waitState(t, dial(t), func(m map[string]any) bool {
				msgs, _ := m["messages"].([]any)
				return len(msgs) == 1
			})
			msg := st["messages"].([]any)[0].(map[string]any)
			if msg["content"] != "persist me" || msg["author"] != "Alice" {
				t.Errorf("restored message = %v", msg)
			}
		})
	}
}

func TestJoinThroughDaemon(t *testing.T) {
	testHome(t)
	f := &transporttest.Factory{}
	app := newApp(t, "memory", f)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = app.Stop(ctx) }()

	c := dial(t)
	waitState(t, c, func(m map[string]any) bool { return m["connected"] == true })

	req, _ := structpb.NewStruct(map[string]any{"room": "random", "pseudo": "Bob"})
	if _, err := c.JoinRoom(ctx, req); err != nil {
		t.Fatal(err)
	}
	f.Last().Deliver(transport.EventJoinedRoom, map[string]any{
		"roomName": "random",
		"clients":  map[string]any{"a": map[string]any{"pseudo": "Bob"}},
	})

	st := waitState(t, c, func(m map[string]any) bool { return m["room"] == "random" })
	if clients, _ := st["clients"].(map[string]any); len(clients) != 1 {
		t.Errorf("clients = %v", st["clients"])
	}
}

func TestUnknownStorageFails(t *testing.T) {
	testHome(t)
	cfg := config.Default()
	cfg.Storage = "redis"
	app := fx.New(
		Module(Params{Profile: "test", Config: cfg, Factory: (&transporttest.Factory{}).New, Logger: zap.NewNop()}),
		fx.NopLogger,
	)
	if err := app.Err(); err == nil {
		t.Error("fx.New() expected error for unknown storage backend")
	}
}
