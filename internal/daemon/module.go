package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/store/pebblestore"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
	// Factory overrides the websocket transport, for tests.
	Factory transport.Factory
	// Logger overrides the file logger, for tests.
	Logger *zap.Logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideFactory,
			provideRemote,
			provideClient,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore opens the history backend named by the storage config field.
// It depends on the lock so no two daemons open the same files.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (store.KV, error) {
	switch p.Config.Storage {
	case store.BackendSQLite:
		dbPath := profile.DBPath(p.Profile)
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		result, err := db.Migrate()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if result.Changed {
			logger.Info("migrations applied", zap.Uint("version", result.Version))
		} else {
			logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		logger.Info("store initialized", zap.String("backend", "sqlite"), zap.String("path", dbPath))
		return db, nil
	case store.BackendPebble:
		dir := profile.PebbleDir(p.Profile)
		db, err := pebblestore.Open(dir)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("backend", "pebble"), zap.String("path", dir))
		return db, nil
	case store.BackendMemory:
		logger.Info("store initialized", zap.String("backend", "memory"))
		return store.NewMemory(), nil
	default:
		return nil, store.ValidateBackend(p.Config.Storage)
	}
}

func provideFactory(p Params, logger *zap.Logger) (transport.Factory, error) {
	if p.Factory != nil {
		return p.Factory, nil
	}
	u, err := ws.URL(p.Config.ServerURL, p.Config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("chat server url: %w", err)
	}
	return ws.NewFactory(ws.Options{
		URL:              u,
		HandshakeTimeout: p.Config.HandshakeTimeout.Duration,
		Logger:           logger.Named("ws"),
	}), nil
}

// provideRemote returns nil when api_base is unusable; image upload and room
// listing are then reported unavailable.
func provideRemote(p Params, logger *zap.Logger) *remote.Client {
	c, err := remote.New(remote.Options{BaseURL: p.Config.APIBase, Logger: logger.Named("remote")})
	if err != nil {
		logger.Warn("remote api disabled", zap.Error(err))
		return nil
	}
	return c
}

func provideClient(p Params, f transport.Factory, kv store.KV, rc *remote.Client, b *bus.Bus, logger *zap.Logger) *client.Client {
	opts := client.Options{
		Factory:      f,
		DefaultRoom:  p.Config.DefaultRoom,
		Pseudo:       p.Config.Pseudo,
		KV:           kv,
		PersistDelay: p.Config.PersistDebounce.Duration,
		Bus:          b,
		Logger:       logger,
	}
	if rc != nil {
		opts.Images = rc
	}
	return client.New(opts)
}

func provideChatService(p Params, c *client.Client, rc *remote.Client, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	var rooms api.RoomLister
	if rc != nil {
		rooms = rc
	}
	return api.NewChatService(p.Profile, c, rooms, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, kv store.KV, c *client.Client, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Persist changes from here on, then restore what is on disk.
			c.Start()
			c.LoadHistory()

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// Connect in the background; the rejoin hook joins the default room.
			go func() {
				timeout := p.Config.HandshakeTimeout.Duration + 5*time.Second
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := c.Connect(ctx); err != nil {
					logger.Error("auto-connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.Close()
			srv.Stop(ctx)
			if err := kv.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
