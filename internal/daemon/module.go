package daemon

import (
	"context"
	"errors"
	"net/url"
	"os"

	"github.com/reena96/messageai/internal/bus"
	"github.com/reena96/messageai/internal/config"
	"github.com/reena96/messageai/internal/lock"
	"github.com/reena96/messageai/internal/logging"
	"github.com/reena96/messageai/internal/netmon"
	"github.com/reena96/messageai/internal/outbox"
	"github.com/reena96/messageai/internal/remote"
	"github.com/reena96/messageai/internal/session"
	"github.com/reena96/messageai/internal/store"
	intsync "github.com/reena96/messageai/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ServerURL   string // optional override for testing; empty = use config
}

// Module returns the fx module for the sync daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideMonitor,
			provideRemote,
			provideQueue,
			provideSynchronizer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}
	if p.ServerURL != "" {
		cfg.ServerURL = p.ServerURL
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMonitor(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*netmon.ProbeMonitor, error) {
	addr := cfg.ProbeAddr
	if addr == "" {
		var err error
		addr, err = probeAddrFromURL(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
	}
	prober := &netmon.DialProber{Addr: addr}
	return netmon.NewProbeMonitor(prober, cfg.ProbeInterval(), b, logger), nil
}

// probeAddrFromURL derives a dialable host:port from the websocket endpoint.
func probeAddrFromURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	host := u.Host
	if host == "" {
		return "", errors.New("server_url has no host")
	}
	if u.Port() == "" {
		switch u.Scheme {
		case "wss", "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) *remote.Client {
	return remote.NewClient(cfg.ServerURL, remote.Options{}, logger)
}

func provideQueue(db *store.DB, logger *zap.Logger) (*outbox.Queue, error) {
	return outbox.NewQueue(db, logger)
}

func provideSynchronizer(db *store.DB, client *remote.Client, queue *outbox.Queue,
	monitor *netmon.ProbeMonitor, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Synchronizer {
	return intsync.New(db, client, queue, monitor, b, cfg, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, client *remote.Client,
	monitor *netmon.ProbeMonitor, s *intsync.Synchronizer, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Connect(ctx); err != nil {
				// Sends fail fast with the offline error until the monitor
				// sees the server again; reconnect on that transition.
				logger.Warn("initial connect failed", zap.Error(err))
				var unsub func()
				unsub = monitor.OnChange(func(reachable bool) {
					if !reachable {
						return
					}
					if err := client.Connect(context.Background()); err != nil {
						logger.Warn("reconnect failed", zap.Error(err))
						return
					}
					unsub()
				})
			}
			monitor.Start(context.Background())
			s.Start(context.Background())
			for _, chatID := range cfg.Chats {
				if _, err := s.Subscribe(chatID); err != nil {
					logger.Warn("subscribe chat failed",
						zap.String("chat_id", chatID), zap.Error(err))
				}
			}
			logger.Info("daemon started", zap.Int("chats", len(cfg.Chats)))
			return nil
		},
		OnStop: func(_ context.Context) error {
			s.Stop()
			monitor.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("error closing remote client", zap.Error(err))
			}
			if err := db.Close(); err != nil {
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
