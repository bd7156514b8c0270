package daemon

import (
	"context"

	"github.com/matheus3301/precinct/internal/api"
	"github.com/matheus3301/precinct/internal/archive"
	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/config"
	"github.com/matheus3301/precinct/internal/lock"
	"github.com/matheus3301/precinct/internal/logging"
	"github.com/matheus3301/precinct/internal/outbox"
	"github.com/matheus3301/precinct/internal/portal"
	"github.com/matheus3301/precinct/internal/selector"
	"github.com/matheus3301/precinct/internal/session"
	"github.com/matheus3301/precinct/internal/status"
	"github.com/matheus3301/precinct/internal/store"
	intsync "github.com/matheus3301/precinct/internal/sync"
	"github.com/matheus3301/precinct/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // empty = ~/.precinct/config.toml
	LogLevel    string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideArchive,
			provideWriter,
			provideStore,
			provideGuard,
			providePortal,
			provideLoader,
			provideDialer,
			provideSelector,
			provideAuth,
			provideSessionService,
			provideConversationService,
			provideMessageService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.NewWithLevel(session.LogPath(p.SessionName), p.SessionName, logging.ParseLevel(p.LogLevel))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine[status.Session] {
	return status.NewSession(b)
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

// provideArchive depends on the lock so only one daemon opens the database.
func provideArchive(p Params, _ *lock.Lock, logger *zap.Logger) (*archive.DB, error) {
	path := session.ArchivePath(p.SessionName)
	db, err := archive.Open(path)
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
	logger.Info("archive opened", zap.String("path", path))
	return db, nil
}

func provideWriter(db *archive.DB, logger *zap.Logger) *archive.Writer {
	return archive.NewWriter(db, logger.Named("archive"))
}

// provideStore feeds the archive writer directly rather than through the
// bus, which drops events for slow subscribers.
func provideStore(b *bus.Bus, w *archive.Writer, logger *zap.Logger) *store.Store {
	st := store.New(b, logger.Named("store"))
	st.SetSink(w)
	return st
}

func provideGuard(cfg *config.Config, st *store.Store, b *bus.Bus, logger *zap.Logger) *outbox.Guard {
	opts := outbox.DefaultOptions()
	opts.DeliveryTimeout = cfg.DeliveryTimeout.Duration
	if cfg.EchoTolerance.Duration > 0 {
		opts.EchoTolerance = cfg.EchoTolerance.Duration
	}
	return outbox.NewGuard(st, b, logger.Named("outbox"), opts)
}

func providePortal(cfg *config.Config, logger *zap.Logger) (*portal.Client, error) {
	return portal.New(portal.Options{
		BaseURL:     cfg.APIBaseURL,
		HistoryPath: cfg.HistoryPath,
	}, logger.Named("portal"))
}

func provideLoader(st *store.Store, g *outbox.Guard, pc *portal.Client, db *archive.DB, b *bus.Bus, logger *zap.Logger) *intsync.Loader {
	opts := intsync.Options{Archive: db}
	if pc.HistoryEnabled() {
		opts.Fetcher = pc
	}
	return intsync.NewLoader(st, g, b, logger.Named("sync"), opts)
}

func provideDialer(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *transport.Dialer {
	opts := transport.DefaultOptions()
	opts.Backoff = cfg.Backoff()
	opts.HeartbeatInterval = cfg.HeartbeatInterval.Duration
	return transport.NewDialer(opts, b, logger.Named("transport"))
}

func provideSelector(cfg *config.Config, d *transport.Dialer, st *store.Store, g *outbox.Guard, l *intsync.Loader, b *bus.Bus, logger *zap.Logger) *selector.Selector {
	return selector.New(cfg.StreamBase(), selector.TransportDialer(d), st, g, l, b, logger.Named("selector"))
}

func provideAuth(p Params, cfg *config.Config, pc *portal.Client, st *store.Store, l *intsync.Loader, sel *selector.Selector, db *archive.DB, m *status.Machine[status.Session], logger *zap.Logger) *Auth {
	return NewAuth(p.SessionName, pc, st, l, sel, db, m, cfg.Backoff(), logger.Named("auth"))
}

func provideSessionService(p Params, m *status.Machine[status.Session], auth *Auth, sel *selector.Selector, st *store.Store, g *outbox.Guard, w *archive.Writer, b *bus.Bus) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, auth, sel, st, g, w, b)
}

func provideConversationService(sel *selector.Selector, st *store.Store, db *archive.DB, logger *zap.Logger) *api.ConversationService {
	return api.NewConversationService(sel, st, db, logger.Named("api"))
}

func provideMessageService(sel *selector.Selector, db *archive.DB) *api.MessageService {
	return api.NewMessageService(sel, db)
}

type lifecycleDeps struct {
	fx.In

	Server   *Server
	Lock     *lock.Lock
	DB       *archive.DB
	Writer   *archive.Writer
	Guard    *outbox.Guard
	Loader   *intsync.Loader
	Selector *selector.Selector
	Auth     *Auth
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			d.Writer.Start()

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			d.Auth.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Auth.Stop()
			d.Selector.Close()
			d.Loader.Stop()
			d.Guard.Stop()
			d.Server.Stop(ctx)
			d.Writer.Stop()
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing archive", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
