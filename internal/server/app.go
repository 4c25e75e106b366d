package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/ytgate/internal/auth"
	"github.com/desertthunder/ytgate/internal/guard"
	"github.com/desertthunder/ytgate/internal/services"
	"github.com/desertthunder/ytgate/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// Options supplies the gateway's external dependencies. DB must already be migrated;
// nil OAuth and Upstream are built from the config.
type Options struct {
	DB       *sql.DB
	Dialect  shared.Dialect
	OAuth    OAuthFlow
	Upstream services.Upstream
	Clock    func() time.Time
}

// App is the assembled gateway.
type App struct {
	config   *shared.Config
	logger   *log.Logger
	db       *sql.DB
	router   *BasicRouter
	counter  guard.Counter
	sessions *auth.SessionStore
	metrics  *Metrics
	security *SecurityLog
}

// NewCounter builds the counter named by the guard backend.
func NewCounter(cfg shared.GuardConfig, db *sql.DB, dialect shared.Dialect, clock guard.Clock) guard.Counter {
	if cfg.Backend == "sql" {
		return guard.NewSQLCounter(db, dialect, clock)
	}
	return guard.NewMemoryCounter(cfg.Shards, clock)
}

// New wires the stores, guards and handlers described by cfg.
func New(cfg *shared.Config, logger *log.Logger, opts Options) (*App, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("%w: database is required", shared.ErrInvalidConfig)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	oauth := opts.OAuth
	if oauth == nil {
		client, err := auth.NewOAuthClient(cfg.OAuth)
		if err != nil {
			return nil, err
		}
		oauth = client
	}

	upstream := opts.Upstream
	if upstream == nil {
		httpClient := &http.Client{Timeout: cfg.Upstream.TimeoutDuration()}
		upstream = services.NewAPIService(cfg.Upstream.URL, httpClient,
			services.WithRateLimit(cfg.Upstream.RequestsPerSecond, cfg.Upstream.Burst))
	}

	a := &App{
		config:   cfg,
		logger:   logger,
		db:       opts.DB,
		counter:  NewCounter(cfg.Guard, opts.DB, opts.Dialect, clock),
		sessions: auth.NewSessionStore(opts.DB, opts.Dialect, cfg.Session.TTLDuration(), clock),
	}
	a.metrics = NewMetrics(ActiveSessionsFunc(a.sessions.CountActive))
	a.security = NewSecurityLog(logger, a.metrics)

	limiter := guard.NewRateLimiter(a.counter, "rl", cfg.Guard.RateLimitMaxRequests, cfg.Guard.RateWindow())
	authLimiter := guard.NewRateLimiter(a.counter, "rl-auth", cfg.Guard.AuthMaxRequests, cfg.Guard.AuthRateWindow())
	bruteForce := guard.NewBruteForceGuard(a.counter, cfg.Guard.BruteForceMaxAttempts, cfg.Guard.BruteForceDuration())
	limiter.Now, authLimiter.Now, bruteForce.Now = clock, clock, clock

	gate := &Gate{
		Limiter:     limiter,
		AuthLimiter: authLimiter,
		BruteForce:  bruteForce,
		TrustProxy:  cfg.Server.TrustProxy,
		Exempt:      DefaultExempt,
		Security:    a.security,
		Logger:      logger,
	}

	verifier := auth.NewSessionVerifier(a.sessions, cfg.OAuth.RequiredScopePrefix)

	r := NewBasicRouter()
	r.Use(
		RequestID,
		Recover(logger),
		Logging(logger, cfg.Server.TrustProxy),
		a.metrics.Middleware,
		CORS(cfg.Server.AllowedOrigins),
		gate.Middleware,
	)

	r.Handle(http.MethodGet, "/health", &HealthHandler{DB: opts.DB, Upstream: upstream})
	r.Handle(http.MethodGet, "/metrics", a.metrics.Handler())

	handlers := &AuthHandlers{
		OAuth:        oauth,
		Sessions:     a.sessions,
		Verifier:     verifier,
		Security:     a.security,
		TrustProxy:   cfg.Server.TrustProxy,
		SecureCookie: isHTTPS(cfg.OAuth.RedirectURI),
	}
	handlers.Register(r)

	proxy := &ProxyHandler{Upstream: upstream, Logger: logger}
	r.Mount("/api/", RequireAuth(verifier, a.security, cfg.Server.TrustProxy)(proxy))

	a.router = r
	return a, nil
}

func isHTTPS(u string) bool { return strings.HasPrefix(u, "https://") }

// Handler returns the root handler with all middleware applied.
func (a *App) Handler() http.Handler { return a.router }

// Sessions returns the session store.
func (a *App) Sessions() *auth.SessionStore { return a.sessions }

// Metrics returns the metrics registry.
func (a *App) Metrics() *Metrics { return a.metrics }

// Maintain purges expired sessions and sweeps idle counter keys once.
func (a *App) Maintain(ctx context.Context) error {
	purged, err := a.sessions.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge sessions: %w", err)
	}
	a.metrics.Purged.Add(float64(purged))
	if purged > 0 {
		a.security.Event(EventSessionsPurged, "-", "-", "count", purged)
	}

	swept, err := a.counter.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep counters: %w", err)
	}
	a.logger.Debug("maintenance complete", "purged", purged, "swept", swept)
	return nil
}

// maintenanceLoop runs [App.Maintain] every interval until ctx is done, then once more.
func (a *App) maintenanceLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return a.Maintain(final)
		case <-ticker.C:
			if err := a.Maintain(ctx); err != nil {
				a.logger.Error("maintenance failed", "err", err)
			}
		}
	}
}

// Run serves on the configured address until ctx is cancelled. Expired sessions are purged
// before listening, periodically while serving, and once more after shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.Maintain(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.config.Server.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.maintenanceLoop(gctx, a.config.Session.PurgeEvery())
	})
	return g.Wait()
}
