// Package runtime assembles the HTTP server around the application and owns
// its lifecycle: startup, graceful shutdown and release of shared resources.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	app "github.com/R3E-Network/crud_service/internal/app"
	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
	"github.com/R3E-Network/crud_service/internal/app/httpapi"
	"github.com/R3E-Network/crud_service/internal/app/metrics"
	"github.com/R3E-Network/crud_service/internal/app/storage/cache"
	"github.com/R3E-Network/crud_service/internal/app/storage/memory"
	"github.com/R3E-Network/crud_service/internal/app/storage/postgres"
	"github.com/R3E-Network/crud_service/internal/config"
	"github.com/R3E-Network/crud_service/internal/database"
	"github.com/R3E-Network/crud_service/internal/middleware"
	"github.com/R3E-Network/crud_service/internal/platform/migrations"
	"github.com/R3E-Network/crud_service/internal/retry"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// rateLimiterIdle is how long a client's token bucket survives without
// requests before the janitor drops it.
const rateLimiterIdle = 10 * time.Minute

// Options selects how the runtime is assembled.
type Options struct {
	// Memory serves from the in-memory store instead of PostgreSQL.
	Memory bool
	// Migrate applies pending migrations before serving.
	Migrate bool
}

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *http.Server

	pool    *database.Pool
	closers []io.Closer

	ready    chan struct{}
	addr     net.Addr
	shutdown sync.Once
	stopErr  error
}

// NewApplication constructs the runtime from cfg.
func NewApplication(ctx context.Context, cfg *config.Config, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.New(logger.LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	}

	a := &Application{cfg: cfg, log: log, ready: make(chan struct{})}

	stores, appOpts, err := a.buildStores(ctx, opts)
	if err != nil {
		a.release()
		return nil, err
	}

	if cfg.Cache.RedisAddr != "" {
		client, err := cache.Dial(ctx, cache.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			a.release()
			return nil, fmt.Errorf("configure cache: %w", err)
		}
		a.closers = append(a.closers, client)
		appOpts.WidgetCache = cache.NewRedis[widget.Widget](client, "widget", cfg.Cache.TTL)
		log.WithField("addr", cfg.Cache.RedisAddr).Info("widget cache enabled")
	}

	appOpts.Retry = retry.Policy{
		MaxAttempts:    cfg.Database.RetryAttempts,
		InitialBackoff: cfg.Database.RetryBackoff,
		MaxBackoff:     cfg.Database.RetryMaxBackoff,
		Multiplier:     retry.DefaultPolicy.Multiplier,
		Jitter:         retry.DefaultPolicy.Jitter,
	}

	application, err := app.New(stores, appOpts, log)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("build application: %w", err)
	}
	a.app = application

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log)
	if err := application.Attach(NewJanitor(cfg.Janitor.Schedule, log.Named("janitor"), a.housekeeping(limiter)...)); err != nil {
		a.release()
		return nil, fmt.Errorf("attach janitor: %w", err)
	}

	a.server = &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      a.chain(httpapi.NewHandler(application, log), limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

func (a *Application) buildStores(ctx context.Context, opts Options) (app.Stores, app.Options, error) {
	if opts.Memory {
		a.log.Warn("serving from the in-memory store; data is lost on exit")
		mem := memory.New()
		a.closers = append(a.closers, mem)
		return app.Stores{Widgets: mem, Users: mem, Categories: mem, Products: mem}, app.Options{}, nil
	}

	dbCfg := a.cfg.Database
	if dbCfg.DSN == "" {
		return app.Stores{}, app.Options{}, errors.New("database dsn is required unless serving from memory")
	}
	if opts.Migrate {
		if err := migrations.Up(dbCfg.DSN); err != nil {
			return app.Stores{}, app.Options{}, fmt.Errorf("apply migrations: %w", err)
		}
		a.log.Info("migrations applied")
	}

	pool, err := database.Open(ctx, database.Config{
		Driver:          dbCfg.Driver,
		DSN:             dbCfg.DSN,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		AcquireTimeout:  dbCfg.AcquireTimeout,
	})
	if err != nil {
		return app.Stores{}, app.Options{}, fmt.Errorf("open database: %w", err)
	}
	a.pool = pool
	if err := metrics.RegisterDBStats(pool.DB(), "primary"); err != nil {
		a.log.WithError(err).Warn("register pool metrics")
	}

	store := postgres.New(pool)
	a.closers = append(a.closers, store)
	return app.Stores{Widgets: store, Users: store, Categories: store, Products: store},
		app.Options{Health: pool.Ping}, nil
}

// chain wraps the router, outermost first: tracing, metrics, CORS, rate
// limiting, the per-request deadline, then backpressure. Backpressure sits
// inside the deadline so a request that answered 504 keeps its slot until
// its handler returns.
func (a *Application) chain(router *mux.Router, limiter *middleware.RateLimiter) http.Handler {
	srv := a.cfg.Server

	var h http.Handler = router
	h = middleware.NewBackpressure(int64(srv.MaxInFlight)).Handler(h)
	h = middleware.Deadline(srv.RequestTimeout)(h)
	h = limiter.Handler(h)
	h = middleware.NewCORSMiddleware(srv.AllowedOrigins()).Handler(h)
	h = middleware.MetricsMiddleware(router)(h)
	return middleware.NewTracingMiddleware(a.log.Named("http")).Handler(h)
}

func (a *Application) housekeeping(limiter *middleware.RateLimiter) []Task {
	tasks := []Task{}
	if limiter.Enabled() {
		tasks = append(tasks, Task{Name: "prune rate limiters", Run: func(ctx context.Context) error {
			remaining := limiter.Cleanup(rateLimiterIdle)
			a.log.WithField("clients", remaining).Debug("rate limiters pruned")
			return nil
		}})
	}
	if a.pool != nil {
		pool := a.pool
		tasks = append(tasks, Task{Name: "check database", Run: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := pool.Ping(pingCtx); err != nil {
				return err
			}
			stats := pool.Stats()
			a.log.WithField("open", stats.OpenConnections).
				WithField("in_use", stats.InUse).
				WithField("idle", stats.Idle).
				WithField("wait_count", stats.WaitCount).
				Debug("database pool stats")
			return nil
		}})
	}
	return tasks
}

// Handler returns the fully wrapped HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

// App exposes the composed application.
func (a *Application) App() *app.Application {
	return a.app
}

// Ready is closed once the server is accepting connections.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound listen address. Valid after Ready.
func (a *Application) Addr() net.Addr {
	return a.addr
}

// Run starts the lifecycle services and serves HTTP until ctx is cancelled,
// then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		a.release()
		return fmt.Errorf("start application: %w", err)
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		_ = a.Shutdown(context.Background())
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.addr = ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()
	a.log.WithField("addr", a.addr.String()).Info("HTTP server listening")
	close(a.ready)

	select {
	case <-ctx.Done():
		return a.Shutdown(context.WithoutCancel(ctx))
	case err := <-errCh:
		shutdownErr := a.Shutdown(context.WithoutCancel(ctx))
		if errors.Is(err, http.ErrServerClosed) {
			return shutdownErr
		}
		return errors.Join(fmt.Errorf("serve: %w", err), shutdownErr)
	}
}

// Shutdown stops accepting connections and waits up to the configured grace
// period for in-flight requests; connections still open after that are
// closed. Lifecycle services are stopped next and the stores and pool handle
// released last. Only the first call does any work.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdown.Do(func() {
		graceCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownGrace)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(graceCtx); err != nil {
			a.log.WithError(err).Warn("grace period elapsed; closing remaining connections")
			if closeErr := a.server.Close(); closeErr != nil {
				errs = append(errs, fmt.Errorf("close server: %w", closeErr))
			}
		}
		if err := a.app.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop application: %w", err))
		}
		if err := a.release(); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
		a.log.Info("shutdown complete")
	})
	return a.stopErr
}

// release closes stores and clients in reverse order of creation, then drops
// the runtime's own pool reference.
func (a *Application) release() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.pool != nil {
		if err := a.pool.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release database pool: %w", err))
		}
		a.pool = nil
	}
	return errors.Join(errs...)
}
