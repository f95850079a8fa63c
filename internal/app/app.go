// Package app wires all flexalign subsystems into a runnable batch.
//
// The App struct owns the full lifecycle: New connects the timeline store and
// builds the pipeline, Run serves the status endpoint and aligns every
// configured recording, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, WithRunID). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/health"
	"github.com/MrWong99/flexalign/internal/observe"
	"github.com/MrWong99/flexalign/internal/pipeline"
	"github.com/MrWong99/flexalign/internal/report"
	"github.com/MrWong99/flexalign/internal/resilience"
	"github.com/MrWong99/flexalign/internal/store"
)

// readHeaderTimeout bounds slow clients of the status endpoint.
const readHeaderTimeout = 5 * time.Second

const outputPermissions = 0o755

// App owns all subsystem lifetimes of one batch run.
type App struct {
	cfg   *config.Config
	runID string

	store   store.Store
	metrics *observe.Metrics
	health  *health.Handler
	batch   *pipeline.Batch
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a timeline store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRunID sets the batch run id. Default: a fresh [store.NewRunID].
func WithRunID(id string) Option {
	return func(a *App) { a.runID = id }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.runID == "" {
		a.runID = store.NewRunID()
	}

	if err := os.MkdirAll(cfg.OutputDir, outputPermissions); err != nil {
		return nil, fmt.Errorf("app: create output dir: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.health = health.New(
		health.Checker{Name: "output", Check: a.checkOutput},
		health.Checker{Name: "store", Check: a.checkStore},
	)

	p := pipeline.New(cfg, pipeline.WithMetrics(a.metrics))
	a.batch = pipeline.NewBatch(p, a.store, cfg.OutputDir,
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithBatchMetrics(a.metrics),
		pipeline.WithProgress(a.health.Progress()),
		pipeline.WithRunID(a.runID),
	)
	return a, nil
}

// initStore opens the PostgreSQL store behind a circuit breaker when a DSN is
// configured and falls back to the in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Store.PostgresDSN == "" {
		a.store = store.NewMemStore()
		return nil
	}
	pg, closeFn, err := store.Open(ctx, a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = store.NewGuarded(pg, resilience.New(resilience.Config{Name: "postgres"}))
	a.closers = append(a.closers, func() error { closeFn(); return nil })
	slog.Info("timeline store connected", "backend", "postgres")
	return nil
}

// checkOutput reports whether the output directory still exists and is
// writable by its owner.
func (a *App) checkOutput(_ context.Context) error {
	info, err := os.Stat(a.cfg.OutputDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", a.cfg.OutputDir)
	}
	if info.Mode().Perm()&0o200 == 0 {
		return fmt.Errorf("%s is not writable", a.cfg.OutputDir)
	}
	return nil
}

func (a *App) checkStore(ctx context.Context) error {
	_, err := a.store.ListRuns(ctx)
	return err
}

// Handler returns the status endpoint: health probes, batch progress and
// Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	return observe.Middleware(a.metrics, a.runID)(mux)
}

// RunID returns the id the batch stores its timelines under.
func (a *App) RunID() string { return a.runID }

// Run serves the status endpoint when configured and processes every
// configured recording. It returns the batch summary.
func (a *App) Run(ctx context.Context) (report.Summary, error) {
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		if err := a.serve(addr); err != nil {
			return report.Summary{}, err
		}
	}

	sum, _, err := a.batch.Run(ctx, a.cfg.Recordings)
	if err != nil {
		return sum, fmt.Errorf("app: run: %w", err)
	}
	return sum, nil
}

// serve starts the status endpoint in the background.
func (a *App) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	a.server = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status endpoint error", "err", err)
		}
	}()
	slog.Info("status endpoint listening", "addr", ln.Addr().String())
	return nil
}

// Shutdown stops the status endpoint and runs all closers. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("status endpoint shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
