// Package app wires the Dramaturg subsystems into a running application.
//
// The App owns a simulation engine, fans out status snapshots to
// subscribers, and optionally serves the HTTP/WebSocket front end. The
// interactive CLI and the HTTP API both drive the same App methods, so every
// state change reaches WebSocket clients regardless of where it originated.
//
// For testing, inject a fake engine via [WithSceneEngine].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dramaturg/internal/config"
	"github.com/MrWong99/dramaturg/internal/engine"
	"github.com/MrWong99/dramaturg/internal/health"
	"github.com/MrWong99/dramaturg/internal/observe"
	"github.com/MrWong99/dramaturg/internal/scenelog"
	"github.com/MrWong99/dramaturg/internal/server"
	"github.com/MrWong99/dramaturg/pkg/provider/llm"
)

// shutdownTimeout bounds the HTTP server drain during shutdown.
const shutdownTimeout = 5 * time.Second

// SceneEngine is the engine surface the App drives. Implemented by
// [engine.Engine]; tests substitute a fake.
type SceneEngine interface {
	Setup() error
	ExecuteOneTurn(ctx context.Context) (bool, error)
	ProcessInterventionCommand(ctx context.Context, command string) (bool, string)
	Status() engine.Status
	LastTurn() (scenelog.Turn, bool)
	End(ctx context.Context) error
	Reset()
}

// App owns the simulation lifecycle and its front ends.
type App struct {
	cfg     *config.Config
	eng     SceneEngine
	bc      *Broadcaster
	logger  *slog.Logger
	metrics *observe.Metrics

	// level, when set, lets the config watcher adjust log verbosity at
	// runtime.
	level     *slog.LevelVar
	watchPath string
}

var _ server.Simulation = (*App)(nil)

// Option is a functional option for [New]. Use these to inject test doubles
// or wire optional features.
type Option func(*App)

// WithSceneEngine injects an engine instead of building one from the config.
func WithSceneEngine(e SceneEngine) Option {
	return func(a *App) { a.eng = e }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch enables hot reload of the config file at path. Log level
// changes are applied to level immediately; changes that need a restart are
// logged and otherwise ignored.
func WithConfigWatch(path string, level *slog.LevelVar) Option {
	return func(a *App) {
		a.watchPath = path
		a.level = level
	}
}

// New creates an App from cfg. The provider comes from the config registry
// in main. Unless an engine is injected, New constructs one from the
// configured paths.
func New(cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		bc:      NewBroadcaster(),
		logger:  slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.eng == nil {
		eng, err := engine.New(engine.Config{
			SceneFile:     cfg.Paths.SceneFile,
			CharactersDir: cfg.Paths.CharactersDir,
			PromptsDir:    cfg.Paths.PromptsDir,
			LogDir:        cfg.Paths.LogDir,
			Provider:      provider,
			Temperature:   cfg.Provider.Temperature,
			MaxTokens:     cfg.Provider.MaxTokens,
			Logger:        a.logger,
			Metrics:       a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build engine: %w", err)
		}
		a.eng = eng
	}

	return a, nil
}

// Setup loads the scene and its participants and prepares the first turn.
func (a *App) Setup() error {
	err := a.eng.Setup()
	a.bc.Publish(a.eng.Status())
	return err
}

// Status returns the current simulation snapshot.
func (a *App) Status() engine.Status {
	return a.eng.Status()
}

// Step executes the next character turn and publishes the resulting status.
// The bool reports whether the scene completed.
func (a *App) Step(ctx context.Context) (bool, error) {
	advanced, err := a.eng.ExecuteOneTurn(ctx)
	a.bc.Publish(a.eng.Status())
	return !advanced && err == nil, err
}

// Intervene applies an operator command and publishes the resulting status.
func (a *App) Intervene(ctx context.Context, command string) (bool, string) {
	ok, msg := a.eng.ProcessInterventionCommand(ctx, command)
	a.bc.Publish(a.eng.Status())
	return ok, msg
}

// EndScene ends the scene, running long-term updates for all participants,
// and publishes the resulting status.
func (a *App) EndScene(ctx context.Context) error {
	err := a.eng.End(ctx)
	a.bc.Publish(a.eng.Status())
	return err
}

// LastTurn returns the most recently executed turn, when one exists.
func (a *App) LastTurn() (scenelog.Turn, bool) {
	return a.eng.LastTurn()
}

// Subscribe registers a status listener.
func (a *App) Subscribe() (<-chan engine.Status, func()) {
	return a.bc.Subscribe()
}

// Run serves the optional front ends until ctx is cancelled: the HTTP server
// when enabled and the config watcher when configured. Run always returns
// after teardown; a nil error means a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	var watcher *config.Watcher
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.onConfigChange)
		if err != nil {
			// The process already runs with a valid config; hot reload is
			// best effort.
			a.logger.Warn("config watch disabled", "path", a.watchPath, "err", err)
		} else {
			watcher = w
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		srv := server.New(a, a.metrics, a.healthCheckers(), server.WithLogger(a.logger))
		httpSrv := &http.Server{
			Addr:              a.cfg.Server.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			a.logger.Info("http server listening", "addr", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	err := g.Wait()

	if watcher != nil {
		watcher.Stop()
	}
	a.bc.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// onConfigChange applies hot-reloadable changes from a rewritten config file.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RequiresRestart() {
		a.logger.Warn("config change requires a restart to take effect")
	}
}

// healthCheckers builds the readiness checks beyond the built-in engine
// state check.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "scene_log",
			Check: func(context.Context) error {
				st := a.eng.Status()
				if st.State == engine.StateIdle || st.State == engine.StateRunning {
					if st.SceneID == "" {
						return errors.New("scene is set up but has no id")
					}
				}
				return nil
			},
		},
	}
}
