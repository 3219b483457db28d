// Command dramaturg runs an LLM-driven narrative scene simulation.
//
// The simulation advances one character turn at a time from an interactive
// prompt; an optional HTTP/WebSocket server exposes the same controls for
// external front ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/dramaturg/internal/app"
	"github.com/MrWong99/dramaturg/internal/config"
	"github.com/MrWong99/dramaturg/internal/observe"
	"github.com/MrWong99/dramaturg/internal/resilience"
	"github.com/MrWong99/dramaturg/pkg/provider/llm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	scenePath := flag.String("scene", "", "scene file to simulate (overrides the config)")
	envFile := flag.String("env", ".env", "dotenv file with provider API keys")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// API keys may live in a .env file instead of the shell environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "dramaturg: load %q: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dramaturg: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dramaturg: %v\n", err)
		}
		return 1
	}
	if *scenePath != "" {
		cfg.Paths.SceneFile = *scenePath
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The LevelVar lets the config watcher adjust verbosity at runtime.
	level := &slog.LevelVar{}
	level.Set(cfg.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("dramaturg starting",
		"config", *configPath,
		"scene", cfg.Paths.SceneFile,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── LLM provider ──────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg)
	if err != nil {
		slog.Error("failed to create LLM provider",
			"name", cfg.Provider.Name, "model", cfg.Provider.Model, "err", err)
		return 1
	}
	slog.Info("provider created",
		"name", cfg.Provider.Name, "model", cfg.Provider.Model,
		"fallbacks", len(cfg.Fallbacks))

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, provider,
		app.WithLogger(logger),
		app.WithConfigWatch(*configPath, level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Setup(); err != nil {
		slog.Error("scene setup failed", "scene", cfg.Paths.SceneFile, "err", err)
		return 1
	}

	printStartupSummary(cfg, application)

	// ── Front ends ────────────────────────────────────────────────────────────
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	if err := repl(ctx, application, os.Stdin, os.Stdout); err != nil {
		slog.Warn("interactive session ended with error", "err", err)
	}

	// ── Scene end + shutdown ──────────────────────────────────────────────────
	// Long-term memory updates run one LLM call per participant; give them
	// room to finish even though the signal context may be cancelled.
	endCtx, cancelEnd := context.WithTimeout(context.Background(), 60*time.Second)
	if err := application.EndScene(endCtx); err != nil {
		slog.Warn("scene end error", "err", err)
	}
	cancelEnd()

	stop()
	if err := <-runErr; err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProvider creates the configured LLM backend. When fallbacks are
// configured, the primary and fallbacks are wrapped in a failover chain with
// per-backend circuit breakers.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	registry := config.DefaultRegistry()

	primary, err := registry.CreateLLM(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLMFallback(primary, cfg.Provider.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Fallbacks {
		fb, err := registry.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name+"/"+entry.Model, fb)
	}
	return chain, nil
}

// printStartupSummary draws the startup box with the scene and provider info.
func printStartupSummary(cfg *config.Config, application *app.App) {
	st := application.Status()

	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║        Dramaturg — startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	printSummaryLine("Provider", cfg.Provider.Name+" / "+cfg.Provider.Model)
	printSummaryLine("Scene", st.SceneID)
	printSummaryLine("Location", st.Location)
	printSummaryLine("Participants", fmt.Sprintf("%d", len(st.Participants)))
	if cfg.Server.Enabled {
		printSummaryLine("Listen addr", cfg.Server.ListenAddr)
	} else {
		printSummaryLine("HTTP server", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func printSummaryLine(key, value string) {
	if value == "" {
		value = "(none)"
	}
	if len([]rune(value)) > 25 {
		value = string([]rune(value)[:24]) + "…"
	}
	fmt.Printf("║  %-13s: %-25s ║\n", key, value)
}
