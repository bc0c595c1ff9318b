package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/venuearb/config"
	"github.com/alejandrodnm/venuearb/internal/adapters/notify"
	"github.com/alejandrodnm/venuearb/internal/adapters/storage"
	"github.com/alejandrodnm/venuearb/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	rehearsal := flag.Bool("rehearsal", false, "never send settlement transactions, even if deployed")
	report := flag.Bool("report", false, "print stored cycle stats and exit")
	cycleID := flag.String("cycle", "", "with -report: print one stored cycle by id")
	check := flag.Bool("check", false, "run one evaluation cycle without subscribing and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *rehearsal {
		cfg.Execution.Deployed = false
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		runReport(ctx, cfg, *cycleID)
		return
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	slog.Info("venuearb starting",
		"config", *configPath,
		"local", cfg.Network.Local,
		"deployed", cfg.Execution.Deployed,
		"threshold_pct", cfg.Strategy.PriceDifference,
		"check", *check,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	app, err := bootstrap(ctx, cfg, store)
	if err != nil {
		slog.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	defer app.close()

	if *check {
		runCheck(ctx, app)
		return
	}

	if cfg.Execution.Deployed && !confirmLive(ctx) {
		slog.Info("live mode aborted by user")
		return
	}

	if err := app.coordinator.Run(ctx, app.watcher); err != nil {
		slog.Error("coordinator exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("venuearb stopped cleanly",
		"cycles", app.coordinator.Completed(),
		"dropped", app.coordinator.Dropped(),
	)
}

// runCheck evalúa una vez el par como si hubiera llegado un swap al venue classic.
func runCheck(ctx context.Context, app *application) {
	rec, err := app.coordinator.Evaluate(ctx, domain.SwapNotification{Venue: domain.KindClassic})
	if err != nil {
		slog.Error("check failed", "err", err)
		os.Exit(1)
	}
	if rec.Outcome == domain.OutcomeReadFailed || rec.Outcome == domain.OutcomeExecutionFailed {
		os.Exit(1)
	}
}

func runReport(ctx context.Context, cfg *config.Config, cycleID string) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole(notify.ConsoleConfig{
		Units:            cfg.Strategy.Units,
		ConcentratedName: cfg.Venues.Concentrated.Name,
		ClassicName:      cfg.Venues.Classic.Name,
	})

	if cycleID != "" {
		rec, err := store.GetCycle(ctx, cycleID)
		if err != nil {
			slog.Error("failed to read cycle", "err", err, "cycle", cycleID)
			os.Exit(1)
		}
		console.PrintCycle(rec)
		return
	}

	to := time.Now()
	stats, err := store.Stats(ctx, to.Add(-30*24*time.Hour), to)
	if err != nil {
		slog.Error("failed to read stats", "err", err)
		os.Exit(1)
	}
	recent, err := store.RecentCycles(ctx, 20)
	if err != nil {
		slog.Error("failed to read recent cycles", "err", err)
		os.Exit(1)
	}

	console.PrintReport(stats, recent)
}

// confirmLive da 5 segundos para abortar antes de arriesgar fondos reales.
func confirmLive(ctx context.Context) bool {
	slog.Warn("=== LIVE MODE: settlement transactions will be sent ===")
	slog.Warn("press Ctrl+C within 5 seconds to abort...")

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
