// Command flexalign recovers sentence timings of long recordings by aligning
// windowed recognizer output against a reference script.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/flexalign/internal/app"
	"github.com/MrWong99/flexalign/internal/config"
	"github.com/MrWong99/flexalign/internal/observe"
	"github.com/MrWong99/flexalign/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

// command is one subcommand of the CLI.
type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"run", "run -config cfg.yaml: align every configured recording", runBatch},
	{"levenshtein", "levenshtein -hyp f -ref f -out f [-meta s]: write one anchor file", runLevenshtein},
	{"anchor", "anchor -in anchorfile -out dir: write the anchor index views", runAnchor},
	{"merge", "merge -in dir -out file [-lookahead n -config f]: merge the window stm files of one recording", runMerge},
	{"wer", "wer -in details -out file: per-utterance WER of Kaldi alignment details", runWER},
	{"reseg", "reseg -segments f -out f [-size s -overlap s -vad -config f]: cut sliding windows", runReseg},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 1
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if err := c.run(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(stderr, "flexalign %s: %v\n", c.name, err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "flexalign: unknown command %q\n", args[0])
	usage(stderr)
	return 1
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: flexalign <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
}

// runBatch is the "run" subcommand.
func runBatch(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", *configPath)
		}
		return err
	}

	runID := store.NewRunID()
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("flexalign starting",
		"version", version,
		"run_id", runID,
		"config", *configPath,
		"recordings", len(cfg.Recordings),
		"workers", cfg.Workers,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		RunID:          runID,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	application, err := app.New(ctx, cfg, app.WithRunID(runID))
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return err
	}

	sum, runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("batch summary",
		"run_id", runID,
		"recordings", sum.Recordings,
		"failed", sum.Failed,
		"aligned_ratio_mean", sum.AlignedRatio.Mean,
		"accepted", sum.Accepted,
		"rejected", sum.Rejected,
	)
	return nil
}

// newLogger creates an slog.Logger that writes text to stderr at the
// configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
