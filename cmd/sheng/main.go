// Command sheng records voice samples, clones voices and synthesizes speech
// against an OpenVoice server.
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

	"github.com/MrWong99/sheng/internal/app"
	"github.com/MrWong99/sheng/internal/config"
	"github.com/MrWong99/sheng/internal/observe"
)

const usage = `usage: sheng [-config path] <command> [args]

commands:
  key set <key>         save the API key and validate it
  key check             validate the stored API key
  speak [flags] <text>  synthesize text (-voice, -lang, -speed, -out, -play)
  sample [-lang code]   play the sample text of a language
  record [flags]        record a voice sample (-for, -clone)
  voices                list the voices available to the key
  languages             list the supported languages
  play <file>           play an audio file
  serve                 run the metrics server, retention janitor and config watcher
`

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	flags := flag.NewFlagSet("sheng", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := flags.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "sheng: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "sheng: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Before app.New so that the default instruments bind to this provider.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "sheng",
		SampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	c := &cli{cfg: cfg, configPath: *configPath, out: os.Stdout, status: os.Stderr}
	application, err := app.New(ctx, cfg, app.WithLevelVar(&level), app.WithTickHook(c.printElapsed))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	c.app = application

	runErr := c.dispatch(ctx, flags.Args())

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, errUsage):
		fmt.Fprint(os.Stderr, usage)
		return 2
	case errors.Is(runErr, context.Canceled):
		return 130
	default:
		fmt.Fprintf(os.Stderr, "sheng: %v\n", runErr)
		return 1
	}
}
