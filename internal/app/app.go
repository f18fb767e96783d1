// Package app wires all sheng subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the settings store and
// builds the recorder, player, retention janitor and studio from the config,
// Run serves the background loops, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithStore,
// WithServiceFactory, WithCaptureEngine, ...). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sheng/internal/config"
	"github.com/MrWong99/sheng/internal/health"
	"github.com/MrWong99/sheng/internal/observe"
	"github.com/MrWong99/sheng/internal/resilience"
	"github.com/MrWong99/sheng/internal/retention"
	"github.com/MrWong99/sheng/internal/settings"
	"github.com/MrWong99/sheng/internal/studio"
	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/audio/capture"
	"github.com/MrWong99/sheng/pkg/audio/command"
	"github.com/MrWong99/sheng/pkg/audio/playback"
	"github.com/MrWong99/sheng/pkg/voice"
	"github.com/MrWong99/sheng/pkg/voice/openvoice"
)

// shutdownGrace bounds how long the metrics server may take to drain.
const shutdownGrace = 5 * time.Second

// readyCacheTTL limits how often readiness probes reach the voice server.
const readyCacheTTL = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	service config.ServiceConfig
	metrics *observe.Metrics
	level   *slog.LevelVar

	// Injected or built in New.
	store      settings.Store
	newService studio.ServiceFactory
	capEngine  audio.CaptureEngine
	playEngine audio.PlaybackEngine
	onTick     func(time.Duration)

	recorder *capture.Recorder
	player   *playback.Player
	janitor  *retention.Janitor
	studio   *studio.Studio

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a settings store instead of opening the configured
// backend. The caller keeps ownership; Shutdown does not close it.
func WithStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithServiceFactory replaces the OpenVoice client factory.
func WithServiceFactory(f studio.ServiceFactory) Option {
	return func(a *App) { a.newService = f }
}

// WithCaptureEngine replaces the ffmpeg capture engine.
func WithCaptureEngine(e audio.CaptureEngine) Option {
	return func(a *App) { a.capEngine = e }
}

// WithPlaybackEngine replaces the ffplay playback engine.
func WithPlaybackEngine(e audio.PlaybackEngine) Option {
	return func(a *App) { a.playEngine = e }
}

// WithMetrics sets the instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads adjust the log level of the handler that
// owns v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithTickHook is called with the elapsed time on every recorder tick, in
// addition to the App's own bookkeeping.
func WithTickHook(fn func(elapsed time.Duration)) Option {
	return func(a *App) { a.onTick = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It opens the
// settings store and loads the stored API key, but does not validate it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, service: cfg.Service}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Settings store ────────────────────────────────────────────────
	if a.store == nil {
		store, err := OpenStore(ctx, cfg.Settings)
		if err != nil {
			return nil, fmt.Errorf("app: open settings: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	// ── 2. Voice service ─────────────────────────────────────────────────
	if a.newService == nil {
		a.newService = a.newClient
	}

	// ── 3. Retention ─────────────────────────────────────────────────────
	ret := cfg.Recording.Retention
	a.janitor = retention.New(retention.Config{
		Dir:       cfg.Recording.Dir,
		MaxAge:    ret.MaxAge,
		MaxFiles:  ret.MaxFiles,
		Interval:  ret.SweepInterval,
		OnRemoved: a.metrics.RecordRetentionRemoved,
	})

	// ── 4. Audio sessions ────────────────────────────────────────────────
	a.initAudio()

	// ── 5. Studio ────────────────────────────────────────────────────────
	st, err := studio.New(ctx, studio.Config{
		Credentials: settings.NewCredentials(a.store),
		NewService:  a.newService,
		Recorder:    a.recorder,
		Player:      a.player,
		Voice:       cfg.Synthesis.Voice,
		Speed:       cfg.Synthesis.Speed,
		Language:    cfg.Synthesis.Language,
		OnError: func(ctx context.Context, op string, err error) {
			a.metrics.RecordServiceError(ctx, op, voice.Classify(err).String())
		},
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init studio: %w", err)
	}
	a.studio = st

	slog.Info("app initialised",
		"settings", cfg.Settings.Backend,
		"service", cfg.Service.BaseURL,
		"recordings", cfg.Recording.Dir,
		"key", st.State().Key.String(),
	)
	return a, nil
}

// OpenStore opens the settings backend selected by cfg.
func OpenStore(ctx context.Context, cfg config.SettingsConfig) (settings.Store, error) {
	switch cfg.Backend {
	case config.SettingsFile, "":
		return settings.OpenFileStore(cfg.Path)
	case config.SettingsSQLite:
		return settings.OpenSQLiteStore(ctx, cfg.Path)
	case config.SettingsRedis:
		return settings.OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}

// newClient builds the voice service for key: an OpenVoice client per
// configured server, each behind a circuit breaker, with traced and counted
// requests.
func (a *App) newClient(key string) voice.Service {
	svc := a.service
	opts := []openvoice.Option{
		openvoice.WithHTTPClient(&http.Client{Transport: observe.Transport(a.metrics, nil)}),
		openvoice.WithTimeout(svc.Timeout),
	}
	if svc.RateLimit > 0 {
		opts = append(opts, openvoice.WithRateLimit(svc.RateLimit, svc.RateBurst))
	}
	if svc.UserAgent != "" {
		opts = append(opts, openvoice.WithUserAgent(svc.UserAgent))
	}
	client := func(baseURL string) voice.Service {
		return openvoice.New(key, append([]openvoice.Option{openvoice.WithBaseURL(baseURL)}, opts...)...)
	}

	fb := resilience.NewVoiceFallback(client(svc.BaseURL), svc.BaseURL, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  svc.BreakerFailures,
			ResetTimeout: svc.BreakerReset,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordCircuitTransition(context.Background(), name, to.String())
			},
		},
	})
	if svc.FallbackURL != "" {
		fb.AddFallback(svc.FallbackURL, client(svc.FallbackURL))
	}
	return fb
}

func (a *App) initAudio() {
	rc := a.cfg.Recording
	if a.capEngine == nil {
		capOpts := []command.CaptureOption{command.WithStopTimeout(rc.StopTimeout)}
		if argv := strings.Fields(rc.Command); len(argv) > 0 {
			capOpts = append(capOpts, command.WithCaptureCommand(argv))
		}
		a.capEngine = command.NewCaptureEngine(capOpts...)
	}
	if a.playEngine == nil {
		var playOpts []command.PlaybackOption
		if argv := strings.Fields(a.cfg.Playback.Command); len(argv) > 0 {
			playOpts = append(playOpts, command.WithPlaybackCommand(argv))
		}
		a.playEngine = command.NewPlaybackEngine(playOpts...)
	}

	format := audio.DefaultCaptureFormat
	if rc.Format == config.FormatWAV {
		format = audio.WAVCaptureFormat
	}

	// Hooks run on engine goroutines without a request context.
	bg := context.Background()
	recOpts := []capture.Option{
		capture.WithDirectory(rc.Dir),
		capture.WithFormat(format),
		capture.WithTickInterval(rc.TickInterval),
		capture.WithStartHook(func(path string) {
			a.metrics.ActiveRecordings.Add(bg, 1)
			slog.Debug("recording started", "path", path)
		}),
		capture.WithFinalizeHook(func(rec capture.Recording, ok bool) {
			a.metrics.ActiveRecordings.Add(bg, -1)
			a.metrics.RecordRecording(bg, ok, rec.Elapsed)
			a.janitor.Trigger()
		}),
	}
	if a.onTick != nil {
		recOpts = append(recOpts, capture.WithTickHook(a.onTick))
	}
	a.recorder = capture.New(a.capEngine, recOpts...)

	a.player = playback.New(a.playEngine,
		playback.WithPlayingHook(func(playing bool) {
			if playing {
				a.metrics.ActivePlayback.Add(bg, 1)
			} else {
				a.metrics.ActivePlayback.Add(bg, -1)
			}
		}),
		playback.WithCompletionHook(func(success bool) {
			a.metrics.RecordPlaybackCompletion(bg, success)
		}),
	)
	a.closers = append(a.closers, func() error {
		a.player.Close()
		return nil
	}, func() error {
		a.recorder.Stop()
		return nil
	})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Studio returns the controller for key, synthesis and clone operations.
func (a *App) Studio() *studio.Studio { return a.studio }

// Recorder returns the capture session.
func (a *App) Recorder() *capture.Recorder { return a.recorder }

// Player returns the playback session.
func (a *App) Player() *playback.Player { return a.player }

// Janitor returns the recording retention janitor.
func (a *App) Janitor() *retention.Janitor { return a.janitor }

// Store returns the settings store.
func (a *App) Store() settings.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the observability mux: /metrics, /healthz and /readyz,
// wrapped in the request middleware.
func (a *App) Handler() http.Handler {
	hh := health.New([]health.Checker{
		health.PingChecker("settings", a.store),
		health.KeyChecker("voice_service", func(ctx context.Context) (bool, error) {
			return a.studio.Service().ValidateKey(ctx)
		}),
		health.DirChecker("recordings_dir", a.cfg.Recording.Dir),
	}, health.WithCacheTTL(readyCacheTTL))
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	hh.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Run runs the retention janitor and, when server.metrics_addr is set, the
// observability server until ctx is cancelled. It returns the first error of
// either.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.janitor.Run(ctx) })

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// Reload applies the live-reloadable parts of next: log level, synthesis
// defaults and retention policy. Other changed sections are logged as
// needing a restart. It has the shape of the config watcher callback.
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.Live() {
		a.metrics.RecordConfigReload(context.Background(), true)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SynthesisChanged {
		syn := next.Synthesis
		if syn.Voice != "" {
			a.studio.SetVoice(syn.Voice)
		}
		if syn.Speed != 0 {
			a.studio.SetSpeed(syn.Speed)
		}
		if syn.Language != "" && !a.studio.SelectLanguage(syn.Language) {
			slog.Warn("unknown language in reloaded config", "language", syn.Language)
		}
	}
	if d.RetentionChanged {
		r := next.Recording.Retention
		a.janitor.SetPolicy(r.MaxAge, r.MaxFiles)
		a.janitor.Trigger()
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// WatchConfig returns a watcher for the config file at path that applies
// edits with [App.Reload] and counts rejected edits. Start it with Run.
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) (*config.Watcher, error) {
	opts = append([]config.WatcherOption{config.WithRejectHook(func(error) {
		a.metrics.RecordConfigReload(context.Background(), false)
	})}, opts...)
	return config.NewWatcher(path, a.Reload, opts...)
}

// ParseLevel maps a config log level onto slog. Unknown values map to Info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown cancels in-flight service calls, stops audio and closes the
// settings store. It is idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.studio != nil {
			a.studio.Close()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
