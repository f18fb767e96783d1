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
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sheng/internal/app"
	"github.com/MrWong99/sheng/internal/config"
	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/voice"
)

// errUsage makes run print the usage text and exit with status 2.
var errUsage = errors.New("usage")

// progressInterval is how often playback progress is redrawn.
const progressInterval = 250 * time.Millisecond

type cli struct {
	cfg        *config.Config
	configPath string
	app        *app.App

	// out receives command results, status receives timers and prompts.
	out    io.Writer
	status io.Writer
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "key":
		return c.key(ctx, rest)
	case "speak":
		return c.speak(ctx, rest)
	case "sample":
		return c.sample(ctx, rest)
	case "record":
		return c.record(ctx, rest)
	case "voices":
		return c.voices(ctx)
	case "languages":
		return c.languages()
	case "play":
		return c.play(ctx, rest)
	case "serve":
		return c.serve(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// ─── key ─────────────────────────────────────────────────────────────────────

func (c *cli) key(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	st := c.app.Studio()
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return errUsage
		}
		t, err := st.SaveKey(ctx, args[1])
		if err != nil {
			return err
		}
		ok, err := t.Wait(ctx)
		return c.reportKey(ok, err)
	case "check":
		ok, err := st.ValidateKey(ctx).Wait(ctx)
		return c.reportKey(ok, err)
	default:
		return errUsage
	}
}

func (c *cli) reportKey(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("API key is not valid; set one with `sheng key set <key>`")
	}
	fmt.Fprintln(c.out, "API key is valid")
	return nil
}

// ensureKey validates the stored key before an operation that needs it.
func (c *cli) ensureKey(ctx context.Context) error {
	ok, err := c.app.Studio().ValidateKey(ctx).Wait(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("API key is not valid; set one with `sheng key set <key>`")
	}
	return nil
}

// ─── speak / sample ──────────────────────────────────────────────────────────

func (c *cli) speak(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("speak", flag.ContinueOnError)
	voiceID := fs.String("voice", "", "voice to speak with (default from config)")
	lang := fs.String("lang", "", "language code (default: selected language)")
	speed := fs.Float64("speed", 0, "speaking rate (default from config)")
	out := fs.String("out", "", "write the WAV to this file")
	play := fs.Bool("play", false, "play the result")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	text := strings.Join(fs.Args(), " ")
	if *out == "" {
		*play = true
	}

	var opts []voice.RequestOption
	if *voiceID != "" {
		opts = append(opts, voice.WithVoice(*voiceID))
	}
	if *lang != "" {
		code := voice.LanguageCode(*lang)
		if _, ok := c.app.Studio().Catalog().Lookup(code); !ok {
			return fmt.Errorf("unsupported language %q", *lang)
		}
		opts = append(opts, voice.WithLanguage(code))
	}
	if *speed != 0 {
		opts = append(opts, voice.WithSpeed(*speed))
	}

	if err := c.ensureKey(ctx); err != nil {
		return err
	}
	data, err := c.app.Studio().Synthesize(ctx, text, opts...).Wait(ctx)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *out, err)
		}
		fmt.Fprintf(c.out, "wrote %s (%d bytes)\n", *out, len(data))
	}
	if *play {
		return c.follow(ctx, c.app.Player().PlayFrom(data))
	}
	return nil
}

func (c *cli) sample(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	lang := fs.String("lang", "", "language code (default: selected language)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	st := c.app.Studio()
	if *lang != "" && !st.SelectLanguage(voice.LanguageCode(*lang)) {
		return fmt.Errorf("unsupported language %q", *lang)
	}

	if err := c.ensureKey(ctx); err != nil {
		return err
	}
	p := st.Language()
	fmt.Fprintf(c.status, "%s: %s\n", p.DisplayName, p.SampleText)
	if _, err := st.PreviewSample(ctx).Wait(ctx); err != nil {
		return err
	}
	return c.follow(ctx, nil)
}

// ─── record ──────────────────────────────────────────────────────────────────

func (c *cli) record(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	dur := fs.Duration("for", 0, "stop after this long (default: until Ctrl+C)")
	clone := fs.String("clone", "", "upload the take as a new voice with this name")
	lang := fs.String("lang", "", "language of the sample (default: selected language)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	st := c.app.Studio()
	if *lang != "" && !st.SelectLanguage(voice.LanguageCode(*lang)) {
		return fmt.Errorf("unsupported language %q", *lang)
	}

	rec := c.app.Recorder()
	if !rec.RequestPermission(ctx) {
		return audio.ErrPermissionDenied
	}

	fmt.Fprintf(c.status, "Read aloud:\n\n  %s\n\n", st.Language().RecordingPrompt)
	take := rec.Start()

	var timeout <-chan time.Time
	if *dur > 0 {
		timeout = time.After(*dur)
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-take.Done():
	}
	rec.Stop()

	// Ctrl+C ends the take, not the command: finishing and cloning get a
	// context of their own.
	after, stop := signal.NotifyContext(context.WithoutCancel(ctx), os.Interrupt)
	defer stop()

	res, ok, err := take.Wait(after)
	fmt.Fprintln(c.status)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("recording failed")
	}
	fmt.Fprintf(c.out, "saved %s (%s)\n", res.OutputPath, audio.FormatElapsed(res.Elapsed))

	if *clone == "" {
		return nil
	}
	if err := c.ensureKey(after); err != nil {
		return err
	}
	cr, err := st.CloneVoice(after, *clone).Wait(after)
	if err != nil {
		return err
	}
	if cr != nil {
		fmt.Fprintf(c.out, "cloned voice %q (%s)\n", cr.VoiceName, cr.VoiceID)
	}
	return nil
}

// printElapsed redraws the recording timer. It runs on the recorder's tick
// goroutine.
func (c *cli) printElapsed(d time.Duration) {
	fmt.Fprintf(c.status, "\r● %s", audio.FormatElapsed(d))
}

// ─── voices / languages ──────────────────────────────────────────────────────

func (c *cli) voices(ctx context.Context) error {
	if err := c.ensureKey(ctx); err != nil {
		return err
	}
	vs, err := c.app.Studio().Voices(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.Type)
	}
	return tw.Flush()
}

func (c *cli) languages() error {
	selected := c.app.Studio().Language().Code
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tCODE\tNAME")
	for _, p := range c.app.Studio().Catalog().Profiles() {
		mark := ""
		if p.Code == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, p.Code, p.DisplayName)
	}
	return tw.Flush()
}

// ─── play ────────────────────────────────────────────────────────────────────

func (c *cli) play(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if !c.app.Player().Load(data) {
		return fmt.Errorf("cannot play %s", args[0])
	}
	return c.follow(ctx, c.app.Player().Play())
}

// follow prints the playback position until the track ends or ctx is
// cancelled, which stops playback. A nil done polls the player state instead.
func (c *cli) follow(ctx context.Context, done <-chan struct{}) error {
	p := c.app.Player()
	tick := time.NewTicker(progressInterval)
	defer tick.Stop()
	defer fmt.Fprintln(c.status)

	for {
		st := p.State()
		fmt.Fprintf(c.status, "\r▶ %s / %s", audio.FormatClock(st.Position), audio.FormatClock(st.Duration))
		if done == nil && !st.Playing {
			return nil
		}
		select {
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		case <-done:
			return nil
		case <-tick.C:
		}
	}
}

// ─── serve ───────────────────────────────────────────────────────────────────

func (c *cli) serve(ctx context.Context) error {
	ok, err := c.app.Studio().ValidateKey(ctx).Wait(ctx)
	switch {
	case err != nil:
		slog.Warn("API key check failed", "err", err)
	case !ok:
		slog.Warn("API key is not valid")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.app.Run(ctx) })

	if c.configPath != "" {
		w, err := c.app.WatchConfig(c.configPath)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	slog.Info("sheng serving; press Ctrl+C to stop", "metrics_addr", c.cfg.Server.MetricsAddr)
	return g.Wait()
}
