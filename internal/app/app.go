// Package app wires the earshot subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New opens the capture stream and
// builds the listen, voice and turn components, Run executes the
// conversation loop together with the operator HTTP server and the config
// watcher, and Shutdown tears everything down once.
//
// Providers are built by the caller (usually cmd/earshot via the config
// registry). Tests pass mocks for all four.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/listen"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/turn"
	"github.com/MrWong99/earshot/internal/voice"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

// httpShutdownTimeout bounds the graceful stop of the operator HTTP server.
const httpShutdownTimeout = 5 * time.Second

// Providers holds one implementation per pipeline stage. All are required.
type Providers struct {
	Audio audio.Device
	STT   stt.Provider
	LLM   llm.Provider
	TTS   tts.Provider
}

func (p *Providers) validate() error {
	if p == nil {
		return errors.New("providers are nil")
	}
	var errs []error
	if p.Audio == nil {
		errs = append(errs, errors.New("audio device is nil"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is nil"))
	}
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is nil"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is nil"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics    *observe.Metrics
	gatherer   prometheus.Gatherer
	levelVar   *slog.LevelVar
	configPath string
	watchEvery time.Duration

	stream     audio.Stream
	streamOpen atomic.Bool
	classifier *listen.Classifier
	endpointer *listen.Endpointer
	controller *turn.Controller

	listener net.Listener
	server   *http.Server
	watcher  *config.Watcher

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the Prometheus registry served on /metrics. Default:
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithLevelVar lets hot reload change the log level of the handler built
// around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithConfigPath enables hot reload from the YAML file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithWatchInterval sets how often the config file is polled.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.watchEvery = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New opens the capture stream and builds every component of the voice loop.
// When cfg.Server.ListenAddr is set the HTTP listener is bound here so that
// address conflicts fail startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:        cfg,
		providers:  providers,
		metrics:    observe.DefaultMetrics(),
		gatherer:   prometheus.DefaultGatherer,
		watchEvery: config.DefaultWatchInterval,
	}
	for _, o := range opts {
		o(a)
	}

	lcfg := listenConfig(cfg)
	if err := lcfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 1. Capture stream ────────────────────────────────────────────────
	format := audio.Format{SampleRate: lcfg.SampleRate, Channels: lcfg.Channels}
	stream, err := providers.Audio.Open(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("app: open capture stream: %w", err)
	}
	a.stream = stream
	a.streamOpen.Store(true)
	a.closers = append(a.closers, func() error {
		a.streamOpen.Store(false)
		return stream.Close()
	})
	a.closers = append(a.closers, providers.Audio.Close)

	// ── 2. Controller ────────────────────────────────────────────────────
	if err := a.initController(lcfg); err != nil {
		_ = a.closeAll(context.Background())
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 3. Operator HTTP listener ────────────────────────────────────────
	if addr := cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = a.closeAll(context.Background())
			return nil, fmt.Errorf("app: listen on %q: %w", addr, err)
		}
		a.listener = ln
		a.server = &http.Server{
			Handler:           a.handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig, config.WithInterval(a.watchEvery))
		if err != nil {
			if a.listener != nil {
				_ = a.listener.Close()
			}
			_ = a.closeAll(context.Background())
			return nil, fmt.Errorf("app: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

func listenConfig(cfg *config.Config) listen.Config {
	return listen.Config{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameSize:     cfg.Audio.ChunkSize,
		Threshold:     cfg.Listen.RMSThreshold,
		SilenceFrames: cfg.Listen.SilenceFrames,
		MaxFrames:     cfg.Listen.MaxFrames,
	}
}

func messagesFrom(t config.TurnConfig) turn.Messages {
	return turn.Messages{
		Greeting:        t.Greeting,
		Goodbye:         t.Goodbye,
		Fallback:        t.FallbackMessage,
		TranscribeError: t.TranscribeErrorMessage,
	}
}

func (a *App) initController(lcfg listen.Config) error {
	cfg := a.cfg
	pc := cfg.Providers
	vopt := voice.WithMetrics(a.metrics)

	a.classifier = listen.NewClassifier(lcfg)
	a.endpointer = listen.NewEndpointer(lcfg)

	transcriber := voice.NewTranscriber(a.providers.STT, pc.STT.Name, stt.StreamConfig{
		SampleRate: lcfg.SampleRate,
		Channels:   lcfg.Channels,
		Language:   pc.STT.OptString("language", ""),
	}, vopt)

	responder := voice.NewResponder(a.providers.LLM, pc.LLM.Name, voice.ResponderConfig{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		HistoryTurns: cfg.Assistant.HistoryTurns,
		Temperature:  cfg.Assistant.Temperature,
		MaxTokens:    cfg.Assistant.MaxTokens,
	}, vopt)

	speaker := voice.NewSpeaker(a.providers.TTS, a.providers.Audio, pc.TTS.Name, types.VoiceProfile{
		ID:          cfg.Assistant.Voice,
		Provider:    pc.TTS.Name,
		SpeedFactor: cfg.Assistant.VoiceSpeed,
		Language:    pc.TTS.OptString("language", ""),
	}, vopt)

	exit, err := turn.NewExitMatcher(string(cfg.Turn.ExitMatch), cfg.Turn.ExitPhrases)
	if err != nil {
		return err
	}

	ctl, err := turn.New(turn.Pipeline{
		Source:      a.stream,
		Classifier:  a.classifier,
		Endpointer:  a.endpointer,
		Transcriber: transcriber,
		Responder:   responder,
		Synthesizer: speaker,
	}, turn.Config{
		FrameSize:    lcfg.FrameSize,
		SuppressPoll: cfg.Turn.SuppressPoll,
		Messages:     messagesFrom(cfg.Turn),
		Exit:         exit,
	}, turn.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.controller = ctl
	return nil
}

func (a *App) handler() http.Handler {
	h := health.New(
		health.Flag("audio", a.streamOpen.Load, "capture stream closed"),
		health.Flag("controller", func() bool {
			return a.controller.Running() && !a.controller.Stopped()
		}, "conversation loop not running"),
	)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	return observe.Middleware(a.metrics)(mux)
}

// Controller returns the conversation loop.
func (a *App) Controller() *turn.Controller { return a.controller }

// Addr returns the bound operator HTTP address, or nil when disabled.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the conversation loop, the HTTP server and the config watcher
// and blocks until the loop ends. It returns nil after an exit phrase, a
// [turn.Controller.Stop] or cancellation of ctx, and a wrapped error when the
// loop or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// The loop ending takes the server and watcher down with it.
		defer cancel()
		err := a.controller.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: conversation loop: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("operator http server listening", "addr", a.listener.Addr().String())
			err := a.server.Serve(a.listener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer scancel()
			return a.server.Shutdown(sctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("earshot running",
		"sample_rate", a.cfg.Audio.SampleRate,
		"chunk_size", a.cfg.Audio.ChunkSize,
		"frame", a.cfg.Audio.FrameDuration(),
		"exit_phrases", a.cfg.Turn.ExitPhrases)
	return g.Wait()
}

// applyConfig is the watcher callback for hot reload.
func (a *App) applyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.Empty() {
		return
	}
	if d.ThresholdChanged {
		a.classifier.SetThreshold(d.NewThreshold)
		slog.Info("hot reload: rms threshold updated", "threshold", d.NewThreshold)
	}
	if d.SilenceFramesChanged {
		a.endpointer.SetSilenceLimit(d.NewSilenceFrames)
		slog.Info("hot reload: silence limit updated", "frames", d.NewSilenceFrames)
	}
	if d.MessagesChanged {
		a.controller.SetMessages(messagesFrom(updated.Turn))
		slog.Info("hot reload: turn messages updated")
	}
	if d.LogLevelChanged {
		if a.levelVar != nil {
			a.levelVar.Set(d.NewLogLevel.Level())
			slog.Info("hot reload: log level updated", "level", d.NewLogLevel)
		} else {
			slog.Warn("hot reload: log level change ignored, no level var configured")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change requires restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the loop and closes the stream, the device and the HTTP
// listener. Only the first call does any work. If ctx expires, the remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.controller.Stop()
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.server != nil {
			if serr := a.server.Shutdown(ctx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				slog.Warn("http server shutdown error", "err", serr)
			}
			// Serve may never have run.
			if cerr := a.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				slog.Warn("http listener close error", "err", cerr)
			}
		}
		err = a.closeAll(ctx)
		slog.Info("shutdown complete")
	})
	return err
}

func (a *App) closeAll(ctx context.Context) error {
	for i, closer := range a.closers {
		if err := ctx.Err(); err != nil {
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return err
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}
