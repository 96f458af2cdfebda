// Command earshot is an offline, voice-driven personal assistant: it listens
// on the microphone, transcribes what it hears, asks a language model for a
// reply and speaks the answer.
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds graceful shutdown after the loop ends.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to a dotenv file with secrets (ignored when missing)")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "earshot: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("earshot starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
		Registerer:     registry,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeAll(closers)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithGatherer(registry),
		app.WithLevelVar(level),
		app.WithConfigPath(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("listening, say one of the exit phrases or press Ctrl+C to stop")

	code := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the primary provider of every kind plus the
// configured fallbacks. STT, LLM and TTS are always wrapped in a fallback
// group so that each backend sits behind its own circuit breaker.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []io.Closer, error) {
	pc := cfg.Providers
	var closers []io.Closer
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	fail := func(err error) (*app.Providers, []io.Closer, error) {
		closeAll(closers)
		return nil, nil, err
	}

	device, err := reg.CreateAudio(pc.Audio)
	if err != nil {
		return fail(err)
	}
	// The app closes the device.
	slog.Info("provider created", "kind", "audio", "name", pc.Audio.Name)

	sttPrimary, err := reg.CreateSTT(pc.STT)
	if err != nil {
		_ = device.Close()
		return fail(err)
	}
	track(sttPrimary)
	sttGroup := resilience.NewSTTFallback(sttPrimary, pc.STT.Name, fallbackConfig(cfg, "stt"))
	for _, e := range pc.STTFallbacks {
		p, err := reg.CreateSTT(e)
		if err != nil {
			_ = device.Close()
			return fail(err)
		}
		track(p)
		sttGroup.Add(e.Name, p)
	}

	llmPrimary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		_ = device.Close()
		return fail(err)
	}
	llmGroup := resilience.NewLLMFallback(llmPrimary, pc.LLM.Name, fallbackConfig(cfg, "llm"))
	for _, e := range pc.LLMFallbacks {
		p, err := reg.CreateLLM(e)
		if err != nil {
			_ = device.Close()
			return fail(err)
		}
		llmGroup.Add(e.Name, p)
	}

	ttsPrimary, err := reg.CreateTTS(pc.TTS)
	if err != nil {
		_ = device.Close()
		return fail(err)
	}
	ttsGroup := resilience.NewTTSFallback(ttsPrimary, pc.TTS.Name, fallbackConfig(cfg, "tts"))
	for _, e := range pc.TTSFallbacks {
		p, err := reg.CreateTTS(e)
		if err != nil {
			_ = device.Close()
			return fail(err)
		}
		ttsGroup.Add(e.Name, p)
	}

	for kind, names := range map[string][]string{
		"stt": sttGroup.Names(),
		"llm": llmGroup.Names(),
		"tts": ttsGroup.Names(),
	} {
		slog.Info("provider chain created", "kind", kind, "order", names)
	}

	return &app.Providers{
		Audio: device,
		STT:   sttGroup,
		LLM:   llmGroup,
		TTS:   ttsGroup,
	}, closers, nil
}

func fallbackConfig(cfg *config.Config, kind string) resilience.FallbackConfig {
	r := cfg.Resilience
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  r.FailureThreshold,
			ResetTimeout: r.ResetTimeout,
			HalfOpenMax:  r.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "kind", kind, "provider", name, "from", from, "to", to)
			},
		},
	}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         earshot startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Providers.Audio.Name)
	printProvider("STT", cfg.Providers.STT, len(cfg.Providers.STTFallbacks))
	printProvider("LLM", cfg.Providers.LLM, len(cfg.Providers.LLMFallbacks))
	printProvider("TTS", cfg.Providers.TTS, len(cfg.Providers.TTSFallbacks))
	printRow("Format", fmt.Sprintf("%d Hz / %d ch", cfg.Audio.SampleRate, cfg.Audio.Channels))
	printRow("Frame", fmt.Sprintf("%d (%s)", cfg.Audio.ChunkSize, cfg.Audio.FrameDuration()))
	printRow("Threshold", fmt.Sprintf("%g", cfg.Listen.RMSThreshold))
	printRow("Silence", fmt.Sprintf("%d frames", cfg.Listen.SilenceFrames))
	printRow("Exit match", string(cfg.Turn.ExitMatch))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, e config.ProviderEntry, fallbacks int) {
	value := e.Name
	if e.Model != "" {
		value += " / " + e.Model
	}
	if fallbacks > 0 {
		value += fmt.Sprintf(" +%d", fallbacks)
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// Compile-time interface assertions for the fallback wrappers.
var (
	_ stt.Provider = (*resilience.STTFallback)(nil)
	_ llm.Provider = (*resilience.LLMFallback)(nil)
	_ tts.Provider = (*resilience.TTSFallback)(nil)
)
