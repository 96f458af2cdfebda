package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earshot/internal/listen"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/internal/turn"
)

// KnownProviders lists the builtin provider names per kind. [Validate] warns
// about names outside this list; they may still be registered by the caller.
var KnownProviders = map[string][]string{
	"audio": {"malgo"},
	"stt":   {"whisper", "whisper-native", "openai", "deepgram"},
	"llm":   {"ollama", "llamacpp", "llamafile", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "openai-compatible"},
	"tts":   {"coqui", "openai"},
}

// Defaults for fields that are not set in the file.
const (
	DefaultLogLevel            = LogInfo
	DefaultCaptureBufferFrames = 32
	DefaultSystemPrompt        = "You are a helpful offline personal AI assistant. Be concise."
	DefaultLLMModel            = "gemma3:4b"
)

// Load reads the YAML file at path, expands ${VAR} references from the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader is [Load] for an already opened source.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = listen.DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = listen.DefaultChannels
	}
	if a.ChunkSize == 0 {
		a.ChunkSize = listen.DefaultFrameSize
	}
	if a.CaptureBufferFrames == 0 {
		a.CaptureBufferFrames = DefaultCaptureBufferFrames
	}

	if cfg.Listen.RMSThreshold == 0 {
		cfg.Listen.RMSThreshold = listen.DefaultThreshold
	}
	if cfg.Listen.SilenceFrames == 0 {
		cfg.Listen.SilenceFrames = listen.DefaultSilenceFrames
	}

	t := &cfg.Turn
	msgs := turn.DefaultMessages()
	if t.SuppressPoll == 0 {
		t.SuppressPoll = turn.DefaultSuppressPoll
	}
	if t.ExitPhrases == nil {
		t.ExitPhrases = slices.Clone(turn.DefaultExitPhrases)
	}
	if t.ExitMatch == "" {
		t.ExitMatch = ExitMatchSubstring
	}
	if t.Greeting == "" {
		t.Greeting = msgs.Greeting
	}
	if t.Goodbye == "" {
		t.Goodbye = msgs.Goodbye
	}
	if t.FallbackMessage == "" {
		t.FallbackMessage = msgs.Fallback
	}
	if t.TranscribeErrorMessage == "" {
		t.TranscribeErrorMessage = msgs.TranscribeError
	}

	if cfg.Assistant.SystemPrompt == "" {
		cfg.Assistant.SystemPrompt = DefaultSystemPrompt
	}

	p := &cfg.Providers
	if p.Audio.Name == "" {
		p.Audio.Name = "malgo"
	}
	if p.STT.Name == "" {
		p.STT.Name = "whisper-native"
	}
	if p.LLM.Name == "" {
		p.LLM.Name = "ollama"
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}
	if p.TTS.Name == "" {
		p.TTS.Name = "coqui"
	}

	r := &cfg.Resilience
	if r.FailureThreshold == 0 {
		r.FailureThreshold = resilience.DefaultMaxFailures
	}
	if r.ResetTimeout == 0 {
		r.ResetTimeout = resilience.DefaultResetTimeout
	}
	if r.HalfOpenMax == 0 {
		r.HalfOpenMax = resilience.DefaultHalfOpenMax
	}
}

// Validate checks cfg and returns every problem found, joined. Unknown
// provider names only log a warning.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	a := cfg.Audio
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		add("audio.channels must be 1 or 2, got %d", a.Channels)
	}
	if a.ChunkSize <= 0 {
		add("audio.chunk_size must be positive, got %d", a.ChunkSize)
	}
	if a.CaptureBufferFrames < 1 {
		add("audio.capture_buffer_frames must be at least 1, got %d", a.CaptureBufferFrames)
	}

	l := cfg.Listen
	if l.RMSThreshold <= 0 || l.RMSThreshold >= 1 {
		add("listen.rms_threshold must be in (0, 1), got %g", l.RMSThreshold)
	}
	if l.SilenceFrames < 1 {
		add("listen.silence_frames must be at least 1, got %d", l.SilenceFrames)
	}
	if l.MaxFrames < 0 {
		add("listen.max_frames must not be negative, got %d", l.MaxFrames)
	} else if l.MaxFrames > 0 && l.MaxFrames <= l.SilenceFrames {
		add("listen.max_frames (%d) must exceed listen.silence_frames (%d)", l.MaxFrames, l.SilenceFrames)
	}

	t := cfg.Turn
	if t.SuppressPoll < 0 {
		add("turn.suppress_poll must not be negative, got %s", t.SuppressPoll)
	}
	if !t.ExitMatch.IsValid() {
		add("turn.exit_match %q is invalid; valid values: substring, word, phonetic", t.ExitMatch)
	}
	if len(t.ExitPhrases) == 0 {
		slog.Warn("turn.exit_phrases is empty; only a signal will end the session")
	}

	as := cfg.Assistant
	if as.HistoryTurns < 0 {
		add("assistant.history_turns must not be negative, got %d", as.HistoryTurns)
	}
	if as.Temperature < 0 || as.Temperature > 2 {
		add("assistant.temperature %.2f is out of range [0, 2]", as.Temperature)
	}
	if as.MaxTokens < 0 {
		add("assistant.max_tokens must not be negative, got %d", as.MaxTokens)
	}
	if as.VoiceSpeed != 0 && (as.VoiceSpeed < 0.5 || as.VoiceSpeed > 2.0) {
		add("assistant.voice_speed %.2f is out of range [0.5, 2.0]", as.VoiceSpeed)
	}

	p := cfg.Providers
	for _, req := range []struct {
		kind  string
		entry ProviderEntry
	}{{"audio", p.Audio}, {"stt", p.STT}, {"llm", p.LLM}, {"tts", p.TTS}} {
		if req.entry.Name == "" {
			add("providers.%s.name is required", req.kind)
			continue
		}
		checkProviderName(req.kind, req.entry.Name)
	}
	for kind, list := range map[string][]ProviderEntry{"stt": p.STTFallbacks, "llm": p.LLMFallbacks, "tts": p.TTSFallbacks} {
		for i, e := range list {
			if e.Name == "" {
				add("providers.%s_fallbacks[%d].name is required", kind, i)
				continue
			}
			checkProviderName(kind, e.Name)
		}
	}

	r := cfg.Resilience
	if r.FailureThreshold < 1 {
		add("resilience.failure_threshold must be at least 1, got %d", r.FailureThreshold)
	}
	if r.ResetTimeout <= 0 {
		add("resilience.reset_timeout must be positive, got %s", r.ResetTimeout)
	}
	if r.HalfOpenMax < 1 {
		add("resilience.half_open_max must be at least 1, got %d", r.HalfOpenMax)
	}

	return errors.Join(errs...)
}

func checkProviderName(kind, name string) {
	if slices.Contains(KnownProviders[kind], name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or a custom registration",
		"kind", kind, "name", name, "known", KnownProviders[kind])
}
