// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for earshot.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ExitMatch selects how exit phrases are recognised.
type ExitMatch string

const (
	ExitMatchSubstring ExitMatch = "substring"
	ExitMatchWord      ExitMatch = "word"
	ExitMatchPhonetic  ExitMatch = "phonetic"
)

// IsValid reports whether m is a recognised match mode.
func (m ExitMatch) IsValid() bool {
	switch m {
	case ExitMatchSubstring, ExitMatchWord, ExitMatchPhonetic:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded with
// [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Listen     ListenConfig     `yaml:"listen"`
	Turn       TurnConfig       `yaml:"turn"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds logging and the optional HTTP endpoint.
type ServerConfig struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr serves /healthz, /readyz and /metrics (e.g. ":9090").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`
}

// AudioConfig describes the capture format and sound devices.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// ChunkSize is the number of samples per frame.
	ChunkSize int `yaml:"chunk_size"`

	// InputDevice and OutputDevice select devices by name substring. Empty
	// selects the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	// CaptureBufferFrames bounds how many frames of unread capture are kept
	// before the oldest audio is dropped.
	CaptureBufferFrames int `yaml:"capture_buffer_frames"`
}

// FrameDuration returns the length of one chunk.
func (a AudioConfig) FrameDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.ChunkSize) * time.Second / time.Duration(a.SampleRate)
}

// ListenConfig tunes speech detection and endpointing.
type ListenConfig struct {
	// RMSThreshold is the speech threshold as a ratio of full scale.
	// Hot-reloadable.
	RMSThreshold float64 `yaml:"rms_threshold"`

	// SilenceFrames is the trailing silence, in frames, that ends an
	// utterance. Hot-reloadable.
	SilenceFrames int `yaml:"silence_frames"`

	// MaxFrames force-ends long utterances. Zero means unlimited.
	MaxFrames int `yaml:"max_frames"`
}

// TurnConfig configures the conversation loop and its fixed phrases.
type TurnConfig struct {
	SuppressPoll time.Duration `yaml:"suppress_poll"`
	ExitPhrases  []string      `yaml:"exit_phrases"`
	ExitMatch    ExitMatch     `yaml:"exit_match"`

	// The phrases below are hot-reloadable. Empty values get the defaults.
	Greeting               string `yaml:"greeting"`
	Goodbye                string `yaml:"goodbye"`
	FallbackMessage        string `yaml:"fallback_message"`
	TranscribeErrorMessage string `yaml:"transcribe_error_message"`
}

// AssistantConfig shapes the language model requests.
type AssistantConfig struct {
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryTurns replays the last N exchanges. Zero is single-turn.
	HistoryTurns int `yaml:"history_turns"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Voice is the TTS voice ID. Empty uses the provider default.
	Voice string `yaml:"voice"`

	// VoiceSpeed scales the speaking rate (0.5 to 2.0). Zero is default.
	VoiceSpeed float64 `yaml:"voice_speed"`
}

// ProvidersConfig selects the implementation for each pipeline stage. Each
// entry's Name is looked up in the [Registry].
type ProvidersConfig struct {
	Audio ProviderEntry `yaml:"audio"`
	STT   ProviderEntry `yaml:"stt"`
	LLM   ProviderEntry `yaml:"llm"`
	TTS   ProviderEntry `yaml:"tts"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "ollama").
	Name string `yaml:"name"`

	// APIKey authenticates against remote APIs. Use "${VAR}" to read it from
	// the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For whisper-native it is the
	// path to the ggml model file.
	Model string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// OptString returns the option key as a string, or def when unset.
func (e ProviderEntry) OptString(key, def string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// OptInt returns the option key as an int, or def when unset or not a number.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// OptFloat returns the option key as a float64, or def when unset.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// OptDuration returns the option key parsed as a duration ("15s"), or def.
func (e ProviderEntry) OptDuration(key string, def time.Duration) time.Duration {
	switch v := e.Options[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	}
	return def
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	HalfOpenMax      int           `yaml:"half_open_max"`
}
