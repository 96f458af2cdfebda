package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/malgo"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/earshot/pkg/provider/llm/openai"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/earshot/pkg/provider/stt/openai"
	"github.com/MrWong99/earshot/pkg/provider/stt/whisper"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/tts/coqui"
	oaitts "github.com/MrWong99/earshot/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires every provider that ships with earshot into
// reg. Factories read the shared fields of config.ProviderEntry and their
// provider-specific keys from entry.Options.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(entry config.ProviderEntry) (audio.Device, error) {
		a := cfg.Audio
		opts := []malgo.Option{
			malgo.WithCaptureDevice(a.InputDevice),
			malgo.WithPlaybackDevice(a.OutputDevice),
			malgo.WithMaxBuffered(time.Duration(a.CaptureBufferFrames) * a.FrameDuration()),
		}
		if rate := entry.OptInt("playback_sample_rate", 0); rate > 0 {
			opts = append(opts, malgo.WithPlaybackFormat(audio.Format{
				SampleRate: rate,
				Channels:   entry.OptInt("playback_channels", 1),
			}))
		}
		return malgo.New(opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.OptInt("beam_size", 0); n > 0 {
			opts = append(opts, whisper.WithBeamSize(n))
		}
		if n := entry.OptInt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptString("language", ""); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if prompt := entry.OptString("prompt", ""); prompt != "" {
			opts = append(opts, oaistt.WithPrompt(prompt))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(cfg.Audio.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// Every any-llm-go backend shares the same pattern: optional API key,
	// optional base URL.
	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// Servers speaking the OpenAI chat API (vLLM, LM Studio, LocalAI).
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization", ""); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptString("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if m := entry.OptString("api_mode", ""); m != "" {
			mode, err := coqui.ParseAPIMode(m)
			if err != nil {
				return nil, err
			}
			opts = append(opts, coqui.WithAPIMode(mode))
		}
		if rate := entry.OptInt("output_sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if v := entry.OptString("voice", ""); v != "" {
			opts = append(opts, oaitts.WithDefaultVoice(v))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"audio", "stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}
