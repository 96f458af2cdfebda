// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// DefaultBeamSize matches the decoder width the assistant has always used.
const DefaultBeamSize = 5

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings.
// The model is loaded once and shared; every call gets its own context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	beamSize int
	threads  uint
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g., "en").
// Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithBeamSize sets the beam-search width. Defaults to [DefaultBeamSize].
func WithBeamSize(n int) NativeOption {
	return func(p *NativeProvider) { p.beamSize = n }
}

// WithThreads sets the number of CPU threads per inference. Zero keeps the
// library default.
func WithThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// modelPath. The caller must call Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		beamSize: DefaultBeamSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp over pcm and joins the recognised segments.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (types.Transcript, error) {
	if len(pcm) < 2 {
		return types.Transcript{}, stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	cfg = cfg.WithDefaults()
	if cfg.SampleRate != whisperlib.SampleRate {
		return types.Transcript{}, fmt.Errorf("whisper: native model needs %d Hz audio, got %d Hz", whisperlib.SampleRate, cfg.SampleRate)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	samples := pcmToFloat32Mono(pcm, cfg.Channels)

	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if p.beamSize > 0 {
		wctx.SetBeamSize(p.beamSize)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if prompt := keywordPrompt(cfg.Keywords); prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	// Process blocks without a context; abort between segments instead.
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: %w", err)
		}
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		parts = append(parts, segment.Text)
	}

	return types.Transcript{
		Text:     stt.JoinSegments(parts),
		Language: lang,
		Duration: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}.PCMDuration(len(pcm)),
	}, nil
}
