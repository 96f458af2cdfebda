package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

var (
	_ stt.Provider = (*STTFallback)(nil)
	_ llm.Provider = (*LLMFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// STTFallback is an [stt.Provider] that fails over across STT backends.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// NewSTTFallback returns an STTFallback with primary as its first entry.
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	g := NewFallbackGroup[stt.Provider](cfg)
	g.Add(name, primary)
	return &STTFallback{g}
}

// Transcribe implements stt.Provider.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (types.Transcript, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, pcm, cfg)
	})
}

// LLMFallback is an [llm.Provider] that fails over across LLM backends. For
// streams only the start is covered; a stream that fails midway reports the
// error in its final chunk.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback returns an LLMFallback with primary as its first entry.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	g := NewFallbackGroup[llm.Provider](cfg)
	g.Add(name, primary)
	return &LLMFallback{g}
}

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion implements llm.Provider.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Capabilities reports the primary's capabilities.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	if p, ok := f.Primary(); ok {
		return p.Capabilities()
	}
	return types.ModelCapabilities{}
}

// TTSFallback is a [tts.Provider] that fails over across TTS backends. Audio
// from a fallback is converted to the primary's output format, so consumers
// see one format whichever backend answered.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a TTSFallback with primary as its first entry.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	g := NewFallbackGroup[tts.Provider](cfg)
	g.Add(name, primary)
	return &TTSFallback{g}
}

// OutputFormat reports the primary's format.
func (f *TTSFallback) OutputFormat() audio.Format {
	if p, ok := f.Primary(); ok {
		return p.OutputFormat()
	}
	return audio.Format{}
}

// SynthesizeStream implements tts.Provider. The text is read to the end
// first, so a backend that fails to start does not swallow fragments meant
// for the next one.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	var b strings.Builder
read:
	for {
		select {
		case frag, ok := <-text:
			if !ok {
				break read
			}
			b.WriteString(frag)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	full := b.String()
	target := f.OutputFormat()

	return Do(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) (<-chan []byte, error) {
		ch, err := p.SynthesizeStream(ctx, tts.Text(full), voice)
		if err != nil {
			return nil, err
		}
		if from := p.OutputFormat(); from != target {
			return audio.ConvertStream(ch, from, target), nil
		}
		return ch, nil
	})
}
