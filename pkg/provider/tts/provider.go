// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server or the
// OpenAI speech endpoint) and presents a uniform streaming interface.
// SynthesizeStream accepts a channel of text fragments and returns a channel of
// raw PCM audio as it becomes available, so the first sentence can play while
// later ones are still being synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments and returns a channel of
	// 16-bit little-endian PCM chunks in [Provider.OutputFormat].
	//
	// The returned channel is closed when all text has been synthesised, when
	// synthesis fails, or when ctx is cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// OutputFormat is the format of every chunk emitted by SynthesizeStream.
	OutputFormat() audio.Format
}

// Text returns a closed channel that yields s once. It adapts a complete reply
// to the streaming input of [Provider.SynthesizeStream].
func Text(s string) <-chan string {
	ch := make(chan string, 1)
	ch <- s
	close(ch)
	return ch
}
