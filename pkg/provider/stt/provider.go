// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// the in-process whisper.cpp bindings, OpenAI or Deepgram) and exposes a
// uniform batch interface: one call transcribes one complete utterance. The
// endpointer decides where utterances begin and end, so providers never
// segment audio themselves.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/earshot/pkg/types"
)

// ErrEmptyAudio is returned by Transcribe when pcm holds no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// StreamConfig describes the audio format of the PCM passed to Transcribe and
// optional recognition hints.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero selects 16000.
	SampleRate int

	// Channels is the number of interleaved channels. Zero selects mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect or use its default.
	Language string

	// Keywords are vocabulary hints. Providers without keyword support ignore them.
	Keywords []types.KeywordBoost
}

// WithDefaults returns cfg with zero fields replaced by 16 kHz mono.
func (c StreamConfig) WithDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of 16-bit little-endian PCM into text.
	// The returned transcript's Text is trimmed and may be empty when the audio
	// contained no recognisable speech.
	Transcribe(ctx context.Context, pcm []byte, cfg StreamConfig) (types.Transcript, error)
}

// JoinSegments joins recognised segments with single spaces and trims the result.
func JoinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
