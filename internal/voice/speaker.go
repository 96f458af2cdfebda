package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

// Speaker adapts a [tts.Provider] and an [audio.Sink] to turn.Synthesizer.
type Speaker struct {
	provider tts.Provider
	sink     audio.Sink
	name     string
	voice    types.VoiceProfile
	opts     options
}

// NewSpeaker returns a Speaker that synthesises with p in voice and plays the
// result on sink.
func NewSpeaker(p tts.Provider, sink audio.Sink, name string, voice types.VoiceProfile, opts ...Option) *Speaker {
	return &Speaker{provider: p, sink: sink, name: name, voice: voice, opts: buildOptions(opts)}
}

// Speak synthesises text and blocks until the sink has played all of it.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	start := time.Now()
	err := s.speak(ctx, text)
	s.opts.metrics.RecordStage(ctx, "tts", s.name, time.Since(start), err)
	return err
}

func (s *Speaker) speak(ctx context.Context, text string) error {
	chunks, err := s.provider.SynthesizeStream(ctx, tts.Text(text), s.voice)
	if err != nil {
		return fmt.Errorf("voice: synthesize: %w", err)
	}
	if err := s.sink.Play(ctx, chunks, s.provider.OutputFormat()); err != nil {
		go audio.Drain(chunks)
		return fmt.Errorf("voice: play: %w", err)
	}
	return nil
}
