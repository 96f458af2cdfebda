package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/earshot/internal/listen"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// Transcriber adapts an [stt.Provider] to turn.Transcriber.
type Transcriber struct {
	provider stt.Provider
	name     string
	cfg      stt.StreamConfig
	opts     options
}

// NewTranscriber returns a Transcriber that sends utterances to p. name labels
// the provider in metrics; cfg carries the language and keyword hints.
func NewTranscriber(p stt.Provider, name string, cfg stt.StreamConfig, opts ...Option) *Transcriber {
	return &Transcriber{provider: p, name: name, cfg: cfg, opts: buildOptions(opts)}
}

// Transcribe joins the utterance frames to PCM and returns the trimmed text.
func (t *Transcriber) Transcribe(ctx context.Context, u listen.Utterance) (string, error) {
	cfg := t.cfg
	if f := u.Format(); f.SampleRate > 0 {
		cfg.SampleRate, cfg.Channels = f.SampleRate, f.Channels
	}

	start := time.Now()
	tr, err := t.provider.Transcribe(ctx, u.PCM(), cfg)
	t.opts.metrics.RecordStage(ctx, "stt", t.name, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("voice: transcribe: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}
