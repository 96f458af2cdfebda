// Package mock provides a test double for the tts.Provider interface.
//
//	p := &mock.Provider{Chunks: [][]byte{[]byte("audio1"), []byte("audio2")}}
//	ch, _ := p.SynthesizeStream(ctx, tts.Text("hello"), voice)
//	p.Texts() // ["hello"]
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream once its
// text channel has been drained.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is emitted on every stream after the text channel closes.
	Chunks [][]byte

	// Err, if non-nil, is returned by SynthesizeStream.
	Err error

	// Format is returned by OutputFormat. Zero means 16 kHz mono.
	Format audio.Format

	calls []SynthesizeCall
}

// SynthesizeStream drains text, records the joined fragments and emits Chunks.
// When Err is set the call is recorded without reading text.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	err := p.Err
	chunks := append([][]byte(nil), p.Chunks...)
	p.mu.Unlock()

	if err != nil {
		p.record(SynthesizeCall{Voice: voice})
		return nil, err
	}

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		var b strings.Builder
		for frag := range text {
			b.WriteString(frag)
		}
		p.record(SynthesizeCall{Text: b.String(), Voice: voice})
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Format == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.Format
}

func (p *Provider) record(c SynthesizeCall) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// Calls returns a copy of every recorded call.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.calls...)
}

// Texts returns the text of every recorded call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears the recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

var _ tts.Provider = (*Provider)(nil)
