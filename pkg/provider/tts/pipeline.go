package tts

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

const (
	// Lookahead is how many sentence requests may be in flight at once.
	Lookahead = 4

	// ChunkSize is the size of each PCM chunk emitted by [Pipeline].
	ChunkSize = 4096

	audioChanBuf = 256
)

// SynthesizeFunc turns one sentence into PCM in the provider's output format.
type SynthesizeFunc func(ctx context.Context, sentence string) ([]byte, error)

type result struct {
	pcm []byte
	err error
}

// Pipeline drives a batch synthesis backend from a text stream. Fragments are
// joined into sentences, up to [Lookahead] sentences are synthesised
// concurrently, and the PCM is emitted in sentence order in [ChunkSize]
// pieces. The first synthesis error is logged and ends the stream.
func Pipeline(ctx context.Context, text <-chan string, synth SynthesizeFunc) <-chan []byte {
	out := make(chan []byte, audioChanBuf)

	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sentences := Sentences(ctx, text)
		queue := make(chan chan result, Lookahead)

		go func() {
			defer close(queue)
			for s := range sentences {
				ch := make(chan result, 1)
				select {
				case queue <- ch:
				case <-ctx.Done():
					return
				}
				go func() {
					pcm, err := synth(ctx, s)
					ch <- result{pcm: pcm, err: err}
				}()
			}
		}()

		for ch := range queue {
			var r result
			select {
			case r = <-ch:
			case <-ctx.Done():
				return
			}
			if r.err != nil {
				if ctx.Err() == nil {
					slog.Warn("tts: synthesis failed", "err", r.err)
				}
				return
			}
			for pcm := r.pcm; len(pcm) > 0; {
				n := min(ChunkSize, len(pcm))
				select {
				case out <- pcm[:n]:
				case <-ctx.Done():
					return
				}
				pcm = pcm[n:]
			}
		}
	}()

	return out
}

// Sentences accumulates text fragments and emits complete, trimmed sentences.
// A sentence ends at '.', '!' or '?' followed by whitespace; whatever remains
// when text closes is emitted as a final sentence. The returned channel is
// closed when text closes or ctx ends.
func Sentences(ctx context.Context, text <-chan string) <-chan string {
	out := make(chan string, Lookahead)
	go func() {
		defer close(out)
		emit := func(s string) bool {
			if s = strings.TrimSpace(s); s == "" {
				return true
			}
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var buf strings.Builder
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-text:
				if !ok {
					emit(buf.String())
					return
				}
				buf.WriteString(frag)
				s := buf.String()
				rest := s
				for {
					i := sentenceEnd(rest)
					if i < 0 {
						break
					}
					if !emit(rest[:i+1]) {
						return
					}
					rest = rest[i+1:]
				}
				if len(rest) != len(s) {
					buf.Reset()
					buf.WriteString(rest)
				}
			}
		}
	}()
	return out
}

// sentenceEnd returns the index of the first '.', '!' or '?' that is followed
// by whitespace, or -1. Trailing punctuation at the end of s does not count
// yet, since the next fragment may continue the token ("3." then "14").
func sentenceEnd(s string) int {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
