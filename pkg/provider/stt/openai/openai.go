// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1, gpt-4o-transcribe) or any compatible
// server such as a local faster-whisper deployment.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*config)

type config struct {
	baseURL  string
	language string
	prompt   string
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt sets a priming prompt sent with every request.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// Provider implements stt.Provider using github.com/sashabaranov/go-openai.
type Provider struct {
	client   *goopenai.Client
	model    string
	language string
	prompt   string
}

// New creates a Provider for model (default "whisper-1"). apiKey may be empty
// only when a base URL for a keyless local server is configured.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	var c config
	for _, o := range opts {
		o(&c)
	}
	if apiKey == "" && c.baseURL == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = goopenai.Whisper1
	}

	cc := goopenai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cc.BaseURL = c.baseURL
	}
	return &Provider{
		client:   goopenai.NewClientWithConfig(cc),
		model:    model,
		language: c.language,
		prompt:   c.prompt,
	}, nil
}

// Transcribe uploads pcm as WAV and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (types.Transcript, error) {
	if len(pcm) < 2 {
		return types.Transcript{}, stt.ErrEmptyAudio
	}
	cfg = cfg.WithDefaults()
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	// The API takes ISO-639-1; drop any region suffix.
	lang, _, _ = strings.Cut(lang, "-")

	prompt := p.prompt
	for _, k := range cfg.Keywords {
		if prompt != "" {
			prompt += ", "
		}
		prompt += k.Keyword
	}

	resp, err := p.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    p.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(audio.EncodeWAV(pcm, format)),
		Prompt:   prompt,
		Language: lang,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	return types.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: lang,
		Duration: format.PCMDuration(len(pcm)),
	}, nil
}
