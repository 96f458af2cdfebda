// Package openai provides a TTS provider backed by the OpenAI speech endpoint
// (POST /v1/audio/speech) via github.com/openai/openai-go. Audio is requested
// in the "pcm" response format: raw 16-bit little-endian mono at 24 kHz.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	// SampleRate is the fixed rate of the pcm response format.
	SampleRate = 24000

	DefaultModel = "tts-1"
	DefaultVoice = "alloy"
)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  string
	voice  string
}

type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL targets an OpenAI-compatible server instead of api.openai.com.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the speech model ("tts-1", "tts-1-hd", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDefaultVoice sets the voice used when a VoiceProfile has no ID.
func WithDefaultVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider. apiKey may be empty only when a base URL is set,
// for local servers that do not check it.
func New(apiKey string, opts ...Option) (*Provider, error) {
	cfg := config{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(&cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model, voice: cfg.voice}, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: SampleRate, Channels: 1}
}

// SynthesizeStream implements tts.Provider. Each sentence is one speech
// request.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return tts.Pipeline(ctx, text, func(ctx context.Context, sentence string) ([]byte, error) {
		return p.synthesize(ctx, sentence, voice)
	}), nil
}

func (p *Provider) synthesize(ctx context.Context, sentence string, voice types.VoiceProfile) ([]byte, error) {
	resp, err := p.client.Audio.Speech.New(ctx, p.buildParams(sentence, voice))
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return pcm, nil
}

func (p *Provider) buildParams(sentence string, voice types.VoiceProfile) oai.AudioSpeechNewParams {
	name := voice.ID
	if name == "" {
		name = p.voice
	}
	params := oai.AudioSpeechNewParams{
		Input:          sentence,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(name),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	// The endpoint accepts 0.25 to 4.0.
	if s := voice.SpeedFactor; s > 0 && s != 1 {
		params.Speed = oai.Float(min(max(s, 0.25), 4.0))
	}
	return params
}
