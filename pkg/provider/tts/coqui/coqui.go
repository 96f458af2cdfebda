// Package coqui provides a TTS provider backed by a local Coqui TTS server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), synthesising via GET /api/tts.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server, synthesising via
//     POST /tts_to_audio/ with a JSON body. A speaker (voice.ID) is required.
//
// Both servers answer one WAV file per request, so SynthesizeStream splits the
// incoming text into sentences and synthesises a few of them concurrently
// through tts.Pipeline. The WAV header is stripped and the PCM is converted
// to mono at the configured output rate.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	audio, err := p.SynthesizeStream(ctx, textCh, voiceProfile)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage   = "en"
	defaultTimeout    = 30 * time.Second
	defaultOutputRate = 22050

	xttsEndpoint     = "/tts_to_audio/"
	standardEndpoint = "/api/tts"

	// maxErrorBody caps how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server. Default.
	APIModeStandard APIMode = "standard"
)

// ParseAPIMode maps a config string to an APIMode. The empty string selects
// APIModeStandard.
func ParseAPIMode(s string) (APIMode, error) {
	switch APIMode(strings.ToLower(s)) {
	case "", APIModeStandard:
		return APIModeStandard, nil
	case APIModeXTTS:
		return APIModeXTTS, nil
	default:
		return "", fmt.Errorf("coqui: unknown api mode %q (want standard or xtts)", s)
	}
}

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
// A non-empty VoiceProfile.Language takes precedence per call.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithOutputSampleRate sets the rate all synthesised PCM is resampled to.
// Defaults to 22050 Hz, the native rate of most Coqui models.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a Provider for the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		outputRate: defaultOutputRate,
	}
	for _, o := range opts {
		o(p)
	}
	if p.outputRate <= 0 {
		return nil, fmt.Errorf("coqui: invalid output sample rate %d", p.outputRate)
	}
	return p, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: p.outputRate, Channels: 1}
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	return tts.Pipeline(ctx, text, func(ctx context.Context, sentence string) ([]byte, error) {
		return p.synthesize(ctx, sentence, voice)
	}), nil
}

// synthesize performs one request for sentence and returns mono PCM at the
// output rate.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice types.VoiceProfile) ([]byte, error) {
	req, err := p.newRequest(ctx, sentence, voice)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("coqui: %s %s returned status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode WAV response: %w", err)
	}

	switch format.Channels {
	case 1:
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("coqui: unsupported channel count %d", format.Channels)
	}
	return audio.ResampleMono16(pcm, format.SampleRate, p.outputRate), nil
}

func (p *Provider) languageFor(voice types.VoiceProfile) string {
	if voice.Language != "" {
		return voice.Language
	}
	return p.language
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) newRequest(ctx context.Context, sentence string, voice types.VoiceProfile) (*http.Request, error) {
	lang := p.languageFor(voice)

	if p.apiMode == APIModeXTTS {
		data, err := json.Marshal(xttsRequest{Text: sentence, SpeakerWav: voice.ID, Language: lang})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+standardEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}
