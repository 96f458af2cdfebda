// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. Each Transcribe call opens one connection, streams
// the utterance, asks Deepgram to flush with CloseStream and collects the
// final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkBytes is 250 ms of 16 kHz mono audio.
	chunkBytes = 8000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the listen endpoint. Used for self-hosted
// deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams pcm to Deepgram and joins the final results.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (types.Transcript, error) {
	if len(pcm) < 2 {
		return types.Transcript{}, stt.ErrEmptyAudio
	}
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	var results []types.Transcript
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return send(gctx, conn, pcm) })
	g.Go(func() error {
		var err error
		results, err = collect(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Transcript{}, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	return merge(results, lang), nil
}

// send writes pcm in chunks followed by the CloseStream control message.
func send(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: send CloseStream: %w", err)
	}
	return nil
}

// collect reads results until Deepgram reports the stream metadata or closes
// the connection normally.
func collect(ctx context.Context, conn *websocket.Conn) ([]types.Transcript, error) {
	var finals []types.Transcript
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		if isMetadata(msg) {
			return finals, nil
		}
		t, final, ok := parseDeepgramResponse(msg)
		if ok && final {
			finals = append(finals, t)
		}
	}
}

func merge(finals []types.Transcript, lang string) types.Transcript {
	out := types.Transcript{Language: lang}
	texts := make([]string, 0, len(finals))
	var conf float64
	for _, f := range finals {
		texts = append(texts, f.Text)
		out.Words = append(out.Words, f.Words...)
		out.Duration += f.Duration
		conf += f.Confidence
	}
	out.Text = stt.JoinSegments(texts)
	if len(finals) > 0 {
		out.Confidence = conf / float64(len(finals))
	}
	return out
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Earshot:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func isMetadata(data []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &head) == nil && head.Type == "Metadata"
}

// parseDeepgramResponse parses a raw Deepgram message into a Transcript.
// ok is false if the message should be ignored; final reports is_final.
func parseDeepgramResponse(data []byte) (t types.Transcript, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]types.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, types.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}

	return types.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
		Duration:   seconds(resp.Duration),
	}, resp.IsFinal, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
