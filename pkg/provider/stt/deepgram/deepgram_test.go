package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts []Option
		cfg  stt.StreamConfig
		want map[string]string
	}{
		{
			name: "defaults",
			cfg:  stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"},
			want: map[string]string{"model": "nova-3", "language": "en", "punctuate": "true", "encoding": "linear16", "sample_rate": "16000", "channels": "1"},
		},
		{
			name: "provider options",
			opts: []Option{WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000)},
			want: map[string]string{"model": "base", "language": "de-DE", "sample_rate": "48000", "channels": ""},
		},
		{
			name: "config language wins",
			opts: []Option{WithLanguage("en")},
			cfg:  stt.StreamConfig{Language: "fr-FR", SampleRate: 16000},
			want: map[string]string{"language": "fr-FR"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tc.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tc.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(raw)
			for k, want := range tc.want {
				assertEqual(t, k, want, u.Query().Get(k))
			}
		})
	}
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	raw, err := p.buildURL(stt.StreamConfig{Keywords: []types.KeywordBoost{
		{Keyword: "Earshot", Boost: 5},
		{Keyword: "Gemma", Boost: 3.5},
	}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	kws := u.Query()["keywords"]
	if len(kws) != 2 || kws[0] != "Earshot:5" || kws[1] != "Gemma:3.5" {
		t.Errorf("keywords = %v", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"duration": 1.5,
		"channel": {
			"alternatives": [{
				"transcript": "Hello world",
				"confidence": 0.95,
				"words": [
					{"word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	tr, final, ok := parseDeepgramResponse(raw)
	if !ok || !final {
		t.Fatalf("ok=%v final=%v, want both true", ok, final)
	}
	assertEqual(t, "text", "Hello world", tr.Text)
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", tr.Duration)
	}
	if len(tr.Words) != 2 || tr.Words[0].Start != 100*time.Millisecond {
		t.Errorf("words = %+v", tr.Words)
	}

	for _, ignored := range []string{
		`{"type":"Metadata","request_id":"abc"}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
		`{invalid`,
	} {
		if _, _, ok := parseDeepgramResponse([]byte(ignored)); ok {
			t.Errorf("parsed %s", ignored)
		}
	}
}

// ---- end-to-end against a fake server ----

func result(text string, final bool) string {
	f := "false"
	if final {
		f = "true"
	}
	return `{"type":"Results","is_final":` + f + `,"duration":0.5,"channel":{"alternatives":[{"transcript":"` + text + `","confidence":0.9}]}}`
}

// fakeDeepgram accepts one websocket, counts the audio it receives and answers
// CloseStream with the scripted messages.
type fakeDeepgram struct {
	mu        sync.Mutex
	auth      string
	audioSent int
	replies   []string
	closeOnly bool
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.mu.Lock()
			f.audioSent += len(msg)
			f.mu.Unlock()
			continue
		}
		if strings.Contains(string(msg), "CloseStream") {
			break
		}
	}
	for _, reply := range f.replies {
		if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			return
		}
	}
	if !f.closeOnly {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata","request_id":"r1"}`))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func newFake(t *testing.T, f *fakeDeepgram) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribe_JoinsFinalResults(t *testing.T) {
	t.Parallel()
	f := &fakeDeepgram{replies: []string{
		result("what", false),
		result("what time", true),
		result(" is it ", true),
	}}
	p := newFake(t, f)

	pcm := make([]byte, 20000)
	tr, err := p.Transcribe(context.Background(), pcm, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "what time is it", tr.Text)
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s from two finals", tr.Duration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assertEqual(t, "auth", "Token secret", f.auth)
	if f.audioSent != len(pcm) {
		t.Errorf("server received %d audio bytes, want %d", f.audioSent, len(pcm))
	}
}

func TestTranscribe_NormalCloseWithoutMetadata(t *testing.T) {
	t.Parallel()
	p := newFake(t, &fakeDeepgram{closeOnly: true, replies: []string{result("stop", true)}})

	tr, err := p.Transcribe(context.Background(), make([]byte, 320), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "stop", tr.Text)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.Transcribe(context.Background(), nil, stt.StreamConfig{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	p, _ := New("bad", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))

	if _, err := p.Transcribe(context.Background(), make([]byte, 320), stt.StreamConfig{}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
