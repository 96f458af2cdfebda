package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for chunk := range ch {
		out = append(out, chunk...)
	}
	return out
}

// coquiServer records synthesis requests and answers each with a WAV file.
type coquiServer struct {
	mu      sync.Mutex
	texts   []string
	queries []map[string]string
	bodies  []xttsRequest
	wav     []byte
	status  int
}

func (s *coquiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	switch r.URL.Path {
	case standardEndpoint:
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		s.queries = append(s.queries, q)
		s.texts = append(s.texts, q["text"])
	case xttsEndpoint:
		var body xttsRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.bodies = append(s.bodies, body)
		s.texts = append(s.texts, body.Text)
	default:
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	status, wav := s.status, s.wav
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "model not loaded", status)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(wav)
}

func newServer(t *testing.T, wav []byte) (*coquiServer, string) {
	t.Helper()
	s := &coquiServer{wav: wav}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		url      string
		opts     []Option
		wantErr  bool
		wantMode APIMode
		wantRate int
	}{
		{name: "defaults", url: "http://localhost:5002/", wantMode: APIModeStandard, wantRate: 22050},
		{name: "xtts with rate", url: "http://localhost:8002", opts: []Option{WithAPIMode(APIModeXTTS), WithOutputSampleRate(48000)}, wantMode: APIModeXTTS, wantRate: 48000},
		{name: "empty url", url: "", wantErr: true},
		{name: "bad rate", url: "http://x", opts: []Option{WithOutputSampleRate(-1)}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.url, tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.apiMode != tc.wantMode {
				t.Errorf("apiMode = %q, want %q", p.apiMode, tc.wantMode)
			}
			if got := p.OutputFormat(); got != (audio.Format{SampleRate: tc.wantRate, Channels: 1}) {
				t.Errorf("OutputFormat = %v", got)
			}
			if p.serverURL[len(p.serverURL)-1] == '/' {
				t.Errorf("serverURL %q keeps trailing slash", p.serverURL)
			}
		})
	}
}

func TestParseAPIMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    APIMode
		wantErr bool
	}{
		{"", APIModeStandard, false},
		{"standard", APIModeStandard, false},
		{"XTTS", APIModeXTTS, false},
		{"piper", "", true},
	}
	for _, tc := range tests {
		got, err := ParseAPIMode(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseAPIMode(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestSynthesizeStream_Standard(t *testing.T) {
	t.Parallel()
	pcm := audio.Int16ToPCM([]int16{100, -100, 200, -200})
	srv, url := newServer(t, audio.EncodeWAV(pcm, audio.Format{SampleRate: 22050, Channels: 1}))

	p, err := New(url, WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.SynthesizeStream(context.Background(), tts.Text("Hallo. Wie geht's?"), types.VoiceProfile{ID: "p225"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	got := drainAudio(ch)
	if len(got) != 2*len(pcm) {
		t.Errorf("got %d bytes, want %d (header stripped, two sentences)", len(got), 2*len(pcm))
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.queries) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(srv.queries))
	}
	for _, q := range srv.queries {
		if q["speaker_id"] != "p225" || q["language_id"] != "de" {
			t.Errorf("query = %v", q)
		}
	}
	texts := slices.Sorted(slices.Values(srv.texts))
	if !slices.Equal(texts, []string{"Hallo.", "Wie geht's?"}) {
		t.Errorf("texts = %q", texts)
	}
}

func TestSynthesizeStream_XTTS(t *testing.T) {
	t.Parallel()
	pcm := audio.Int16ToPCM([]int16{1, 2, 3, 4})
	srv, url := newServer(t, audio.EncodeWAV(pcm, audio.Format{SampleRate: 24000, Channels: 1}))

	p, err := New(url, WithAPIMode(APIModeXTTS), WithOutputSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.SynthesizeStream(context.Background(), tts.Text("Hello."), types.VoiceProfile{ID: "Ana Florence", Language: "en"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if got := drainAudio(ch); string(got) != string(pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	want := xttsRequest{Text: "Hello.", SpeakerWav: "Ana Florence", Language: "en"}
	if len(srv.bodies) != 1 || srv.bodies[0] != want {
		t.Errorf("bodies = %+v, want [%+v]", srv.bodies, want)
	}
}

func TestSynthesizeStream_XTTSRequiresVoice(t *testing.T) {
	t.Parallel()
	p, _ := New("http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := p.SynthesizeStream(context.Background(), tts.Text("hi"), types.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice in XTTS mode")
	}
}

func TestSynthesizeStream_ConvertsFormat(t *testing.T) {
	t.Parallel()
	// 4 stereo frames at 11025 Hz become 8 mono samples at 22050 Hz.
	stereo := audio.Int16ToPCM([]int16{100, 300, 100, 300, 100, 300, 100, 300})
	_, url := newServer(t, audio.EncodeWAV(stereo, audio.Format{SampleRate: 11025, Channels: 2}))

	p, _ := New(url)
	ch, err := p.SynthesizeStream(context.Background(), tts.Text("x"), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	samples := audio.PCMToInt16(drainAudio(ch))
	if len(samples) != 8 {
		t.Fatalf("got %d samples, want 8", len(samples))
	}
	for i, s := range samples {
		if s != 200 {
			t.Errorf("sample %d = %d, want 200", i, s)
		}
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	t.Parallel()
	srv, url := newServer(t, nil)
	srv.mu.Lock()
	srv.status = http.StatusInternalServerError
	srv.mu.Unlock()

	p, _ := New(url)
	if _, err := p.synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Error("expected error for 500 response")
	}

	ch, err := p.SynthesizeStream(context.Background(), tts.Text("hi"), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if got := drainAudio(ch); len(got) != 0 {
		t.Errorf("got %d bytes from a failing server", len(got))
	}
}

func TestSynthesize_NotWAV(t *testing.T) {
	t.Parallel()
	_, url := newServer(t, []byte("definitely not audio"))
	p, _ := New(url)
	if _, err := p.synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Error("expected error for non-WAV body")
	}
}

func TestSynthesizeStream_ContextCancellation(t *testing.T) {
	t.Parallel()
	_, url := newServer(t, audio.EncodeWAV(make([]byte, 64), audio.Format{SampleRate: 22050, Channels: 1}))
	p, _ := New(url)

	ctx, cancel := context.WithCancel(context.Background())
	text := make(chan string)
	ch, err := p.SynthesizeStream(ctx, text, types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		drainAudio(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audio channel not closed after cancel")
	}
}
