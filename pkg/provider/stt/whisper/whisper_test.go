package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/stt/whisper"
	"github.com/MrWong99/earshot/pkg/types"
)

// ---- helpers ----------------------------------------------------------------

// upload is what the mock server saw in one /inference request.
type upload struct {
	fields map[string]string
	wav    []byte
}

// newMockServer answers POST /inference with responseText and records every
// upload.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []upload) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u := upload{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			u.fields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u.wav, _ = io.ReadAll(f)
		mu.Lock()
		uploads = append(uploads, u)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

// makeSpeechPCM generates a 440 Hz sine wave of the given sample count.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	t.Parallel()
	_, err := whisper.New("http://localhost:8080",
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---- Transcribe ---------------------------------------------------------------

func TestTranscribe_UploadsWAVAndTrimsText(t *testing.T) {
	t.Parallel()
	srv, uploads := newMockServer(t, "  what time is it \n")
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := makeSpeechPCM(16000)
	tr, err := p.Transcribe(context.Background(), pcm, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Keywords:   []types.KeywordBoost{{Keyword: "Earshot"}, {Keyword: "Gemma"}},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "what time is it" {
		t.Errorf("Text = %q, want trimmed text", tr.Text)
	}
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if tr.Language != "en" {
		t.Errorf("Language = %q, want provider default en", tr.Language)
	}

	got := uploads()
	if len(got) != 1 {
		t.Fatalf("server saw %d uploads, want 1", len(got))
	}
	u := got[0]
	if len(u.wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(u.wav), 44+len(pcm))
	}
	if string(u.wav[0:4]) != "RIFF" || string(u.wav[8:12]) != "WAVE" || string(u.wav[36:40]) != "data" {
		t.Error("upload is not a RIFF/WAVE file")
	}
	if sr := binary.LittleEndian.Uint32(u.wav[24:28]); sr != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", sr)
	}
	if ch := binary.LittleEndian.Uint16(u.wav[22:24]); ch != 1 {
		t.Errorf("wav channels = %d, want 1", ch)
	}
	for k, want := range map[string]string{
		"language":        "en",
		"model":           "base.en",
		"response_format": "json",
		"prompt":          "Earshot, Gemma",
	} {
		if u.fields[k] != want {
			t.Errorf("field %s = %q, want %q", k, u.fields[k], want)
		}
	}
}

func TestTranscribe_ConfigLanguageOverridesDefault(t *testing.T) {
	t.Parallel()
	srv, uploads := newMockServer(t, "hallo")
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), makeSilencePCM(1600), stt.StreamConfig{Language: "de"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Language != "de" || uploads()[0].fields["language"] != "de" {
		t.Errorf("language not forwarded: transcript %q, field %q", tr.Language, uploads()[0].fields["language"])
	}
	if _, ok := uploads()[0].fields["prompt"]; ok {
		t.Error("prompt sent without keywords")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:1")
	for _, pcm := range [][]byte{nil, {0x01}} {
		if _, err := p.Transcribe(context.Background(), pcm, stt.StreamConfig{}); !errors.Is(err, stt.ErrEmptyAudio) {
			t.Errorf("Transcribe(%d bytes) err = %v, want ErrEmptyAudio", len(pcm), err)
		}
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), makeSpeechPCM(160), stt.StreamConfig{})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model exploded") {
		t.Errorf("error %q lacks status and body", err)
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), makeSpeechPCM(160), stt.StreamConfig{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "never")
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, makeSpeechPCM(160), stt.StreamConfig{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTranscribe_StereoDuration(t *testing.T) {
	t.Parallel()
	srv, uploads := newMockServer(t, "ok")
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), makeSilencePCM(48000*2), stt.StreamConfig{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if ch := binary.LittleEndian.Uint16(uploads()[0].wav[22:24]); ch != 2 {
		t.Errorf("wav channels = %d, want 2", ch)
	}
}
