package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/listen"
	"github.com/MrWong99/earshot/internal/turn"
)

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.ChunkSize != 1024 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Listen.RMSThreshold != listen.DefaultThreshold {
		t.Errorf("rms_threshold: got %g, want %g", cfg.Listen.RMSThreshold, listen.DefaultThreshold)
	}
	if cfg.Listen.SilenceFrames != listen.DefaultSilenceFrames {
		t.Errorf("silence_frames: got %d, want %d", cfg.Listen.SilenceFrames, listen.DefaultSilenceFrames)
	}
	if cfg.Turn.SuppressPoll != 500*time.Millisecond {
		t.Errorf("suppress_poll: got %s", cfg.Turn.SuppressPoll)
	}
	if len(cfg.Turn.ExitPhrases) != len(turn.DefaultExitPhrases) {
		t.Errorf("exit_phrases: got %v", cfg.Turn.ExitPhrases)
	}
	if cfg.Turn.Greeting != turn.DefaultMessages().Greeting {
		t.Errorf("greeting: got %q", cfg.Turn.Greeting)
	}
	if cfg.Assistant.SystemPrompt != config.DefaultSystemPrompt {
		t.Errorf("system_prompt: got %q", cfg.Assistant.SystemPrompt)
	}
	p := cfg.Providers
	if p.Audio.Name != "malgo" || p.STT.Name != "whisper-native" || p.LLM.Name != "ollama" || p.TTS.Name != "coqui" {
		t.Errorf("providers: got audio=%q stt=%q llm=%q tts=%q", p.Audio.Name, p.STT.Name, p.LLM.Name, p.TTS.Name)
	}
	if p.LLM.Model != config.DefaultLLMModel {
		t.Errorf("llm model: got %q", p.LLM.Model)
	}
	if cfg.Resilience.FailureThreshold != 5 || cfg.Resilience.ResetTimeout != 30*time.Second || cfg.Resilience.HalfOpenMax != 3 {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()
	const yaml = `
server:
  log_level: debug
  listen_addr: ":9090"
audio:
  sample_rate: 48000
  channels: 2
  chunk_size: 960
listen:
  rms_threshold: 0.05
  silence_frames: 10
  max_frames: 400
turn:
  suppress_poll: 250ms
  exit_phrases: ["bye now"]
  exit_match: word
  greeting: "Yes?"
assistant:
  history_turns: 3
  temperature: 0.4
  voice: en_1
  voice_speed: 1.2
providers:
  stt:
    name: openai
    api_key: sk-test
    model: whisper-1
  llm:
    name: openai
    model: gpt-4o-mini
  tts:
    name: openai
    options:
      timeout: 20s
  llm_fallbacks:
    - name: ollama
      model: llama3.2
resilience:
  reset_timeout: 1m
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if got := cfg.Audio.FrameDuration(); got != 20*time.Millisecond {
		t.Errorf("FrameDuration: got %s, want 20ms", got)
	}
	if cfg.Listen.RMSThreshold != 0.05 || cfg.Listen.SilenceFrames != 10 || cfg.Listen.MaxFrames != 400 {
		t.Errorf("listen: got %+v", cfg.Listen)
	}
	if cfg.Turn.SuppressPoll != 250*time.Millisecond {
		t.Errorf("suppress_poll: got %s", cfg.Turn.SuppressPoll)
	}
	if len(cfg.Turn.ExitPhrases) != 1 || cfg.Turn.ExitPhrases[0] != "bye now" {
		t.Errorf("exit_phrases: got %v", cfg.Turn.ExitPhrases)
	}
	if cfg.Turn.ExitMatch != config.ExitMatchWord {
		t.Errorf("exit_match: got %q", cfg.Turn.ExitMatch)
	}
	if cfg.Turn.Greeting != "Yes?" {
		t.Errorf("greeting: got %q", cfg.Turn.Greeting)
	}
	if cfg.Turn.Goodbye != turn.DefaultMessages().Goodbye {
		t.Errorf("goodbye should keep default, got %q", cfg.Turn.Goodbye)
	}
	if got := cfg.Providers.TTS.OptDuration("timeout", 0); got != 20*time.Second {
		t.Errorf("tts timeout option: got %s", got)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Model != "llama3.2" {
		t.Errorf("llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Resilience.ResetTimeout != time.Minute || cfg.Resilience.FailureThreshold != 5 {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("EARSHOT_TEST_KEY", "sk-from-env")
	const yaml = `
providers:
  llm:
    name: openai
    api_key: ${EARSHOT_TEST_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.LLM.APIKey, "sk-from-env")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("listen:\n  rms_treshold: 0.1\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "channels",
			yaml: "audio:\n  channels: 6\n",
			want: []string{"audio.channels"},
		},
		{
			name: "threshold out of range",
			yaml: "listen:\n  rms_threshold: 1.5\n",
			want: []string{"listen.rms_threshold"},
		},
		{
			name: "max frames below silence",
			yaml: "listen:\n  silence_frames: 20\n  max_frames: 10\n",
			want: []string{"listen.max_frames"},
		},
		{
			name: "exit match",
			yaml: "turn:\n  exit_match: fuzzy\n",
			want: []string{"turn.exit_match"},
		},
		{
			name: "assistant ranges",
			yaml: "assistant:\n  temperature: 3\n  voice_speed: 4\n  history_turns: -1\n",
			want: []string{"assistant.temperature", "assistant.voice_speed", "assistant.history_turns"},
		},
		{
			name: "fallback without name",
			yaml: "providers:\n  stt_fallbacks:\n    - model: base\n",
			want: []string{"providers.stt_fallbacks[0].name"},
		},
		{
			name: "all problems reported",
			yaml: "server:\n  log_level: loud\nlisten:\n  silence_frames: -1\nresilience:\n  half_open_max: -2\n",
			want: []string{"server.log_level", "listen.silence_frames", "resilience.half_open_max"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  tts:\n    name: my-custom-tts\n"))
	if err != nil {
		t.Fatalf("unknown provider name should not fail validation: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeFile(t, path, "listen:\n  silence_frames: 12\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen.SilenceFrames != 12 {
		t.Errorf("silence_frames: got %d, want 12", cfg.Listen.SilenceFrames)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want string
	}{
		{config.LogDebug, "DEBUG"},
		{config.LogInfo, "INFO"},
		{config.LogWarn, "WARN"},
		{config.LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tc := range tests {
		if got := tc.in.Level().String(); got != tc.want {
			t.Errorf("LogLevel(%q).Level() = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"mode":    "xtts",
		"rate":    22050,
		"speed":   1.5,
		"timeout": "3s",
		"retries": "4",
		"secs":    7,
	}}
	if got := e.OptString("mode", ""); got != "xtts" {
		t.Errorf("OptString: got %q", got)
	}
	if got := e.OptString("missing", "def"); got != "def" {
		t.Errorf("OptString default: got %q", got)
	}
	if got := e.OptInt("rate", 0); got != 22050 {
		t.Errorf("OptInt: got %d", got)
	}
	if got := e.OptInt("retries", 0); got != 4 {
		t.Errorf("OptInt from string: got %d", got)
	}
	if got := e.OptInt("mode", 9); got != 9 {
		t.Errorf("OptInt non-number: got %d", got)
	}
	if got := e.OptFloat("speed", 0); got != 1.5 {
		t.Errorf("OptFloat: got %g", got)
	}
	if got := e.OptFloat("rate", 0); got != 22050 {
		t.Errorf("OptFloat from int: got %g", got)
	}
	if got := e.OptDuration("timeout", 0); got != 3*time.Second {
		t.Errorf("OptDuration: got %s", got)
	}
	if got := e.OptDuration("secs", 0); got != 7*time.Second {
		t.Errorf("OptDuration from int: got %s", got)
	}
	if got := e.OptDuration("missing", time.Minute); got != time.Minute {
		t.Errorf("OptDuration default: got %s", got)
	}
}
