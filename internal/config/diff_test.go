package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/earshot/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		check   func(t *testing.T, d config.ConfigDiff)
		restart []string
	}{
		{
			name:   "no change",
			mutate: func(*config.Config) {},
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.Empty() {
					t.Errorf("expected empty diff, got %+v", d)
				}
			},
		},
		{
			name:   "threshold",
			mutate: func(c *config.Config) { c.Listen.RMSThreshold = 0.03 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.ThresholdChanged || d.NewThreshold != 0.03 {
					t.Errorf("threshold: got %+v", d)
				}
			},
		},
		{
			name:   "silence frames",
			mutate: func(c *config.Config) { c.Listen.SilenceFrames = 9 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.SilenceFramesChanged || d.NewSilenceFrames != 9 {
					t.Errorf("silence frames: got %+v", d)
				}
			},
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("log level: got %+v", d)
				}
			},
		},
		{
			name:   "messages",
			mutate: func(c *config.Config) { c.Turn.Goodbye = "See you." },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.MessagesChanged {
					t.Errorf("messages: got %+v", d)
				}
			},
		},
		{
			name: "restart bound",
			mutate: func(c *config.Config) {
				c.Listen.MaxFrames = 500
				c.Providers.LLM.Model = "llama3.2"
				c.Audio.SampleRate = 48000
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				if d.ThresholdChanged || d.SilenceFramesChanged || d.MessagesChanged {
					t.Errorf("unexpected hot change: %+v", d)
				}
			},
			restart: []string{"audio", "listen", "providers"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			updated := config.Default()
			tc.mutate(updated)

			d := config.Diff(old, updated)
			tc.check(t, d)
			if !slices.Equal(d.RestartRequired, tc.restart) {
				t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, tc.restart)
			}
		})
	}
}
