package config

import "reflect"

// ConfigDiff describes what changed between two configs. Fields that can be
// applied to a running session are reported individually; anything else sets
// RestartRequired.
type ConfigDiff struct {
	ThresholdChanged bool
	NewThreshold     float64

	SilenceFramesChanged bool
	NewSilenceFrames     int

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MessagesChanged covers the greeting, goodbye, fallback and
	// transcription error phrases.
	MessagesChanged bool

	// RestartRequired lists the top-level sections whose other changes only
	// take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.ThresholdChanged && !d.SilenceFramesChanged && !d.LogLevelChanged &&
		!d.MessagesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Listen.RMSThreshold != new.Listen.RMSThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Listen.RMSThreshold
	}
	if old.Listen.SilenceFrames != new.Listen.SilenceFrames {
		d.SilenceFramesChanged = true
		d.NewSilenceFrames = new.Listen.SilenceFrames
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if messagesOf(old.Turn) != messagesOf(new.Turn) {
		d.MessagesChanged = true
	}

	// Mask the hot fields so only restart-bound changes remain.
	oldCold, newCold := coldCopy(old), coldCopy(new)
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldCold.Server, newCold.Server},
		{"audio", oldCold.Audio, newCold.Audio},
		{"listen", oldCold.Listen, newCold.Listen},
		{"turn", oldCold.Turn, newCold.Turn},
		{"assistant", oldCold.Assistant, newCold.Assistant},
		{"providers", oldCold.Providers, newCold.Providers},
		{"resilience", oldCold.Resilience, newCold.Resilience},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

type turnMessages struct {
	greeting, goodbye, fallback, transcribeError string
}

func messagesOf(t TurnConfig) turnMessages {
	return turnMessages{t.Greeting, t.Goodbye, t.FallbackMessage, t.TranscribeErrorMessage}
}

func coldCopy(c *Config) Config {
	cp := *c
	cp.Server.LogLevel = ""
	cp.Listen.RMSThreshold = 0
	cp.Listen.SilenceFrames = 0
	cp.Turn.Greeting = ""
	cp.Turn.Goodbye = ""
	cp.Turn.FallbackMessage = ""
	cp.Turn.TranscribeErrorMessage = ""
	return cp
}
