// Package listen turns a stream of fixed-size audio frames into finalized
// utterances.
//
// A [Classifier] labels every frame as speech or silence by comparing its RMS
// energy against a threshold. An [Endpointer] consumes the labelled frames,
// buffers everything from the first speech frame onwards and hands the buffer
// off as an [Utterance] once a long enough run of silent frames follows.
package listen

import (
	"errors"
	"fmt"
	"time"
)

// Defaults tuned for 16 kHz mono captured in 1024-sample frames (64 ms).
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameSize  = 1024

	// DefaultThreshold is the RMS level, as a ratio of full scale, above which
	// a frame counts as speech.
	DefaultThreshold = 0.012

	// DefaultSilenceFrames is the number of consecutive silent frames that
	// ends an utterance (about 1.15 s at the default frame size).
	DefaultSilenceFrames = 18
)

// Config holds the tunables shared by [Classifier] and [Endpointer].
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// Channels of incoming frames.
	Channels int

	// FrameSize is the number of samples per channel in every frame.
	FrameSize int

	// Threshold is the RMS amplitude ratio in (0, 1) above which a frame is
	// speech.
	Threshold float64

	// SilenceFrames is the length of the trailing silence run, in frames,
	// that finalizes an utterance.
	SilenceFrames int

	// MaxFrames force-finalizes an utterance that grows this long. Zero
	// disables the limit.
	MaxFrames int
}

// DefaultConfig returns the 16 kHz / 1024-sample configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		FrameSize:     DefaultFrameSize,
		Threshold:     DefaultThreshold,
		SilenceFrames: DefaultSilenceFrames,
	}
}

// FrameDuration returns the playback length of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// HangTime returns how long the speaker must stay silent before an utterance
// is finalized.
func (c Config) HangTime() time.Duration {
	return time.Duration(c.SilenceFrames) * c.FrameDuration()
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels must be positive, got %d", c.Channels))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", c.FrameSize))
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 1), got %g", c.Threshold))
	}
	if c.SilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("silence frames must be at least 1, got %d", c.SilenceFrames))
	}
	if c.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("max frames must not be negative, got %d", c.MaxFrames))
	}
	if c.MaxFrames > 0 && c.MaxFrames <= c.SilenceFrames {
		errs = append(errs, fmt.Errorf("max frames (%d) must exceed silence frames (%d)", c.MaxFrames, c.SilenceFrames))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("listen: invalid config: %w", err)
	}
	return nil
}
