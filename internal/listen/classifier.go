package listen

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/MrWong99/earshot/pkg/audio"
)

var (
	// ErrFrameSize is returned when a frame does not hold exactly the
	// configured number of samples.
	ErrFrameSize = errors.New("listen: wrong frame size")

	// ErrFrameFormat is returned when a frame's sample rate or channel count
	// differs from the configuration.
	ErrFrameFormat = errors.New("listen: wrong frame format")
)

// Classification is the energy score of one frame.
type Classification struct {
	// RMS is the root-mean-square amplitude as a ratio of full scale.
	RMS float64

	// Speech reports whether RMS exceeded the threshold.
	Speech bool
}

// Classifier labels frames as speech or silence by RMS energy. It holds no
// per-frame state; the threshold may be changed concurrently with Classify.
type Classifier struct {
	format    audio.Format
	frameSize int
	threshold atomic.Uint64
}

// NewClassifier returns a classifier for frames of cfg.FrameSize samples in
// cfg's format.
func NewClassifier(cfg Config) *Classifier {
	c := &Classifier{
		format:    audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		frameSize: cfg.FrameSize,
	}
	c.SetThreshold(cfg.Threshold)
	return c
}

// Threshold returns the current speech threshold.
func (c *Classifier) Threshold() float64 {
	return math.Float64frombits(c.threshold.Load())
}

// SetThreshold replaces the speech threshold.
func (c *Classifier) SetThreshold(t float64) {
	c.threshold.Store(math.Float64bits(t))
}

// Classify scores a single frame. A frame whose length or format does not
// match the configuration is rejected.
func (c *Classifier) Classify(f audio.Frame) (Classification, error) {
	if f.SampleRate != c.format.SampleRate || f.Channels != c.format.Channels {
		return Classification{}, fmt.Errorf("%w: got %dHz/%dch, want %s",
			ErrFrameFormat, f.SampleRate, f.Channels, c.format)
	}
	if want := c.frameSize * c.format.Channels; len(f.Samples) != want {
		return Classification{}, fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(f.Samples), want)
	}
	rms := audio.RMS(f.Samples)
	return Classification{RMS: rms, Speech: rms > c.Threshold()}, nil
}
