// Package audio defines the frame type and the device interfaces used to move
// PCM audio between the microphone, the listening pipeline and the speaker.
//
// The two primary abstractions are:
//
//   - [Source] opens a capture [Stream] that yields fixed-size [Frame] values.
//   - [Sink] plays a stream of PCM chunks and blocks until playback ends.
//
// Implementations live in sub-packages (audio/malgo for local sound cards,
// audio/mock for tests). This package lives under pkg/ because external code
// is expected to implement [Source] and [Sink].
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrOverflow reports that the capture device produced audio faster than
	// it was consumed and some of it was discarded. It is transient: the next
	// read will succeed.
	ErrOverflow = errors.New("audio: input overflow")

	// ErrClosed is returned by operations on a closed stream or device.
	ErrClosed = errors.New("audio: closed")
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// PCMDuration returns the playback length of n bytes of 16-bit PCM in f.
func (f Format) PCMDuration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Frame is a fixed-length block of signed 16-bit samples captured atomically
// from an input device. Frames are treated as immutable once captured.
type Frame struct {
	// Samples holds interleaved int16 samples.
	Samples []int16

	// SampleRate in Hz (16000 for the listening pipeline).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp is the wall-clock time at which the frame was read.
	Timestamp time.Time
}

// Format returns the frame's sample format.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// PCM returns the frame as little-endian 16-bit PCM bytes.
func (f Frame) PCM() []byte {
	return Int16ToPCM(f.Samples)
}

// FrameFromPCM builds a frame from little-endian 16-bit PCM bytes. A trailing
// odd byte is ignored.
func FrameFromPCM(pcm []byte, format Format, ts time.Time) Frame {
	return Frame{
		Samples:    PCMToInt16(pcm),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Timestamp:  ts,
	}
}

// Stream is an open capture stream.
type Stream interface {
	// ReadFrame blocks until size samples are available and returns them as a
	// single frame. It returns [ErrOverflow] when captured audio had to be
	// dropped since the previous read; callers should skip and read again.
	ReadFrame(ctx context.Context, size int) (Frame, error)

	// Flush discards any audio captured but not yet read.
	Flush() error

	// Close releases the stream. Further reads return [ErrClosed].
	Close() error
}

// Source opens capture streams.
type Source interface {
	Open(ctx context.Context, format Format) (Stream, error)
}

// Sink plays audio.
type Sink interface {
	// Play consumes PCM chunks in the given format until chunks is closed or
	// ctx is cancelled, and returns once the last chunk has been played.
	Play(ctx context.Context, chunks <-chan []byte, format Format) error
}

// Device is a sound card that can both capture and play.
type Device interface {
	Source
	Sink
	Close() error
}
