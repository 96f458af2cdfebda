// Package malgo implements [audio.Device] on top of miniaudio through the
// github.com/gen2brain/malgo bindings. It captures from and plays to the
// local sound card.
//
// Capture runs in a device callback that appends raw S16 PCM to a bounded
// queue. When the reader falls behind, the oldest audio is discarded and the
// next [audio.Stream.ReadFrame] call reports [audio.ErrOverflow] once.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	malgolib "github.com/gen2brain/malgo"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

const (
	defaultMaxBuffered = 2 * time.Second
	periodMillis       = 20
)

// Option is a functional option for [New].
type Option func(*Device)

// WithCaptureDevice selects the first capture device whose name contains
// name (case-insensitive). The system default is used when empty.
func WithCaptureDevice(name string) Option {
	return func(d *Device) { d.captureName = name }
}

// WithPlaybackDevice selects the first playback device whose name contains
// name (case-insensitive). The system default is used when empty.
func WithPlaybackDevice(name string) Option {
	return func(d *Device) { d.playbackName = name }
}

// WithMaxBuffered bounds how much captured audio may queue up before the
// oldest audio is dropped. Default: 2s.
func WithMaxBuffered(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.maxBuffered = d
		}
	}
}

// WithPlaybackFormat forces the playback device to open in format and
// converts incoming audio to it. By default the device opens in whatever
// format [Device.Play] is called with.
func WithPlaybackFormat(f audio.Format) Option {
	return func(d *Device) { d.playbackFormat = f }
}

// Device is a local sound card.
type Device struct {
	mctx *malgolib.AllocatedContext

	captureName    string
	playbackName   string
	captureID      *malgolib.DeviceID
	playbackID     *malgolib.DeviceID
	maxBuffered    time.Duration
	playbackFormat audio.Format

	closeOnce sync.Once
}

// New initialises a miniaudio context and resolves the configured devices.
func New(opts ...Option) (*Device, error) {
	d := &Device{maxBuffered: defaultMaxBuffered}
	for _, o := range opts {
		o(d)
	}

	mctx, err := malgolib.InitContext(nil, malgolib.ContextConfig{}, func(msg string) {
		slog.Debug("malgo", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	d.mctx = mctx

	if d.captureName != "" {
		id, err := d.findDevice(malgolib.Capture, d.captureName)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.captureID = id
	}
	if d.playbackName != "" {
		id, err := d.findDevice(malgolib.Playback, d.playbackName)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.playbackID = id
	}
	return d, nil
}

func (d *Device) findDevice(kind malgolib.DeviceType, name string) (*malgolib.DeviceID, error) {
	infos, err := d.mctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgo: list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			id := info.ID
			slog.Info("malgo: selected device", "name", info.Name())
			return &id, nil
		}
	}
	return nil, fmt.Errorf("malgo: no device matching %q", name)
}

// Open starts a capture device in format and returns a stream reading from it.
func (d *Device) Open(_ context.Context, format audio.Format) (audio.Stream, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("malgo: invalid capture format %s", format)
	}
	maxBytes := int(int64(format.BytesPerSecond()) * int64(d.maxBuffered) / int64(time.Second))
	s := &stream{
		format: format,
		queue:  newCaptureQueue(maxBytes),
	}

	cfg := malgolib.DefaultDeviceConfig(malgolib.Capture)
	cfg.PeriodSizeInMilliseconds = periodMillis
	cfg.Capture.Format = malgolib.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if d.captureID != nil {
		cfg.Capture.DeviceID = d.captureID.Pointer()
	}

	dev, err := malgolib.InitDevice(d.mctx.Context, cfg, malgolib.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			s.queue.write(in)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start capture device: %w", err)
	}
	s.dev = dev
	return s, nil
}

// Play opens a playback device, plays every chunk and returns once the
// device has drained the last sample or ctx is cancelled.
func (d *Device) Play(ctx context.Context, chunks <-chan []byte, format audio.Format) error {
	if d.playbackFormat.SampleRate > 0 && d.playbackFormat.Channels > 0 && d.playbackFormat != format {
		chunks = audio.ConvertStream(chunks, format, d.playbackFormat)
		format = d.playbackFormat
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		go audio.Drain(chunks)
		return fmt.Errorf("malgo: invalid playback format %s", format)
	}

	p := newPlayback()

	cfg := malgolib.DefaultDeviceConfig(malgolib.Playback)
	cfg.PeriodSizeInMilliseconds = periodMillis
	cfg.Playback.Format = malgolib.FormatS16
	cfg.Playback.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if d.playbackID != nil {
		cfg.Playback.DeviceID = d.playbackID.Pointer()
	}

	dev, err := malgolib.InitDevice(d.mctx.Context, cfg, malgolib.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			p.fill(out)
		},
	})
	if err != nil {
		go audio.Drain(chunks)
		return fmt.Errorf("malgo: init playback device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		go audio.Drain(chunks)
		return fmt.Errorf("malgo: start playback device: %w", err)
	}
	defer func() { _ = dev.Stop() }()

feed:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break feed
			}
			p.write(chunk)
		case <-ctx.Done():
			go audio.Drain(chunks)
			return ctx.Err()
		}
	}
	p.finish()

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the miniaudio context. Streams opened from d must be closed
// first.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.mctx == nil {
			return
		}
		err = d.mctx.Uninit()
		d.mctx.Free()
	})
	return err
}

// stream is an open capture device.
type stream struct {
	format audio.Format
	queue  *captureQueue
	dev    *malgolib.Device

	closeOnce sync.Once
}

func (s *stream) ReadFrame(ctx context.Context, size int) (audio.Frame, error) {
	if size <= 0 {
		return audio.Frame{}, fmt.Errorf("malgo: invalid frame size %d", size)
	}
	pcm, err := s.queue.read(ctx, size*s.format.Channels*2)
	if err != nil {
		return audio.Frame{}, err
	}
	return audio.FrameFromPCM(pcm, s.format, time.Now()), nil
}

func (s *stream) Flush() error {
	s.queue.reset()
	return nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.queue.close()
		if s.dev != nil {
			_ = s.dev.Stop()
			s.dev.Uninit()
		}
	})
	return nil
}
