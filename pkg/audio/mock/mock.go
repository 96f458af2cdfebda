// Package mock provides in-memory mock implementations of the [audio.Stream],
// [audio.Source], [audio.Sink] and [audio.Device] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := &mock.Stream{Reads: []mock.Read{
//	    {Frame: speechFrame},
//	    {Err: audio.ErrOverflow},
//	}}
//	src := &mock.Source{OpenResult: stream}
//	s, err := src.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Read is one scripted result of [Stream.ReadFrame].
type Read struct {
	Frame audio.Frame
	Err   error
}

// Stream is a mock implementation of [audio.Stream]. Reads are served in order.
// Once the script is exhausted ReadFrame returns [audio.ErrClosed], or blocks
// until ctx is done when BlockWhenEmpty is set.
type Stream struct {
	mu sync.Mutex

	// Reads is the script served by ReadFrame.
	Reads []Read

	// BlockWhenEmpty makes ReadFrame wait for ctx cancellation after the
	// script is exhausted.
	BlockWhenEmpty bool

	// FlushError is returned by [Stream.Flush].
	FlushError error

	// CloseError is returned by [Stream.Close].
	CloseError error

	// ReadSizes records the size argument of every ReadFrame call.
	ReadSizes []int

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

// ReadFrame implements [audio.Stream].
func (s *Stream) ReadFrame(ctx context.Context, size int) (audio.Frame, error) {
	s.mu.Lock()
	s.ReadSizes = append(s.ReadSizes, size)
	if s.next < len(s.Reads) {
		r := s.Reads[s.next]
		s.next++
		s.mu.Unlock()
		return r.Frame, r.Err
	}
	block := s.BlockWhenEmpty
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return audio.Frame{}, ctx.Err()
	}
	return audio.Frame{}, audio.ErrClosed
}

// Flush implements [audio.Stream].
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountFlush++
	return s.FlushError
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// ReadCount returns the number of ReadFrame calls so far.
func (s *Stream) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ReadSizes)
}

// FlushCount returns the number of Flush calls so far.
func (s *Stream) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountFlush
}

// Remaining returns the number of scripted reads not yet served.
func (s *Stream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Reads) - s.next
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenResult is the [audio.Stream] returned by Open.
	OpenResult audio.Stream

	// OpenError is the error returned by Open.
	OpenError error

	// OpenCalls records the format argument of every Open call.
	OpenCalls []audio.Format
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, format audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, format)
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	return s.OpenResult, nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records one [Sink.Play] invocation.
type PlayCall struct {
	Format audio.Format
	Chunks [][]byte
}

// Sink is a mock implementation of [audio.Sink]. Play drains the chunk
// channel and records everything it received.
type Sink struct {
	mu sync.Mutex

	// PlayError is returned by Play after the channel has been drained.
	PlayError error

	// PlayCalls records every Play invocation.
	PlayCalls []PlayCall
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, chunks <-chan []byte, format audio.Format) error {
	call := PlayCall{Format: format}
loop:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			call.Chunks = append(call.Chunks, c)
		case <-ctx.Done():
			go audio.Drain(chunks)
			break loop
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = append(s.PlayCalls, call)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.PlayError
}

// Calls returns a copy of the recorded Play calls.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device] combining a [Source] and
// a [Sink].
type Device struct {
	Source
	Sink

	mu sync.Mutex

	// CloseError is returned by Close.
	CloseError error

	closeCount int
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return d.CloseError
}

// CloseCount returns how many times Close was called.
func (d *Device) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}
