package malgo

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
)

// captureQueue is the hand-off between the capture callback and readers. The
// callback never blocks: when the queue is full the oldest bytes are dropped
// and the overflow is reported to the next reader.
type captureQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	buf        []byte
	max        int
	overflowed bool
	closed     bool
}

func newCaptureQueue(maxBytes int) *captureQueue {
	if maxBytes < 2 {
		maxBytes = 2
	}
	maxBytes &^= 1
	q := &captureQueue{max: maxBytes, buf: make([]byte, 0, maxBytes)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *captureQueue) write(pcm []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.buf = append(q.buf, pcm...)
	if over := len(q.buf) - q.max; over > 0 {
		over += over & 1
		q.buf = append(q.buf[:0], q.buf[over:]...)
		q.overflowed = true
	}
	q.cond.Signal()
}

// read blocks until n bytes are queued. It returns [audio.ErrOverflow] once
// after audio was dropped, without consuming anything.
func (q *captureQueue) read(ctx context.Context, n int) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return nil, audio.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.overflowed {
			q.overflowed = false
			return nil, audio.ErrOverflow
		}
		if len(q.buf) >= n {
			break
		}
		q.cond.Wait()
	}
	out := make([]byte, n)
	copy(out, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	return out, nil
}

func (q *captureQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = q.buf[:0]
	q.overflowed = false
}

func (q *captureQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// playback buffers PCM for the playback callback and signals once the
// producer finished and every byte was handed to the device.
type playback struct {
	mu       sync.Mutex
	buf      []byte
	done     bool
	drained  chan struct{}
	drainOne sync.Once
}

func newPlayback() *playback {
	return &playback{drained: make(chan struct{})}
}

func (p *playback) write(pcm []byte) {
	p.mu.Lock()
	p.buf = append(p.buf, pcm...)
	p.mu.Unlock()
}

func (p *playback) finish() {
	p.mu.Lock()
	p.done = true
	empty := len(p.buf) == 0
	p.mu.Unlock()
	if empty {
		p.drainOne.Do(func() { close(p.drained) })
	}
}

// fill copies queued audio into out and pads the remainder with silence.
func (p *playback) fill(out []byte) {
	p.mu.Lock()
	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	finished := p.done && len(p.buf) == 0
	p.mu.Unlock()

	clear(out[n:])
	if finished {
		p.drainOne.Do(func() { close(p.drained) })
	}
}
