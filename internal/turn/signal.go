package turn

import "sync"

// Signal is a one-shot cancellation flag. Set may be called any number of
// times from any goroutine; only the first call has an effect.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set raises the signal.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
