package listen

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/pkg/audio"
)

// State is the endpointer's collection state.
type State int

const (
	// StateIdle means no utterance is in progress; silent frames are dropped.
	StateIdle State = iota

	// StateCollecting means speech was heard and frames are being buffered.
	StateCollecting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCollecting:
		return "COLLECTING"
	default:
		return "UNKNOWN"
	}
}

// Utterance is one continuous speech episode, trailing silence included.
type Utterance struct {
	// ID uniquely identifies the utterance in logs and traces.
	ID string

	// Frames are the buffered frames in capture order.
	Frames []audio.Frame

	// SpeechFrames counts the frames labelled as speech.
	SpeechFrames int

	// TrailingSilence is the length of the silence run that ended the
	// utterance.
	TrailingSilence int

	// Forced is set when the utterance was cut at the max frame limit rather
	// than by trailing silence.
	Forced bool
}

// Len returns the number of frames in the utterance.
func (u Utterance) Len() int { return len(u.Frames) }

// Start returns the capture time of the first frame.
func (u Utterance) Start() time.Time {
	if len(u.Frames) == 0 {
		return time.Time{}
	}
	return u.Frames[0].Timestamp
}

// Duration returns the total audio length.
func (u Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// Format returns the sample format of the utterance.
func (u Utterance) Format() audio.Format {
	if len(u.Frames) == 0 {
		return audio.Format{}
	}
	return u.Frames[0].Format()
}

// PCM concatenates all frames as little-endian 16-bit PCM.
func (u Utterance) PCM() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]byte, 0, n*2)
	for _, f := range u.Frames {
		out = append(out, f.PCM()...)
	}
	return out
}

// Endpointer is a fixed hang-time endpointer. It is driven by one goroutine;
// only the silence limit may be changed from elsewhere.
type Endpointer struct {
	silenceLimit atomic.Int64
	maxFrames    int

	state        State
	buf          []audio.Frame
	silenceRun   int
	speechFrames int
}

// NewEndpointer returns an idle endpointer configured from cfg.
func NewEndpointer(cfg Config) *Endpointer {
	e := &Endpointer{maxFrames: cfg.MaxFrames}
	e.SetSilenceLimit(cfg.SilenceFrames)
	return e
}

// SetSilenceLimit changes how many trailing silent frames end an utterance.
// Values below 1 are raised to 1.
func (e *Endpointer) SetSilenceLimit(n int) {
	e.silenceLimit.Store(int64(max(n, 1)))
}

// SilenceLimit returns the current silence limit.
func (e *Endpointer) SilenceLimit() int {
	return int(e.silenceLimit.Load())
}

// State returns the current state.
func (e *Endpointer) State() State { return e.state }

// Len returns the number of buffered frames.
func (e *Endpointer) Len() int { return len(e.buf) }

// SilenceRun returns the number of consecutive silent frames at the end of
// the buffer.
func (e *Endpointer) SilenceRun() int { return e.silenceRun }

// Reset drops any partial utterance and returns to [StateIdle].
func (e *Endpointer) Reset() {
	e.state = StateIdle
	e.buf = nil
	e.silenceRun = 0
	e.speechFrames = 0
}

// Push advances the state machine by one classified frame. When the frame
// completes an utterance it is returned with ok set and the endpointer is
// idle again.
func (e *Endpointer) Push(f audio.Frame, c Classification) (u Utterance, ok bool) {
	switch e.state {
	case StateIdle:
		if !c.Speech {
			return Utterance{}, false
		}
		e.buf = append(make([]audio.Frame, 0, 2*e.SilenceLimit()), f)
		e.speechFrames = 1
		e.silenceRun = 0
		e.state = StateCollecting

	case StateCollecting:
		e.buf = append(e.buf, f)
		if c.Speech {
			e.speechFrames++
			e.silenceRun = 0
		} else {
			e.silenceRun++
		}
		if e.silenceRun >= e.SilenceLimit() {
			return e.finalize(false), true
		}
	}

	if e.maxFrames > 0 && len(e.buf) >= e.maxFrames {
		return e.finalize(true), true
	}
	return Utterance{}, false
}

// Process classifies f and pushes it. A classification error is returned
// without touching the endpointer.
func (e *Endpointer) Process(c *Classifier, f audio.Frame) (Utterance, bool, error) {
	cls, err := c.Classify(f)
	if err != nil {
		return Utterance{}, false, err
	}
	u, ok := e.Push(f, cls)
	return u, ok, nil
}

func (e *Endpointer) finalize(forced bool) Utterance {
	u := Utterance{
		ID:              uuid.NewString(),
		Frames:          e.buf,
		SpeechFrames:    e.speechFrames,
		TrailingSilence: e.silenceRun,
		Forced:          forced,
	}
	e.Reset()
	return u
}
