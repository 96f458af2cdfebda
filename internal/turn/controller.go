// Package turn runs the listen → transcribe → respond → speak loop.
//
// The [Controller] owns the capture loop. It reads fixed-size frames, labels
// them with a [listen.Classifier], feeds them to a [listen.Endpointer] and
// dispatches every finalized utterance. While the assistant is speaking the
// loop does not read or classify anything, so the assistant never transcribes
// its own voice. Audio captured during that time is discarded.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earshot/internal/listen"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/audio"
)

// ErrRunning is returned by [Controller.Run] when the loop is already running.
var ErrRunning = errors.New("turn: controller already running")

// DefaultSuppressPoll is how long the loop sleeps between gate checks while
// the assistant is speaking.
const DefaultSuppressPoll = 500 * time.Millisecond

// FrameSource yields captured frames. [audio.Stream] satisfies it.
type FrameSource interface {
	// ReadFrame blocks for one frame of size samples. [audio.ErrOverflow] is
	// transient and makes the loop skip the iteration.
	ReadFrame(ctx context.Context, size int) (audio.Frame, error)

	// Flush drops audio captured but not yet read.
	Flush() error
}

// Transcriber turns an utterance into text. It may block for seconds.
type Transcriber interface {
	Transcribe(ctx context.Context, u listen.Utterance) (string, error)
}

// Responder produces the assistant's reply to a transcript.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Synthesizer speaks text and blocks until playback has finished.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Messages are the fixed phrases the controller speaks itself.
type Messages struct {
	// Greeting is spoken once before listening starts. Empty disables it.
	Greeting string

	// Goodbye is spoken when an exit phrase is heard.
	Goodbye string

	// Fallback is spoken when the responder fails. A "%v" verb is replaced
	// with the error text.
	Fallback string

	// TranscribeError is spoken when transcription fails.
	TranscribeError string
}

// DefaultMessages returns the stock English phrases.
func DefaultMessages() Messages {
	return Messages{
		Greeting:        "System online. How can I help?",
		Goodbye:         "Goodbye!",
		Fallback:        "I'm having trouble reaching the brain: %v",
		TranscribeError: "Sorry, I didn't catch that.",
	}
}

// FallbackFor renders the fallback message for err.
func (m Messages) FallbackFor(err error) string {
	if err == nil || !strings.Contains(m.Fallback, "%v") {
		return m.Fallback
	}
	return strings.Replace(m.Fallback, "%v", err.Error(), 1)
}

// Pipeline bundles the collaborators a [Controller] drives.
type Pipeline struct {
	Source      FrameSource
	Classifier  *listen.Classifier
	Endpointer  *listen.Endpointer
	Transcriber Transcriber
	Responder   Responder
	Synthesizer Synthesizer
}

func (p Pipeline) validate() error {
	var errs []error
	if p.Source == nil {
		errs = append(errs, errors.New("frame source is nil"))
	}
	if p.Classifier == nil {
		errs = append(errs, errors.New("classifier is nil"))
	}
	if p.Endpointer == nil {
		errs = append(errs, errors.New("endpointer is nil"))
	}
	if p.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is nil"))
	}
	if p.Responder == nil {
		errs = append(errs, errors.New("responder is nil"))
	}
	if p.Synthesizer == nil {
		errs = append(errs, errors.New("synthesizer is nil"))
	}
	return errors.Join(errs...)
}

// Config holds the controller settings.
type Config struct {
	// FrameSize is the number of samples requested per read.
	FrameSize int

	// SuppressPoll is the sleep between gate checks while speaking.
	// Default: [DefaultSuppressPoll].
	SuppressPoll time.Duration

	// Messages are the controller's own phrases.
	Messages Messages

	// Exit decides which transcripts end the session. Default: substring
	// match on [DefaultExitPhrases].
	Exit ExitMatcher
}

// Option configures a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns the capture loop, the speaking gate and the stop signal.
type Controller struct {
	p       Pipeline
	cfg     Config
	metrics *observe.Metrics

	messages atomic.Pointer[Messages]
	speaking atomic.Bool
	running  atomic.Bool
	stop     *Signal

	// speech tracks the reply goroutine, at most one at a time.
	speech sync.WaitGroup

	// suppressed is loop-local: the previous iteration was skipped.
	suppressed bool
}

// New returns a controller for p.
func New(p Pipeline, cfg Config, opts ...Option) (*Controller, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("turn: invalid pipeline: %w", err)
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = listen.DefaultFrameSize
	}
	if cfg.SuppressPoll <= 0 {
		cfg.SuppressPoll = DefaultSuppressPoll
	}
	if cfg.Exit == nil {
		cfg.Exit = NewSubstringMatcher(DefaultExitPhrases...)
	}

	c := &Controller{
		p:       p,
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
		stop:    NewSignal(),
	}
	for _, o := range opts {
		o(c)
	}
	msgs := cfg.Messages
	c.messages.Store(&msgs)
	return c, nil
}

// Messages returns the phrases currently in use.
func (c *Controller) Messages() Messages { return *c.messages.Load() }

// SetMessages replaces the controller's phrases. Safe to call while running.
func (c *Controller) SetMessages(m Messages) { c.messages.Store(&m) }

// Speaking reports whether speech output is in progress.
func (c *Controller) Speaking() bool { return c.speaking.Load() }

// Running reports whether [Controller.Run] is executing.
func (c *Controller) Running() bool { return c.running.Load() }

// Stop asks the loop to end at the next iteration. It is idempotent.
func (c *Controller) Stop() { c.stop.Set() }

// Stopped reports whether the stop signal has been raised, either by Stop
// or by an exit phrase.
func (c *Controller) Stopped() bool { return c.stop.IsSet() }

// Done is closed once the stop signal is raised.
func (c *Controller) Done() <-chan struct{} { return c.stop.Done() }

// Run speaks the greeting and then loops until the stop signal is observed or
// ctx ends. It returns nil after a stop, ctx.Err() after cancellation, and a
// wrapped error when the frame source fails permanently. Any reply still
// playing is awaited before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)
	defer c.speech.Wait()

	if g := c.Messages().Greeting; g != "" && !c.stop.IsSet() {
		c.say(ctx, g)
	}

	for {
		if c.stop.IsSet() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.step(ctx); err != nil {
			return err
		}
	}
}

// step runs one loop iteration.
func (c *Controller) step(ctx context.Context) error {
	if c.speaking.Load() {
		c.suppressed = true
		c.metrics.SuppressedPolls.Add(ctx, 1)
		t := time.NewTimer(c.cfg.SuppressPoll)
		defer t.Stop()
		select {
		case <-t.C:
		case <-c.stop.Done():
		case <-ctx.Done():
		}
		return nil
	}

	if c.suppressed {
		c.suppressed = false
		if err := c.p.Source.Flush(); err != nil {
			observe.Logger(ctx).Warn("turn: flush after playback failed", "err", err)
		}
	}

	frame, err := c.p.Source.ReadFrame(ctx, c.cfg.FrameSize)
	switch {
	case errors.Is(err, audio.ErrOverflow):
		c.metrics.FrameOverflows.Add(ctx, 1)
		observe.Logger(ctx).Debug("turn: input overflow, skipping frame")
		return nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("turn: read frame: %w", err)
	}

	// A stop raised while the read was blocked drops the frame.
	if c.stop.IsSet() {
		return nil
	}

	cls, err := c.p.Classifier.Classify(frame)
	if err != nil {
		observe.Logger(ctx).Warn("turn: dropping malformed frame", "err", err)
		return nil
	}
	c.metrics.RecordFrame(ctx, cls.Speech)

	u, ok := c.p.Endpointer.Push(frame, cls)
	if ok {
		c.dispatch(ctx, u)
	}
	return nil
}

// dispatch handles one finalized utterance.
func (c *Controller) dispatch(ctx context.Context, u listen.Utterance) {
	ctx, span := observe.StartSpan(ctx, "turn.utterance", trace.WithAttributes(
		attribute.String("utterance.id", u.ID),
		attribute.Int("utterance.frames", u.Len()),
		attribute.Bool("utterance.forced", u.Forced),
	))
	defer span.End()
	log := observe.Logger(ctx).With("utterance_id", u.ID)
	msgs := c.Messages()

	log.Debug("turn: utterance finalized", "frames", u.Len(), "duration", u.Duration())

	text, err := c.transcribe(ctx, u)
	if err != nil {
		c.metrics.RecordUtterance(ctx, u.Duration(), "transcribe_error")
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return
		}
		log.Warn("turn: transcription failed", "err", err)
		c.speakAsync(ctx, msgs.TranscribeError)
		return
	}
	if text == "" {
		c.metrics.RecordUtterance(ctx, u.Duration(), "empty")
		log.Debug("turn: empty transcript")
		return
	}
	log.Info("turn: heard", "text", text)

	if phrase, ok := c.cfg.Exit.Match(text); ok {
		c.metrics.RecordUtterance(ctx, u.Duration(), "exit")
		log.Info("turn: exit phrase detected", "phrase", phrase)
		c.say(ctx, msgs.Goodbye)
		c.stop.Set()
		return
	}

	reply, err := c.respond(ctx, text)
	if err != nil {
		c.metrics.RecordUtterance(ctx, u.Duration(), "respond_error")
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return
		}
		log.Warn("turn: responder failed, speaking fallback", "err", err)
		reply = msgs.FallbackFor(err)
	} else {
		c.metrics.RecordUtterance(ctx, u.Duration(), "responded")
		log.Info("turn: replying", "text", reply)
	}
	c.speakAsync(ctx, reply)
}

func (c *Controller) transcribe(ctx context.Context, u listen.Utterance) (string, error) {
	ctx, span := observe.StartSpan(ctx, "turn.transcribe")
	defer span.End()
	text, err := c.p.Transcriber.Transcribe(ctx, u)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Controller) respond(ctx context.Context, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "turn.respond")
	defer span.End()
	reply, err := c.p.Responder.Respond(ctx, text)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

// acquire raises the speaking gate; the returned func lowers it.
func (c *Controller) acquire(ctx context.Context) (release func()) {
	c.speaking.Store(true)
	c.metrics.Speaking.Add(ctx, 1)
	return func() {
		c.metrics.Speaking.Add(context.WithoutCancel(ctx), -1)
		c.speaking.Store(false)
	}
}

// say speaks text and returns once playback has ended.
func (c *Controller) say(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	release := c.acquire(ctx)
	defer release()
	c.speak(ctx, text)
}

// speakAsync raises the gate and speaks text on its own goroutine so the loop
// keeps polling the gate.
func (c *Controller) speakAsync(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	release := c.acquire(ctx)
	c.speech.Add(1)
	go func() {
		defer c.speech.Done()
		defer release()
		c.speak(ctx, text)
	}()
}

func (c *Controller) speak(ctx context.Context, text string) {
	ctx, span := observe.StartSpan(ctx, "turn.speak", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
	))
	defer span.End()
	if err := c.p.Synthesizer.Speak(ctx, text); err != nil {
		span.RecordError(err)
		if ctx.Err() == nil {
			observe.Logger(ctx).Warn("turn: speech output failed", "err", err)
		}
	}
}
