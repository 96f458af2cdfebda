package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/types"
)

// ResponderConfig shapes the completion requests a [Responder] sends.
type ResponderConfig struct {
	// SystemPrompt is sent with every request.
	SystemPrompt string

	// HistoryTurns is how many previous exchanges are replayed before the
	// new user message. Zero makes every request single-turn.
	HistoryTurns int

	// Temperature and MaxTokens are passed through; zero keeps the provider
	// default. MaxTokens is capped at the model's output limit.
	Temperature float64
	MaxTokens   int
}

// Responder adapts an [llm.Provider] to turn.Responder.
type Responder struct {
	provider llm.Provider
	name     string
	cfg      ResponderConfig
	opts     options

	mu      sync.Mutex
	history []types.Message
}

// NewResponder returns a Responder backed by p.
func NewResponder(p llm.Provider, name string, cfg ResponderConfig, opts ...Option) *Responder {
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	return &Responder{provider: p, name: name, cfg: cfg, opts: buildOptions(opts)}
}

// Respond asks the model for a reply to text. Streaming models are consumed
// through [llm.Collect]. A blank reply is reported as [llm.ErrEmptyResponse].
func (r *Responder) Respond(ctx context.Context, text string) (string, error) {
	user := types.Message{Role: types.RoleUser, Content: text}
	req := r.request(user)

	start := time.Now()
	reply, err := r.complete(ctx, req)
	if err == nil && reply == "" {
		err = llm.ErrEmptyResponse
	}
	r.opts.metrics.RecordStage(ctx, "llm", r.name, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("voice: respond: %w", err)
	}

	r.remember(user, types.Message{Role: types.RoleAssistant, Content: reply})
	return reply, nil
}

func (r *Responder) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if !r.provider.Capabilities().SupportsStreaming {
		resp, err := r.provider.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Content), nil
	}
	ch, err := r.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	reply, err := llm.Collect(ctx, ch)
	return strings.TrimSpace(reply), err
}

func (r *Responder) request(user types.Message) llm.CompletionRequest {
	r.mu.Lock()
	msgs := make([]types.Message, 0, len(r.history)+1)
	msgs = append(msgs, r.history...)
	r.mu.Unlock()
	msgs = append(msgs, user)

	maxTokens := r.cfg.MaxTokens
	if limit := r.provider.Capabilities().MaxOutputTokens; limit > 0 && maxTokens > limit {
		maxTokens = limit
	}
	return llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: r.cfg.SystemPrompt,
		Temperature:  r.cfg.Temperature,
		MaxTokens:    maxTokens,
	}
}

// remember appends one exchange and keeps only the last HistoryTurns.
func (r *Responder) remember(user, assistant types.Message) {
	if r.cfg.HistoryTurns == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, user, assistant)
	if keep := 2 * r.cfg.HistoryTurns; len(r.history) > keep {
		r.history = append([]types.Message(nil), r.history[len(r.history)-keep:]...)
	}
}

// History returns a copy of the remembered exchanges, oldest first.
func (r *Responder) History() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Message(nil), r.history...)
}

// Reset forgets the conversation history.
func (r *Responder) Reset() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}
