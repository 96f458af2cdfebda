// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance
// through any-llm-go, or the OpenAI API) and exposes a uniform interface for
// producing the assistant's spoken reply.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/earshot/pkg/types"
)

// FinishReasonError marks a stream chunk that carries a mid-stream failure in
// its Text field.
const FinishReasonError = "error"

// ErrEmptyResponse is returned when the backend answered without any choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user and drives the response.
	Messages []types.Message

	// SystemPrompt is prepended as a system message.
	SystemPrompt string

	// Temperature in [0.0, 2.0]. Zero keeps the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero keeps the provider default.
	MaxTokens int
}

// Chunk is a fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental content. For a [FinishReasonError] chunk it
	// holds the error message.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", "error").
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion returns a channel of chunks that is closed when
	// generation finishes or ctx is cancelled. Failures after the stream has
	// started arrive as a chunk with FinishReason [FinishReasonError]. The
	// channel is never nil when err is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the configured model. Constant for the lifetime
	// of the provider.
	Capabilities() types.ModelCapabilities
}

// Collect drains a completion stream into a single response text. It returns
// an error if the stream reported one or ctx ended first.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return "", ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return b.String(), nil
			}
			if c.FinishReason == FinishReasonError {
				go drain(ch)
				return "", errors.New(c.Text)
			}
			b.WriteString(c.Text)
		}
	}
}

func drain(ch <-chan Chunk) {
	for range ch {
	}
}

// capabilityEntry maps a model-name prefix to what the model supports.
type capabilityEntry struct {
	prefix string
	caps   types.ModelCapabilities
}

// knownModels is checked in order; more specific prefixes come first.
var knownModels = []capabilityEntry{
	{"gpt-4o-mini", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsStreaming: true}},
	{"gpt-4o", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsStreaming: true}},
	{"gpt-4.1", types.ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768, SupportsStreaming: true}},
	{"gpt-3.5-turbo", types.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096, SupportsStreaming: true}},
	{"gemma3", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192, SupportsStreaming: true}},
	{"gemma2", types.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 8_192, SupportsStreaming: true}},
	{"llama3", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsStreaming: true}},
	{"qwen", types.ModelCapabilities{ContextWindow: 32_768, MaxOutputTokens: 8_192, SupportsStreaming: true}},
	{"mistral", types.ModelCapabilities{ContextWindow: 32_768, MaxOutputTokens: 4_096, SupportsStreaming: true}},
	{"claude", types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192, SupportsStreaming: true}},
	{"gemini", types.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192, SupportsStreaming: true}},
}

// LookupCapabilities returns the capabilities of a known model family, or a
// conservative default (8k context, 2k output, streaming).
func LookupCapabilities(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	// Ollama tags look like "gemma3:4b"; registry paths like "library/gemma3".
	if i := strings.LastIndexByte(lower, '/'); i >= 0 {
		lower = lower[i+1:]
	}
	for _, e := range knownModels {
		if strings.HasPrefix(lower, e.prefix) {
			return e.caps
		}
	}
	return types.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 2_048, SupportsStreaming: true}
}
