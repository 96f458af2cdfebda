// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the CompletionRequests a caller sends
// and to feed controlled responses without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/llm"
	"github.com/MrWong99/earshot/pkg/types"
)

// Provider is a mock implementation of llm.Provider. Zero values for response
// fields make methods return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// StreamChunks are emitted by StreamCompletion before the channel closes.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned by StreamCompletion.
	StreamErr error

	// CompleteResponse is returned by Complete. Nil yields an empty response.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error

	// CompleteFunc, if set, overrides CompleteResponse and CompleteErr.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CapabilitiesResult is returned by Capabilities.
	CapabilitiesResult types.ModelCapabilities

	streamCalls   []llm.CompletionRequest
	completeCalls []llm.CompletionRequest
}

// StreamCompletion records the call and replays StreamChunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.streamCalls = append(p.streamCalls, req)
	chunks, err := append([]llm.Chunk(nil), p.StreamChunks...), p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// Complete records the call and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.completeCalls = append(p.completeCalls, req)
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	out := *resp
	return &out, nil
}

// Capabilities returns CapabilitiesResult.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CapabilitiesResult
}

// CompleteCalls returns a copy of every request passed to Complete.
func (p *Provider) CompleteCalls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.completeCalls...)
}

// StreamCalls returns a copy of every request passed to StreamCompletion.
func (p *Provider) StreamCalls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.streamCalls...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCalls = nil
	p.completeCalls = nil
}

var _ llm.Provider = (*Provider)(nil)
