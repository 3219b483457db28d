// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the simulation sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. Responses are consumed as a script: each Complete call pops the
// next queued response, falling back to DefaultResponse/DefaultErr when the
// queue is empty.
//
// Example:
//
//	p := &mock.Provider{}
//	p.Queue(&llm.CompletionResponse{Content: `{"think":"...","act":"","talk":""}`}, nil)
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dramaturg/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// scripted is one queued Complete outcome.
type scripted struct {
	resp *llm.CompletionResponse
	err  error
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	queue []scripted

	// DefaultResponse is returned by Complete when the scripted queue is
	// empty. May be nil.
	DefaultResponse *llm.CompletionResponse

	// DefaultErr, if non-nil, is returned by Complete when the scripted
	// queue is empty.
	DefaultErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Queue appends a scripted outcome for a future Complete call.
func (p *Provider) Queue(resp *llm.CompletionResponse, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scripted{resp: resp, err: err})
}

// QueueContent is shorthand for queueing a successful response with the
// given content.
func (p *Provider) QueueContent(content string) {
	p.Queue(&llm.CompletionResponse{Content: content}, nil)
}

// Complete records the call and returns the next scripted outcome, or the
// defaults when the script is exhausted.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		return next.resp, next.err
	}
	return p.DefaultResponse, p.DefaultErr
}

// CountTokens returns TokenCount, CountTokensErr.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Reset clears all recorded calls and any unconsumed script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.queue = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
