package dummy

import (
	"context"
	"fmt"
	"sync"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chatctx"
	"github.com/stupiduntilnot/nomic-lawyer/internal/model"
)

// Provider is a scripted completion boundary that records every request.
type Provider struct {
	mu       sync.Mutex
	script   *scriptRunner
	requests [][]chatctx.Message
}

var _ model.Provider = (*Provider)(nil)

func NewProvider(script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{script: runner}, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []chatctx.Message) (model.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, append([]chatctx.Message(nil), messages...))
	a := p.script.next()
	p.mu.Unlock()

	switch a.kind {
	case "err":
		return model.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "empty":
		return model.CompletionResponse{InputTokens: 1}, nil
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return model.CompletionResponse{}, err
		}
		return model.CompletionResponse{Content: "dummy-after-sleep", InputTokens: 1, OutputTokens: 1}, nil
	case "msg":
		return model.CompletionResponse{Content: a.arg, InputTokens: 1, OutputTokens: 1}, nil
	default:
		return model.CompletionResponse{Content: "dummy-ok", InputTokens: 1, OutputTokens: 1}, nil
	}
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() [][]chatctx.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]chatctx.Message, len(p.requests))
	copy(out, p.requests)
	return out
}
