package model

import (
	"context"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chatctx"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion boundary used by the bot. Content is the first
// choice's text and may be empty; callers decide on a fallback.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []chatctx.Message) (CompletionResponse, error)
}
