package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/stupiduntilnot/nomic-lawyer/internal/chatctx"
	"github.com/stupiduntilnot/nomic-lawyer/internal/model"
)

// Client is a chat completions client over the official OpenAI SDK.
type Client struct {
	api   openai.Client
	model string
	log   zerolog.Logger
}

// NewClient creates an OpenAI client. An empty baseURL uses the SDK default.
// The SDK's automatic retries are disabled; a failed call fails the turn.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, log zerolog.Logger) *Client {
	log = log.With().Str("component", "openai").Logger()
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	opts = append(opts, option.WithMiddleware(requestTraceMiddleware(log)))

	return &Client{
		api:   openai.NewClient(opts...),
		model: model,
		log:   log,
	}
}

var _ model.Provider = (*Client)(nil)

// ChatCompletion sends a chat completion request and returns the first
// choice's trimmed text content.
func (c *Client) ChatCompletion(ctx context.Context, messages []chatctx.Message) (model.CompletionResponse, error) {
	if len(messages) == 0 {
		return model.CompletionResponse{}, fmt.Errorf("openai chat completion failed: no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toParams(messages),
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("openai chat completion failed: %w", err)
	}

	result := model.CompletionResponse{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		result.Content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	return result, nil
}

func toParams(messages []chatctx.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chatctx.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chatctx.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func requestTraceMiddleware(log zerolog.Logger) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		requestID := strings.TrimSpace(req.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = uuid.NewString()
			req.Header.Set("x-request-id", requestID)
		}

		resp, err := next(req)
		elapsedMs := time.Since(start).Milliseconds()
		if err != nil {
			log.Error().Err(err).
				Str("request_id", requestID).
				Str("request_path", req.URL.Path).
				Int64("duration_ms", elapsedMs).
				Msg("OpenAI HTTP request failed")
			return nil, err
		}

		event := log.Debug()
		if resp.StatusCode >= 400 {
			event = log.Warn()
		}
		event.Str("request_id", requestID).
			Str("request_path", req.URL.Path).
			Int("status_code", resp.StatusCode).
			Int64("duration_ms", elapsedMs).
			Str("upstream_request_id", resp.Header.Get("x-request-id")).
			Msg("OpenAI HTTP response")
		return resp, nil
	}
}
