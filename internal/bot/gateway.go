package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrCompletionFailure covers every failure reaching or reading the upstream
// completion service: transport errors, API errors, timeouts and empty
// candidate lists. Handlers substitute a fixed apology and never surface the
// underlying error to the caller.
var ErrCompletionFailure = errors.New("completion failure")

// CompletionClient is the slice of the OpenAI client the gateway needs;
// *openai.Client satisfies it.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Gateway invokes the completion service with fixed generation knobs and a
// bounded timeout. One immediate retry is attempted on transport errors;
// upstream rate limiting gets no special handling.
type Gateway struct {
	client      CompletionClient
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func NewGateway(client CompletionClient, model string, temperature float32, maxTokens int, timeout time.Duration) *Gateway {
	if temperature <= 0 {
		temperature = 0.8
	}
	if maxTokens <= 0 {
		maxTokens = 300
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Gateway{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

// Complete returns the top candidate's text for the assembled message list.
func (g *Gateway) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages:    messages,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil && ctx.Err() == nil && retryable(err) {
		resp, err = g.client.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrCompletionFailure)
	}
	return resp.Choices[0].Message.Content, nil
}

// retryable reports whether the single immediate retry makes sense. A 4xx
// API error (bad request, bad credentials) fails identically on replay;
// transport errors and 5xx may be transient.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode < 400 || apiErr.HTTPStatusCode >= 500
	}
	return true
}
