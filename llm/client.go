// Package llm generates short human-readable titles for captured
// sessions from their compressed summaries. Several model providers are
// supported; which one is used comes from configuration.
package llm

import (
	"context"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/m4xw311/acpcap/errors"
)

// Client is the interface for a title-generating model backend.
type Client interface {
	Title(ctx context.Context, summary string) (string, error)
}

// NewClient builds the client named in configuration. Supported names
// are anthropic, openai, gemini and bedrock.
func NewClient(ctx context.Context, name, model string) (Client, error) {
	switch name {
	case "anthropic":
		return NewAnthropicClient(ctx, model)
	case "openai":
		return NewOpenAIClient(ctx, model)
	case "gemini":
		return NewGeminiClient(ctx, model)
	case "bedrock":
		return NewBedrockClient(ctx, model)
	case "", "mock":
		return &MockClient{}, nil
	default:
		return nil, errors.New("unknown llm client %q", name)
	}
}

const titlePrompt = "Write a title of at most eight words for the coding session below. " +
	"Respond with the title only, no quotes, no trailing punctuation.\n\n"

// MockClient titles sessions without a network call; used in tests and
// when no provider is configured.
type MockClient struct{}

func (m *MockClient) Title(ctx context.Context, summary string) (string, error) {
	line := summary
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return cleanTitle(strings.TrimPrefix(strings.TrimPrefix(line, "Thinking: "), "Message: ")), nil
}

// withRetry runs fn with exponential backoff. Provider APIs rate-limit
// aggressively; a couple of retries covers the common transient cases.
func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(fn, policy)
}

// cleanTitle normalizes a model response into a one-line title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.Trim(s, `"'`)
	const maxTitle = 80
	runes := []rune(s)
	if len(runes) > maxTitle {
		s = string(runes[:maxTitle])
	}
	return s
}
