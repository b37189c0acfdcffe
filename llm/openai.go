package llm

import (
	"context"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/m4xw311/acpcap/errors"
)

// OpenAIClient titles sessions using the OpenAI Chat Completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY
// environment variable to be set. It also supports OPENAI_BASE_URL for
// custom API endpoints.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// Title asks the model for a one-line title of the summary.
func (o *OpenAIClient) Title(ctx context.Context, summary string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(titlePrompt + summary),
		},
	}

	var resp *openai.ChatCompletion
	err := withRetry(ctx, func() error {
		var err error
		resp, err = o.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to send message to OpenAI")
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("received an empty response from OpenAI")
	}
	return cleanTitle(resp.Choices[0].Message.Content), nil
}
