package notes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dgallion1/bookshelf/internal/remote"
)

const openaiService = "openai api"

// OpenAIClient calls the Chat Completions API. Retries are left to the
// caller's policy, so the SDK's own retries are off.
type OpenAIClient struct {
	client openai.Client
	model  string
	stats  *LLMStats
}

func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) *OpenAIClient {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		option.WithMaxRetries(0),
	}
	return &OpenAIClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
		stats:  NewLLMStats(time.Hour),
	}
}

func (c *OpenAIClient) Model() string        { return c.model }
func (c *OpenAIClient) Stats() StatsSnapshot { return c.stats.Snapshot() }

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, prompt)
	c.stats.Record(time.Since(start).Milliseconds(), err)
	return text, err
}

func (c *OpenAIClient) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", remote.StatusError(openaiService, apiErr.StatusCode, []byte(apiErr.Message))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &remote.RetryableError{Service: openaiService, Message: err.Error()}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}
