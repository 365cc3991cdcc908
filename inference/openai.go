package inference

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIProvider struct {
	apiKey string
	client openai.Client
}

// NewOpenAIProvider builds a provider that makes a single HTTP attempt per
// call. The SDK's own retries are switched off.
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &OpenAIProvider{
		apiKey: apiKey,
		client: openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt, model string) (*CloudResponse, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(cloudMaxTokens),
	})
	if err != nil {
		return nil, &TransportError{Endpoint: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}

	return &CloudResponse{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
