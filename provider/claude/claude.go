// Package claude implements the adapter for the Anthropic Messages API via
// the official SDK. Keys rotate per call, so a fresh client is constructed
// for each request; the SDK client is a thin stateless wrapper.
package claude

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
)

const defaultMaxTokens = 4096

type Adapter struct {
	logger *zap.SugaredLogger
}

func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Id() string {
	return "anthropic"
}

func (a *Adapter) Generate(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	params := toClaudeParams(request)

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifySdkError(ctx, err)
	}

	content := strings.Builder{}
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, provider.NewMalformedError("response carried no text content")
	}

	return &openai.ChatCompletionResponse{
		Model: request.Model,
		Choices: []openai.Choice{
			{
				Message:      openai.Message{Role: "assistant", Content: content.String()},
				FinishReason: "stop",
			},
		},
		Usage: &openai.Usage{
			PromptTokens:     int32(message.Usage.InputTokens),
			CompletionTokens: int32(message.Usage.OutputTokens),
			TotalTokens:      int32(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	params := toClaudeParams(request)

	stream := client.Messages.NewStreaming(ctx, params)
	accumulated := ""
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					accumulated += deltaVariant.Text
					onChunk(accumulated)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return accumulated, classifySdkError(ctx, err)
	}
	return accumulated, nil
}

func toClaudeParams(request *openai.ChatCompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		MaxTokens: defaultMaxTokens,
	}
	if request.MaxTokens != nil {
		params.MaxTokens = int64(*request.MaxTokens)
	}
	if request.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*request.Temperature))
	}

	messages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for _, message := range request.Messages {
		switch message.Role {
		case "system":
			params.System = []anthropic.TextBlockParam{{Text: message.Content}}
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(message.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message.Content)))
		}
	}
	params.Messages = messages
	return params
}

func classifySdkError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.NewStatusError(apiErr.StatusCode, err.Error())
	}
	return provider.NewNetworkError(err)
}
