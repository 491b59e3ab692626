// Package gemini implements the adapter for the Google GenAI API. Keys
// rotate per call, so a client is constructed per request against the
// Gemini API backend.
package gemini

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
)

type Adapter struct {
	logger *zap.SugaredLogger
}

func NewAdapter(logger *zap.SugaredLogger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Id() string {
	return "gemini"
}

func (a *Adapter) Generate(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	client, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, provider.NewNetworkError(err)
	}

	contents, config := toGeminiRequest(request)
	response, err := client.Models.GenerateContent(ctx, request.Model, contents, config)
	if err != nil {
		return nil, classifySdkError(ctx, err)
	}

	text := responseText(response)
	if text == "" {
		return nil, provider.NewMalformedError("response carried no text candidates")
	}

	chatResponse := &openai.ChatCompletionResponse{
		Model: request.Model,
		Choices: []openai.Choice{
			{
				Message:      openai.Message{Role: "assistant", Content: text},
				FinishReason: "stop",
			},
		},
	}
	if response.UsageMetadata != nil {
		chatResponse.Usage = &openai.Usage{
			PromptTokens:     response.UsageMetadata.PromptTokenCount,
			CompletionTokens: response.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      response.UsageMetadata.TotalTokenCount,
		}
	}
	return chatResponse, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error) {
	client, err := newClient(ctx, apiKey)
	if err != nil {
		return "", provider.NewNetworkError(err)
	}

	contents, config := toGeminiRequest(request)
	accumulated := ""
	for response, err := range client.Models.GenerateContentStream(ctx, request.Model, contents, config) {
		if err != nil {
			return accumulated, classifySdkError(ctx, err)
		}
		if delta := responseText(response); delta != "" {
			accumulated += delta
			onChunk(accumulated)
		}
	}
	return accumulated, nil
}

func newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func toGeminiRequest(request *openai.ChatCompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if request.Temperature != nil {
		config.Temperature = genai.Ptr(*request.Temperature)
	}
	if request.MaxTokens != nil {
		config.MaxOutputTokens = *request.MaxTokens
	}
	if request.JsonMode() {
		config.ResponseMIMEType = "application/json"
	}

	contents := make([]*genai.Content, 0, len(request.Messages))
	for _, message := range request.Messages {
		if message.Role == "system" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: message.Content}},
			}
			continue
		}
		role := genai.RoleUser
		if message.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: message.Content}},
		})
	}
	return contents, config
}

func responseText(response *genai.GenerateContentResponse) string {
	text := strings.Builder{}
	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}

func classifySdkError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return provider.NewStatusError(apiErr.Code, apiErr.Message)
	}
	return provider.NewNetworkError(err)
}
