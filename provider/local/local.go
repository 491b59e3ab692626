// Package local implements the adapter for local inference servers such as
// Ollama. No credential is required; the rotator hands out a synthetic key
// that this adapter ignores. Both the Ollama-native and OpenAI-compatible
// response shapes are accepted.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
)

const defaultBaseUrl = "http://localhost:11434"

type Adapter struct {
	baseUrl string
	client  *http.Client
	logger  *zap.SugaredLogger
}

func NewAdapter(baseUrl string, logger *zap.SugaredLogger) *Adapter {
	if baseUrl == "" {
		baseUrl = defaultBaseUrl
	}
	return &Adapter{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

func (a *Adapter) Id() string {
	return "local"
}

type ollamaRequest struct {
	Model       string           `json:"model"`
	Messages    []openai.Message `json:"messages"`
	Temperature *float32         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`
	Format      string           `json:"format,omitempty"`
}

// ollamaResponse covers both the OpenAI-compatible shape (choices) and the
// Ollama-native one (message).
type ollamaResponse struct {
	Choices []openai.Choice `json:"choices"`
	Message *openai.Message `json:"message"`
	Done    bool            `json:"done"`
}

func (a *Adapter) Generate(ctx context.Context, _ string, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	body, err := a.send(ctx, request, false)
	if err != nil {
		return nil, err
	}

	var localResponse ollamaResponse
	if err := json.Unmarshal(body, &localResponse); err != nil {
		return nil, provider.NewMalformedError(fmt.Sprintf("failed to decode response: %v", err))
	}

	content := ""
	switch {
	case len(localResponse.Choices) > 0:
		content = localResponse.Choices[0].Message.Content
	case localResponse.Message != nil:
		content = localResponse.Message.Content
	}
	if content == "" {
		return nil, provider.NewMalformedError("empty completion from local model")
	}

	return &openai.ChatCompletionResponse{
		Model: request.Model,
		Choices: []openai.Choice{
			{
				Message:      openai.Message{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
	}, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error) {
	// Ollama streams newline-delimited JSON rather than SSE; buffering the
	// full response keeps the adapter simple and still honors the chunk
	// contract for callers.
	response, err := a.Generate(ctx, apiKey, request)
	if err != nil {
		return "", err
	}
	text := response.Content()
	onChunk(text)
	return text, nil
}

func (a *Adapter) send(ctx context.Context, request *openai.ChatCompletionRequest, stream bool) ([]byte, error) {
	localRequest := ollamaRequest{
		Model:       request.Model,
		Messages:    request.Messages,
		Temperature: request.Temperature,
		Stream:      stream,
	}
	if request.JsonMode() {
		localRequest.Format = "json"
	}

	jsonData, err := json.Marshal(localRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", a.baseUrl+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := a.client.Do(httpRequest)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, provider.NewNetworkError(fmt.Errorf("local model unreachable: %w", err))
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, provider.NewNetworkError(err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		return nil, provider.NewStatusError(httpResponse.StatusCode, string(body))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, provider.NewMalformedError("empty response body")
	}
	return body, nil
}
