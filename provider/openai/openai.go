// Package openai implements the adapter for OpenAI-compatible
// chat-completion REST APIs. Groq, OpenAI, DeepSeek, Mistral, OpenRouter and
// most self-hosted gateways all speak this protocol; only the base URL
// differs.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
	"github.com/studyos/aigateway/utils"
)

// Base URLs for the known OpenAI-compatible vendors. A provider with a
// configured base_url overrides this table.
var vendorBaseUrls = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com",
	"mistral":    "https://api.mistral.ai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// BaseUrlFor returns the well-known base URL for a vendor id, or the empty
// string when the vendor is unknown.
func BaseUrlFor(providerId string) string {
	return vendorBaseUrls[providerId]
}

type Adapter struct {
	providerId string
	baseUrl    *url.URL
	client     *http.Client
	logger     *zap.SugaredLogger
}

func NewAdapter(providerId string, baseUrl string, logger *zap.SugaredLogger) (*Adapter, error) {
	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %v", err)
	}
	if parsedBaseUrl.Scheme == "" || parsedBaseUrl.Host == "" {
		return nil, fmt.Errorf("invalid base URL: must have a scheme and host")
	}
	return &Adapter{
		providerId: providerId,
		baseUrl:    parsedBaseUrl,
		client:     &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}, nil
}

func (a *Adapter) Id() string {
	return a.providerId
}

func (a *Adapter) Generate(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	httpResponse, err := a.send(ctx, apiKey, request, false)
	if err != nil {
		return nil, err
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

	var chatResponse openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &chatResponse); err != nil {
		return nil, provider.NewMalformedError(fmt.Sprintf("failed to decode response: %v", err))
	}
	if len(chatResponse.Choices) == 0 {
		return nil, provider.NewMalformedError("response carried no choices")
	}
	return &chatResponse, nil
}

func (a *Adapter) GenerateStream(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error) {
	streamRequest := *request
	streamRequest.Stream = utils.ToPtr(true)

	httpResponse, err := a.send(ctx, apiKey, &streamRequest, true)
	if err != nil {
		return "", err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResponse.Body)
		return "", provider.NewStatusError(httpResponse.StatusCode, string(body))
	}

	accumulated := ""
	scanner := bufio.NewScanner(httpResponse.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, found := strings.CutPrefix(line, "data: ")
		if !found {
			continue
		}
		if data == "[DONE]" {
			return accumulated, nil
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed individual chunks are skipped, not fatal.
			a.logger.Debugw("Skipping malformed stream chunk", "provider", a.providerId, "data", data)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			accumulated += delta
			onChunk(accumulated)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return accumulated, ctx.Err()
		}
		return accumulated, provider.NewNetworkError(err)
	}
	return accumulated, nil
}

func (a *Adapter) send(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, stream bool) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	endpointPath, err := url.JoinPath(a.baseUrl.String(), "chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint path: %v", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, "POST", endpointPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		httpRequest.Header.Set("Accept", "text/event-stream")
	}

	httpResponse, err := a.client.Do(httpRequest)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, provider.NewNetworkError(err)
	}
	return httpResponse, nil
}
