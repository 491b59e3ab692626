package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
	"github.com/studyos/aigateway/utils"
)

func TestToGeminiRequest(t *testing.T) {
	t.Run("maps roles and lifts the system prompt", func(t *testing.T) {
		request := &openai.ChatCompletionRequest{
			Model: "gemini-1.5-flash",
			Messages: []openai.Message{
				{Role: "system", Content: "be brief"},
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
			},
		}

		contents, config := toGeminiRequest(request)
		require.NotNil(t, config.SystemInstruction)
		assert.Equal(t, "be brief", config.SystemInstruction.Parts[0].Text)
		require.Len(t, contents, 2)
		assert.Equal(t, genai.RoleUser, contents[0].Role)
		assert.Equal(t, genai.RoleModel, contents[1].Role)
	})

	t.Run("json mode sets the response MIME type", func(t *testing.T) {
		request := &openai.ChatCompletionRequest{
			Messages:       []openai.Message{{Role: "user", Content: "hi"}},
			ResponseFormat: &openai.ResponseFormat{Type: "json_object"},
		}

		_, config := toGeminiRequest(request)
		assert.Equal(t, "application/json", config.ResponseMIMEType)
	})

	t.Run("sampling parameters are forwarded", func(t *testing.T) {
		request := &openai.ChatCompletionRequest{
			Messages:    []openai.Message{{Role: "user", Content: "hi"}},
			Temperature: utils.ToPtr(float32(0.2)),
			MaxTokens:   utils.ToPtr(int32(256)),
		}

		_, config := toGeminiRequest(request)
		require.NotNil(t, config.Temperature)
		assert.InDelta(t, 0.2, float64(*config.Temperature), 0.001)
		assert.Equal(t, int32(256), config.MaxOutputTokens)
	})
}

func TestClassifySdkError(t *testing.T) {
	t.Run("api error keeps its status class", func(t *testing.T) {
		err := classifySdkError(context.Background(), genai.APIError{Code: 429, Message: "quota"})
		assert.Equal(t, provider.ClassRateLimit, provider.Classify(err))

		err = classifySdkError(context.Background(), genai.APIError{Code: 403, Message: "forbidden"})
		assert.Equal(t, provider.ClassAuth, provider.Classify(err))
	})

	t.Run("plain error is a network failure", func(t *testing.T) {
		err := classifySdkError(context.Background(), errors.New("dns failure"))
		assert.Equal(t, provider.ClassNetwork, provider.Classify(err))
	})

	t.Run("cancellation is passed through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classifySdkError(ctx, errors.New("canceled"))
		assert.True(t, provider.IsCancellation(err))
	})
}
