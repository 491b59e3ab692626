package local

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
)

func testRequest() *openai.ChatCompletionRequest {
	return &openai.ChatCompletionRequest{
		Model:    "llama3",
		Messages: []openai.Message{{Role: "user", Content: "hi"}},
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(server.URL, zaptest.NewLogger(t).Sugar())
}

func TestGenerate(t *testing.T) {
	t.Run("accepts the native message shape", func(t *testing.T) {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"local reply"},"done":true}`)
		})

		response, err := adapter.Generate(context.Background(), "", testRequest())
		require.NoError(t, err)
		assert.Equal(t, "local reply", response.Content())
	})

	t.Run("accepts the openai-compatible shape", func(t *testing.T) {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"compat reply"}}]}`)
		})

		response, err := adapter.Generate(context.Background(), "", testRequest())
		require.NoError(t, err)
		assert.Equal(t, "compat reply", response.Content())
	})

	t.Run("json mode requests the json format", func(t *testing.T) {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			var body ollamaRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "json", body.Format)
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"{}"},"done":true}`)
		})

		request := testRequest()
		request.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
		_, err := adapter.Generate(context.Background(), "", request)
		require.NoError(t, err)
	})

	t.Run("empty completion is malformed", func(t *testing.T) {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"message":{"role":"assistant","content":""},"done":true}`)
		})

		_, err := adapter.Generate(context.Background(), "", testRequest())
		require.Error(t, err)
		assert.Equal(t, provider.ClassMalformed, provider.Classify(err))
	})

	t.Run("unreachable server is a network error", func(t *testing.T) {
		adapter := NewAdapter("http://127.0.0.1:1", zaptest.NewLogger(t).Sugar())
		_, err := adapter.Generate(context.Background(), "", testRequest())
		require.Error(t, err)
		assert.Equal(t, provider.ClassNetwork, provider.Classify(err))
	})
}

func TestGenerateStream(t *testing.T) {
	t.Run("delivers the full text as one chunk", func(t *testing.T) {
		adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"buffered"},"done":true}`)
		})

		var chunks []string
		text, err := adapter.GenerateStream(context.Background(), "", testRequest(), func(accumulated string) {
			chunks = append(chunks, accumulated)
		})
		require.NoError(t, err)
		assert.Equal(t, "buffered", text)
		assert.Equal(t, []string{"buffered"}, chunks)
	})
}
