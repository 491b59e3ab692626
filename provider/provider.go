package provider

import (
	"context"

	"github.com/studyos/aigateway/openai"
)

// ChunkHandler receives the running concatenation of the streamed text, not
// the individual delta. Callers always see monotonically growing text.
type ChunkHandler func(accumulated string)

// Adapter translates a normalized request into one upstream protocol family
// and normalizes the result back. Implementations must return *Error for
// upstream failures so the router can classify them without string matching.
type Adapter interface {
	// Generate performs a blocking chat completion with the given credential.
	Generate(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)

	// GenerateStream streams a chat completion, invoking onChunk with the
	// accumulated text after each delta, and returns the final text.
	GenerateStream(ctx context.Context, apiKey string, request *openai.ChatCompletionRequest, onChunk ChunkHandler) (string, error)

	// Id identifies the protocol family. E.g., "openai", "gemini".
	Id() string
}
