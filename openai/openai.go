// Package openai holds the gateway's normalized chat-completion wire shapes.
// Every provider adapter converts to and from these types, and the streaming
// surface emits OpenAI-style delta chunks so existing stream consumers keep
// working unchanged.
package openai

type Message struct {
	// One of "system", "user", "assistant" or "tool".
	Role string `json:"role"`

	Content string `json:"content"`
}

type ResponseFormat struct {
	// "json_object" or "text".
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	// The wire-level model name. E.g., "llama-3.1-8b-instant".
	Model string `json:"model"`

	Messages []Message `json:"messages"`

	Temperature *float32 `json:"temperature,omitempty"`

	MaxTokens *int32 `json:"max_tokens,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	Stream *bool `json:"stream,omitempty"`
}

// SystemPrompt returns the content of the first system message, if any.
func (r *ChatCompletionRequest) SystemPrompt() string {
	for _, message := range r.Messages {
		if message.Role == "system" {
			return message.Content
		}
	}
	return ""
}

// JsonMode reports whether the caller asked for a JSON object response.
func (r *ChatCompletionRequest) JsonMode() bool {
	return r.ResponseFormat != nil && r.ResponseFormat.Type == "json_object"
}

type ChatCompletionResponse struct {
	Id      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int32   `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

type ChatCompletionStreamResponse struct {
	Id      string        `json:"id,omitempty"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChoiceDelta `json:"choices"`
}

type ChoiceDelta struct {
	Index        int32        `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason *string      `json:"finish_reason,omitempty"`
}

type MessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Content returns the assistant text of the first choice, or the empty
// string when the response carries no choices.
func (r *ChatCompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// TextChunk wraps accumulated text in a stream response so SSE frames mirror
// the OpenAI delta shape.
func TextChunk(model string, text string) *ChatCompletionStreamResponse {
	return &ChatCompletionStreamResponse{
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []ChoiceDelta{
			{Delta: MessageDelta{Content: text}},
		},
	}
}
