// Package server exposes the gateway's HTTP surface: task execution, health
// and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/monitoring"
	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
	"github.com/studyos/aigateway/router"
)

// TaskRouter executes a task against the candidate chain.
type TaskRouter interface {
	Execute(ctx context.Context, task aigateway.Task, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
	ExecuteStream(ctx context.Context, task aigateway.Task, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error)
}

// GenerateRequest is the gateway's inbound request shape. Callers name a
// task, never a provider or model.
type GenerateRequest struct {
	Task     aigateway.Task   `json:"task"`
	Messages []openai.Message `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`

	Temperature    *float32               `json:"temperature,omitempty"`
	MaxTokens      *int32                 `json:"max_tokens,omitempty"`
	ResponseFormat *openai.ResponseFormat `json:"response_format,omitempty"`
}

type GenerateResponse struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type Server struct {
	router  TaskRouter
	metrics *monitoring.Metrics
	apiKey  string
	logger  *zap.SugaredLogger
}

func NewServer(taskRouter TaskRouter, metrics *monitoring.Metrics, apiKey string, logger *zap.SugaredLogger) *Server {
	return &Server{
		router:  taskRouter,
		metrics: metrics,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Handler builds the full route table with CORS applied.
func (s *Server) Handler() http.Handler {
	routes := mux.NewRouter()
	routes.HandleFunc("/ai", s.handleAuthentication(s.handleGenerate)).Methods(http.MethodPost)
	routes.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	routes.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(routes)
}

func (s *Server) handleAuthentication(handler http.HandlerFunc) http.HandlerFunc {
	return func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		if s.apiKey == "" {
			handler(httpResponse, httpRequest)
			return
		}

		headerSplit := strings.Split(httpRequest.Header.Get("Authorization"), " ")
		if len(headerSplit) != 2 ||
			strings.ToLower(headerSplit[0]) != "bearer" ||
			headerSplit[1] != s.apiKey {
			http.Error(httpResponse, "Unauthorized", http.StatusUnauthorized)
			return
		}

		handler(httpResponse, httpRequest)
	}
}

func (s *Server) handleHealthz(httpResponse http.ResponseWriter, _ *http.Request) {
	httpResponse.Header().Set("Content-Type", "application/json")
	fmt.Fprint(httpResponse, `{"status":"ok"}`)
}

func (s *Server) handleGenerate(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	defer httpRequest.Body.Close()

	bodyBytes, err := io.ReadAll(httpRequest.Body)
	if err != nil {
		s.logger.Warnw("Failed to read request body", "error", err)
		writeError(httpResponse, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	var generateRequest GenerateRequest
	if err := json.Unmarshal(bodyBytes, &generateRequest); err != nil {
		s.logger.Warnw("Invalid request body", "error", err)
		writeError(httpResponse, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if generateRequest.Task == "" {
		writeError(httpResponse, http.StatusBadRequest, "No task provided", nil)
		return
	}
	if len(generateRequest.Messages) == 0 {
		writeError(httpResponse, http.StatusBadRequest, "No messages provided", nil)
		return
	}

	chatRequest := &openai.ChatCompletionRequest{
		Messages:       generateRequest.Messages,
		Temperature:    generateRequest.Temperature,
		MaxTokens:      generateRequest.MaxTokens,
		ResponseFormat: generateRequest.ResponseFormat,
	}

	s.logger.Infow("Received generate request", "task", generateRequest.Task, "stream", generateRequest.Stream)

	if generateRequest.Stream {
		s.streamGenerate(httpResponse, httpRequest, generateRequest.Task, chatRequest)
		return
	}

	response, err := s.router.Execute(httpRequest.Context(), generateRequest.Task, chatRequest)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.writeRouterError(httpResponse, err)
		return
	}

	httpResponse.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(httpResponse).Encode(GenerateResponse{Content: response.Content()}); err != nil {
		s.logger.Errorw("Failed to encode response", "error", err)
	}
}

func (s *Server) streamGenerate(httpResponse http.ResponseWriter, httpRequest *http.Request, task aigateway.Task, chatRequest *openai.ChatCompletionRequest) {
	flusher, ok := httpResponse.(http.Flusher)
	if !ok {
		writeError(httpResponse, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	// SSE headers go out with the first frame so that failures before any
	// bytes are relayed can still produce a proper error status.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		httpResponse.Header().Set("Content-Type", "text/event-stream")
		httpResponse.Header().Set("Cache-Control", "no-cache")
		httpResponse.Header().Set("Connection", "keep-alive")
	}

	_, err := s.router.ExecuteStream(httpRequest.Context(), task, chatRequest, func(accumulated string) {
		frame, err := json.Marshal(openai.TextChunk(chatRequest.Model, accumulated))
		if err != nil {
			s.logger.Warnw("Failed to marshal stream frame", "error", err)
			return
		}
		start()
		fmt.Fprintf(httpResponse, "data: %s\n\n", frame)
		flusher.Flush()
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if !started {
			s.writeRouterError(httpResponse, err)
			return
		}
		errorData, _ := json.Marshal(errorResponse{Error: err.Error()})
		fmt.Fprintf(httpResponse, "data: %s\n\n", errorData)
		flusher.Flush()
	}

	start()
	fmt.Fprint(httpResponse, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeRouterError(httpResponse http.ResponseWriter, err error) {
	var unknownTask *router.UnknownTaskError
	var safetyLock *router.SafetyLockError
	var allFailed *router.AllCandidatesFailedError

	switch {
	case errors.As(err, &unknownTask):
		writeError(httpResponse, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &safetyLock):
		writeError(httpResponse, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.As(err, &allFailed):
		details := make([]string, 0, len(allFailed.Failures))
		for _, failure := range allFailed.Failures {
			details = append(details, fmt.Sprintf("%s: %s", failure.Candidate, failure.Reason))
		}
		writeError(httpResponse, http.StatusBadGateway, "All candidates failed", details)
	default:
		s.logger.Errorw("Unexpected routing error", "error", err)
		writeError(httpResponse, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func writeError(httpResponse http.ResponseWriter, status int, message string, details []string) {
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.WriteHeader(status)
	_ = json.NewEncoder(httpResponse).Encode(errorResponse{Error: message, Details: details})
}
