// Package router resolves tasks to candidate chains and walks them in order
// until one upstream produces a response.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/config"
	"github.com/studyos/aigateway/health"
	"github.com/studyos/aigateway/keyring"
	"github.com/studyos/aigateway/monitoring"
	"github.com/studyos/aigateway/openai"
	"github.com/studyos/aigateway/provider"
)

// Router orchestrates failover. Candidates are tried strictly in order and
// the first success wins; there is no hedging or parallel dispatch.
type Router struct {
	cache    *config.SnapshotCache
	rotator  *keyring.Rotator
	adapters *provider.Registry
	tracker  *health.Tracker
	metrics  *monitoring.Metrics
	logger   *zap.SugaredLogger

	// Key rotations allowed per candidate before moving on.
	keyAttempts int

	// Per-attempt upstream deadline.
	timeout time.Duration
}

func NewRouter(
	cache *config.SnapshotCache,
	rotator *keyring.Rotator,
	adapters *provider.Registry,
	tracker *health.Tracker,
	metrics *monitoring.Metrics,
	keyAttempts int,
	timeout time.Duration,
	logger *zap.SugaredLogger,
) *Router {
	return &Router{
		cache:       cache,
		rotator:     rotator,
		adapters:    adapters,
		tracker:     tracker,
		metrics:     metrics,
		logger:      logger,
		keyAttempts: keyAttempts,
		timeout:     timeout,
	}
}

// Execute serves a blocking completion for the task.
func (r *Router) Execute(ctx context.Context, task aigateway.Task, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var response *openai.ChatCompletionResponse
	err := r.walk(ctx, task, request, func(attemptCtx context.Context, adapter provider.Adapter, secret string, prepared *openai.ChatCompletionRequest) (bool, error) {
		result, err := adapter.Generate(attemptCtx, secret, prepared)
		if err != nil {
			return false, err
		}
		response = result
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// ExecuteStream serves a streaming completion for the task, forwarding
// accumulated text through onChunk, and returns the final text. Once any
// bytes have been relayed the chain stops; a later failure surfaces as a
// StreamInterruptedError instead of a fallback.
func (r *Router) ExecuteStream(ctx context.Context, task aigateway.Task, request *openai.ChatCompletionRequest, onChunk provider.ChunkHandler) (string, error) {
	var text string
	err := r.walk(ctx, task, request, func(attemptCtx context.Context, adapter provider.Adapter, secret string, prepared *openai.ChatCompletionRequest) (bool, error) {
		relayed := false
		result, err := adapter.GenerateStream(attemptCtx, secret, prepared, func(accumulated string) {
			relayed = true
			onChunk(accumulated)
		})
		if err != nil {
			return relayed, err
		}
		text = result
		return relayed, nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// attemptFunc performs one upstream call. It reports whether response bytes
// were already relayed to the client when the error occurred.
type attemptFunc func(ctx context.Context, adapter provider.Adapter, secret string, request *openai.ChatCompletionRequest) (relayed bool, err error)

func (r *Router) walk(ctx context.Context, task aigateway.Task, request *openai.ChatCompletionRequest, attempt attemptFunc) error {
	snapshot := r.cache.Snapshot(ctx)
	if snapshot.SafetyLock {
		return &SafetyLockError{}
	}
	route, ok := snapshot.RouteForTask(task)
	if !ok {
		return &UnknownTaskError{Task: task}
	}

	chain := resolveChain(route)
	var failures []CandidateFailure

	for depth, candidate := range chain {
		reason, done, err := r.tryCandidate(ctx, snapshot, task, route, request, candidate, depth, attempt)
		if done {
			return err
		}
		if reason != "" {
			r.logger.Debugw("Candidate unavailable",
				"task", task,
				"candidate", candidate.String(),
				"reason", reason)
			failures = append(failures, CandidateFailure{Candidate: candidate, Reason: reason})
		}
	}

	r.metrics.RecordFallbackDepth(string(task), len(chain))
	return &AllCandidatesFailedError{Task: task, Failures: failures}
}

// tryCandidate runs up to keyAttempts calls against one candidate. done is
// true when the chain must stop here, either because the call succeeded or
// because no further candidate may be tried.
func (r *Router) tryCandidate(
	ctx context.Context,
	snapshot *aigateway.Snapshot,
	task aigateway.Task,
	route aigateway.Route,
	request *openai.ChatCompletionRequest,
	candidate aigateway.Candidate,
	depth int,
	attempt attemptFunc,
) (reason string, done bool, err error) {
	prov, ok := snapshot.ProviderById(candidate.ProviderId)
	if !ok {
		return "provider not configured", false, nil
	}
	if !prov.Enabled {
		return "provider disabled", false, nil
	}
	model, ok := snapshot.ModelById(candidate.ModelId)
	if !ok {
		return "model not configured", false, nil
	}
	if !model.Enabled {
		return "model disabled", false, nil
	}

	adapter := r.adapters.Lookup(candidate.ProviderId)
	prepared := prepareRequest(request, route, model)
	tried := make(map[string]bool, r.keyAttempts)

	for i := 0; i < r.keyAttempts; i++ {
		key, ok := r.rotator.Next(snapshot, candidate.ProviderId)
		if !ok {
			// No usable credential: the candidate is skipped without an
			// upstream attempt, so nothing is recorded against it.
			return "no active keys", false, nil
		}
		if tried[key.Id] {
			// Rotation wrapped onto a key that already failed for this
			// candidate; another call would just repeat the failure.
			break
		}
		tried[key.Id] = true

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		relayed, callErr := attempt(attemptCtx, adapter, key.Secret, prepared)
		latency := time.Since(start)
		cancel()

		if callErr == nil {
			r.tracker.RecordAttempt(ctx, health.Attempt{
				Task:          task,
				ProviderId:    candidate.ProviderId,
				ModelConfigId: candidate.ModelId,
				ModelWireId:   model.ModelId,
				KeyId:         key.Id,
				Success:       true,
				Latency:       latency,
			})
			r.metrics.RecordFallbackDepth(string(task), depth)
			return "", true, nil
		}

		if provider.IsCancellation(callErr) && ctx.Err() != nil {
			// The caller went away. Not an upstream failure; nothing is
			// held against the key or the model.
			return "", true, ctx.Err()
		}

		class := provider.Classify(callErr)
		r.tracker.RecordAttempt(ctx, health.Attempt{
			Task:          task,
			ProviderId:    candidate.ProviderId,
			ModelConfigId: candidate.ModelId,
			ModelWireId:   model.ModelId,
			KeyId:         key.Id,
			Success:       false,
			ErrorClass:    class,
			ErrorMessage:  callErr.Error(),
			Latency:       latency,
		})

		if relayed {
			return "", true, &StreamInterruptedError{Candidate: candidate, Err: callErr}
		}

		reason = fmt.Sprintf("%s (key %s)", callErr.Error(), key.Id)
		if class != provider.ClassAuth && class != provider.ClassRateLimit {
			// Network, malformed and upstream errors are not credential
			// problems; rotating keys would not help.
			return reason, false, nil
		}
	}
	return reason, false, nil
}

// prepareRequest rewrites the request for one candidate: the wire model name
// is filled in, and the route's system prompt is applied when the caller sent
// no system message of their own. The original request is never mutated.
func prepareRequest(original *openai.ChatCompletionRequest, route aigateway.Route, model aigateway.Model) *openai.ChatCompletionRequest {
	clone := *original
	clone.Model = model.ModelId
	if route.SystemPrompt != "" && original.SystemPrompt() == "" {
		clone.Messages = append([]openai.Message{{Role: "system", Content: route.SystemPrompt}}, original.Messages...)
	}
	return &clone
}

// resolveChain builds the ordered candidate list: primary, configured
// fallbacks, then the hard tail, de-duplicated on first occurrence.
func resolveChain(route aigateway.Route) []aigateway.Candidate {
	ordered := make([]aigateway.Candidate, 0, len(route.Fallbacks)+3)
	ordered = append(ordered, route.Primary)
	ordered = append(ordered, route.Fallbacks...)
	ordered = append(ordered, config.HardFallbackTail()...)

	seen := make(map[aigateway.Candidate]bool, len(ordered))
	chain := ordered[:0]
	for _, candidate := range ordered {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		chain = append(chain, candidate)
	}
	return chain
}
