package health

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/config"
	"github.com/studyos/aigateway/monitoring"
	"github.com/studyos/aigateway/provider"
)

// Invalidator is satisfied by the snapshot cache. Status transitions call it
// so the next routed request sees the new state.
type Invalidator interface {
	Invalidate()
}

// Attempt is one completed upstream call as reported by the router.
type Attempt struct {
	Task       aigateway.Task
	ProviderId string

	// Configuration id, e.g. "groq-llama-3.1-8b".
	ModelConfigId string

	// Wire id sent to the vendor, e.g. "llama-3.1-8b-instant".
	ModelWireId string

	KeyId        string
	Success      bool
	ErrorClass   provider.ErrorClass
	ErrorMessage string
	Latency      time.Duration
}

// Tracker applies the consequences of each attempt: usage accounting,
// credential transitions, and the per-model circuit breaker. Keys never
// transition back to ACTIVE here; recovery is an admin action.
type Tracker struct {
	store     config.Store
	cache     Invalidator
	sink      Sink
	metrics   *monitoring.Metrics
	clock     clock.Clock
	logger    *zap.SugaredLogger
	threshold int

	mu            sync.Mutex
	modelFailures map[string]int
}

func NewTracker(store config.Store, cache Invalidator, sink Sink, metrics *monitoring.Metrics, clk clock.Clock, threshold int, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{
		store:         store,
		cache:         cache,
		sink:          sink,
		metrics:       metrics,
		clock:         clk,
		logger:        logger,
		threshold:     threshold,
		modelFailures: make(map[string]int),
	}
}

// RecordAttempt ingests one attempt. It never returns an error: tracking
// failures are logged and must not affect the request being served.
func (t *Tracker) RecordAttempt(ctx context.Context, attempt Attempt) {
	t.metrics.RecordAttempt(attempt.ProviderId, attempt.ModelConfigId, attempt.Success, string(attempt.ErrorClass), attempt.Latency.Seconds())
	t.appendLog(attempt)

	if attempt.KeyId != "" {
		t.recordKeyUse(ctx, attempt)
	}

	if attempt.Success {
		t.resetModelFailures(attempt.ModelConfigId)
		return
	}

	switch attempt.ErrorClass {
	case provider.ClassAuth:
		t.transitionKey(ctx, attempt, aigateway.KeyRevoked)
		t.countModelFailure(ctx, attempt)
	case provider.ClassRateLimit:
		// A throttled key is a credential problem, not a model problem,
		// so it does not count toward the circuit breaker.
		t.transitionKey(ctx, attempt, aigateway.KeyRateLimited)
	default:
		t.countModelFailure(ctx, attempt)
	}
}

func (t *Tracker) appendLog(attempt Attempt) {
	entry := Entry{
		Id:           uuid.New().String(),
		Timestamp:    t.clock.Now(),
		Task:         attempt.Task,
		ProviderId:   attempt.ProviderId,
		ModelId:      attempt.ModelConfigId,
		KeyId:        attempt.KeyId,
		Success:      attempt.Success,
		ErrorClass:   string(attempt.ErrorClass),
		ErrorMessage: attempt.ErrorMessage,
		LatencyMs:    attempt.Latency.Milliseconds(),
	}
	// Fire and forget; the request is not held up by log durability.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.sink.Append(ctx, entry); err != nil {
			t.logger.Warnw("Failed to append usage log entry", "error", err)
		}
	}()
}

func (t *Tracker) recordKeyUse(ctx context.Context, attempt Attempt) {
	key, err := t.store.RecordKeyUse(ctx, attempt.KeyId, t.clock.Now())
	if err != nil {
		// Synthesized local keys have no store record.
		t.logger.Debugw("Skipped usage accounting for key", "keyId", attempt.KeyId, "error", err)
		return
	}
	if key.DailyLimit > 0 && key.DailyUsageCount >= key.DailyLimit && key.Status == aigateway.KeyActive {
		t.transitionKey(ctx, attempt, aigateway.KeyExhausted)
	}
}

func (t *Tracker) transitionKey(ctx context.Context, attempt Attempt, status aigateway.KeyStatus) {
	if attempt.KeyId == "" {
		return
	}
	if err := t.store.UpdateKeyStatus(ctx, attempt.KeyId, status); err != nil {
		t.logger.Warnw("Failed to transition key status",
			"keyId", attempt.KeyId,
			"status", status,
			"error", err)
		return
	}
	t.logger.Infow("Key status transition",
		"keyId", attempt.KeyId,
		"provider", attempt.ProviderId,
		"status", status)
	t.metrics.RecordKeyTransition(attempt.ProviderId, string(status))
	t.cache.Invalidate()
}

func (t *Tracker) countModelFailure(ctx context.Context, attempt Attempt) {
	t.mu.Lock()
	t.modelFailures[attempt.ModelConfigId]++
	count := t.modelFailures[attempt.ModelConfigId]
	tripped := count >= t.threshold
	if tripped {
		t.modelFailures[attempt.ModelConfigId] = 0
	}
	t.mu.Unlock()

	if !tripped {
		return
	}
	if err := t.store.UpdateModelEnabled(ctx, attempt.ModelConfigId, false); err != nil {
		t.logger.Warnw("Failed to disable model", "modelId", attempt.ModelConfigId, "error", err)
		return
	}
	t.logger.Warnw("Model disabled after repeated failures",
		"modelId", attempt.ModelConfigId,
		"provider", attempt.ProviderId,
		"failures", count)
	t.metrics.RecordModelDisabled(attempt.ModelConfigId)
	t.cache.Invalidate()
}

func (t *Tracker) resetModelFailures(modelConfigId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.modelFailures, modelConfigId)
}
