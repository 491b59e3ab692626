// Package health turns per-attempt outcomes into credential and model
// state transitions, and records every attempt to a usage log.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/studyos/aigateway"
)

const (
	usageLogKey = "aigateway:usage_log"

	// Oldest entries beyond this are dropped on each append.
	usageLogMaxEntries = 10_000
)

// Entry is one attempt as written to the usage log.
type Entry struct {
	Id           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Task         aigateway.Task `json:"task"`
	ProviderId   string         `json:"provider_id"`
	ModelId      string         `json:"model_id"`
	KeyId        string         `json:"key_id,omitempty"`
	Success      bool           `json:"success"`
	ErrorClass   string         `json:"error_class,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	LatencyMs    int64          `json:"latency_ms"`
}

// Sink receives usage log entries. Appends are best effort; a failing sink
// must never fail the request that produced the entry.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// ValkeySink keeps the usage log as a capped Valkey list, newest first.
type ValkeySink struct {
	client valkey.Client
}

func NewValkeySink(client valkey.Client) *ValkeySink {
	return &ValkeySink{client: client}
}

func (s *ValkeySink) Append(ctx context.Context, entry Entry) error {
	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Lpush().Key(usageLogKey).Element(string(jsonBytes)).Build()).Error(); err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Ltrim().Key(usageLogKey).Start(0).Stop(usageLogMaxEntries-1).Build()).Error()
}

// MemorySink collects entries in memory. Used in tests and when no Valkey
// endpoint is configured.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}
