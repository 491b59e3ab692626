package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/studyos/aigateway"
)

// Document keys under which the routing configuration lives in the store.
const (
	docProviders = "aigateway:config:providers"
	docModels    = "aigateway:config:models"
	docKeys      = "aigateway:config:keys"
	docRoutes    = "aigateway:config:routes"
	docSettings  = "aigateway:config:settings"
)

// Store reads and writes the routing configuration as whole documents.
// Admin tooling writes through the same interface; the gateway only reads,
// except for key/model status updates issued by the health tracker.
type Store interface {
	LoadSnapshot(ctx context.Context) (*aigateway.Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *aigateway.Snapshot) error

	// UpdateKeyStatus transitions a single key. Used for emergency
	// revocation and rate-limit quarantine.
	UpdateKeyStatus(ctx context.Context, keyId string, status aigateway.KeyStatus) error

	// UpdateModelEnabled flips a model's enabled flag. Used by the circuit
	// breaker to stop routing to a known-bad model.
	UpdateModelEnabled(ctx context.Context, modelId string, enabled bool) error

	// RecordKeyUse bumps the usage counters of a key and returns the
	// updated key so callers can enforce daily budgets.
	RecordKeyUse(ctx context.Context, keyId string, at time.Time) (aigateway.Key, error)
}

type settingsDoc struct {
	SafetyLock bool `json:"safety_lock"`
}

// ValkeyStore keeps each configuration list as a JSON document in Valkey.
type ValkeyStore struct {
	client valkey.Client

	// Serializes read-modify-write cycles on single documents from this
	// process. Cross-process admin writes are whole-document and last-wins.
	mu sync.Mutex
}

func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) LoadSnapshot(ctx context.Context) (*aigateway.Snapshot, error) {
	snapshot := &aigateway.Snapshot{}
	if err := s.loadDoc(ctx, docProviders, &snapshot.Providers); err != nil {
		return nil, err
	}
	if err := s.loadDoc(ctx, docModels, &snapshot.Models); err != nil {
		return nil, err
	}
	if err := s.loadDoc(ctx, docKeys, &snapshot.Keys); err != nil {
		return nil, err
	}
	if err := s.loadDoc(ctx, docRoutes, &snapshot.Routes); err != nil {
		return nil, err
	}
	settings := settingsDoc{}
	if err := s.loadDoc(ctx, docSettings, &settings); err != nil {
		return nil, err
	}
	snapshot.SafetyLock = settings.SafetyLock
	return snapshot, nil
}

func (s *ValkeyStore) SaveSnapshot(ctx context.Context, snapshot *aigateway.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveDoc(ctx, docProviders, snapshot.Providers); err != nil {
		return err
	}
	if err := s.saveDoc(ctx, docModels, snapshot.Models); err != nil {
		return err
	}
	if err := s.saveDoc(ctx, docKeys, snapshot.Keys); err != nil {
		return err
	}
	if err := s.saveDoc(ctx, docRoutes, snapshot.Routes); err != nil {
		return err
	}
	return s.saveDoc(ctx, docSettings, settingsDoc{SafetyLock: snapshot.SafetyLock})
}

func (s *ValkeyStore) UpdateKeyStatus(ctx context.Context, keyId string, status aigateway.KeyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []aigateway.Key
	if err := s.loadDoc(ctx, docKeys, &keys); err != nil {
		return err
	}
	for i := range keys {
		if keys[i].Id == keyId {
			keys[i].Status = status
			return s.saveDoc(ctx, docKeys, keys)
		}
	}
	return fmt.Errorf("key %s not found", keyId)
}

func (s *ValkeyStore) UpdateModelEnabled(ctx context.Context, modelId string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var models []aigateway.Model
	if err := s.loadDoc(ctx, docModels, &models); err != nil {
		return err
	}
	for i := range models {
		if models[i].Id == modelId {
			models[i].Enabled = enabled
			return s.saveDoc(ctx, docModels, models)
		}
	}
	return fmt.Errorf("model %s not found", modelId)
}

func (s *ValkeyStore) RecordKeyUse(ctx context.Context, keyId string, at time.Time) (aigateway.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []aigateway.Key
	if err := s.loadDoc(ctx, docKeys, &keys); err != nil {
		return aigateway.Key{}, err
	}
	for i := range keys {
		if keys[i].Id == keyId {
			bumpKeyUse(&keys[i], at)
			return keys[i], s.saveDoc(ctx, docKeys, keys)
		}
	}
	return aigateway.Key{}, fmt.Errorf("key %s not found", keyId)
}

func bumpKeyUse(key *aigateway.Key, at time.Time) {
	key.UsageCount++
	if sameDay(key.LastUsedAt, at) {
		key.DailyUsageCount++
	} else {
		key.DailyUsageCount = 1
	}
	key.LastUsedAt = at
}

func (s *ValkeyStore) loadDoc(ctx context.Context, key string, target any) error {
	response := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := response.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			// A missing document is an empty list, not an error.
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	jsonBytes, err := response.AsBytes()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) saveDoc(ctx context.Context, key string, value any) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(jsonBytes)).Build()).Error()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MemoryStore holds the configuration in process memory. Used in tests and
// when no Valkey endpoint is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *aigateway.Snapshot
}

func NewMemoryStore(snapshot *aigateway.Snapshot) *MemoryStore {
	if snapshot == nil {
		snapshot = &aigateway.Snapshot{}
	}
	return &MemoryStore{snapshot: snapshot}
}

func (s *MemoryStore) LoadSnapshot(ctx context.Context) (*aigateway.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.snapshot), nil
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, snapshot *aigateway.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) UpdateKeyStatus(ctx context.Context, keyId string, status aigateway.KeyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Keys {
		if s.snapshot.Keys[i].Id == keyId {
			s.snapshot.Keys[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("key %s not found", keyId)
}

func (s *MemoryStore) UpdateModelEnabled(ctx context.Context, modelId string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Models {
		if s.snapshot.Models[i].Id == modelId {
			s.snapshot.Models[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("model %s not found", modelId)
}

func (s *MemoryStore) RecordKeyUse(ctx context.Context, keyId string, at time.Time) (aigateway.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Keys {
		if s.snapshot.Keys[i].Id == keyId {
			bumpKeyUse(&s.snapshot.Keys[i], at)
			return s.snapshot.Keys[i], nil
		}
	}
	return aigateway.Key{}, fmt.Errorf("key %s not found", keyId)
}

func cloneSnapshot(snapshot *aigateway.Snapshot) *aigateway.Snapshot {
	clone := &aigateway.Snapshot{
		Providers:  append([]aigateway.Provider(nil), snapshot.Providers...),
		Models:     append([]aigateway.Model(nil), snapshot.Models...),
		Keys:       append([]aigateway.Key(nil), snapshot.Keys...),
		Routes:     make([]aigateway.Route, 0, len(snapshot.Routes)),
		SafetyLock: snapshot.SafetyLock,
	}
	for _, route := range snapshot.Routes {
		route.Fallbacks = append([]aigateway.Candidate(nil), route.Fallbacks...)
		clone.Routes = append(clone.Routes, route)
	}
	return clone
}
