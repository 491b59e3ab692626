// Package keyring selects credentials for providers using fair round-robin
// rotation over the ACTIVE key set.
package keyring

import (
	"sync"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/utils/array"
)

// Providers that run without credentials still need a key object so usage
// accounting and rotation stay uniform.
var localProviderIds = []string{"ollama", "local"}

// Rotator hands out the next usable key per provider. The per-provider
// cursor is shared across concurrent requests and synchronized; under
// contention two callers may occasionally receive the same key, which is
// acceptable, but the cursor itself never corrupts.
type Rotator struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewRotator() *Rotator {
	return &Rotator{cursors: make(map[string]int)}
}

// Next returns the next ACTIVE key for the provider, or false when the
// provider has none. Local providers synthesize a dummy key when the
// snapshot carries none for them.
func (r *Rotator) Next(snapshot *aigateway.Snapshot, providerId string) (aigateway.Key, bool) {
	keys := snapshot.ActiveKeys(providerId)
	if len(keys) == 0 {
		if array.Contains(localProviderIds, providerId) {
			return aigateway.Key{
				Id:         providerId + "-local-key",
				ProviderId: providerId,
				Secret:     "local",
				Status:     aigateway.KeyActive,
			}, true
		}
		return aigateway.Key{}, false
	}

	r.mu.Lock()
	cursor := r.cursors[providerId]
	r.cursors[providerId] = cursor + 1
	r.mu.Unlock()

	return keys[cursor%len(keys)], true
}
