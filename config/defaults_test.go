package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyos/aigateway"
)

func TestDefaultSnapshot(t *testing.T) {
	snapshot := DefaultSnapshot()

	t.Run("every task has a route", func(t *testing.T) {
		tasks := []aigateway.Task{
			aigateway.TaskNotes,
			aigateway.TaskMcq,
			aigateway.TaskChat,
			aigateway.TaskAnalysis,
			aigateway.TaskVision,
			aigateway.TaskTranslation,
			aigateway.TaskAdmin,
		}
		for _, task := range tasks {
			_, ok := snapshot.RouteForTask(task)
			assert.True(t, ok, string(task))
		}
	})

	t.Run("route candidates reference configured models", func(t *testing.T) {
		check := func(candidate aigateway.Candidate) {
			model, ok := snapshot.ModelById(candidate.ModelId)
			require.True(t, ok, candidate.String())
			assert.Equal(t, candidate.ProviderId, model.ProviderId, candidate.String())
			_, ok = snapshot.ProviderById(candidate.ProviderId)
			assert.True(t, ok, candidate.String())
		}
		for _, route := range snapshot.Routes {
			check(route.Primary)
			for _, fallback := range route.Fallbacks {
				check(fallback)
			}
		}
	})

	t.Run("hard fallback tail is backed by default models", func(t *testing.T) {
		for _, candidate := range HardFallbackTail() {
			model, ok := snapshot.ModelById(candidate.ModelId)
			require.True(t, ok, candidate.String())
			assert.True(t, model.Enabled, candidate.String())
		}
	})

	t.Run("vision routes to a vision-capable model", func(t *testing.T) {
		route, ok := snapshot.RouteForTask(aigateway.TaskVision)
		require.True(t, ok)
		assert.Equal(t, "groq-llama-3.2-90b-vision", route.Primary.ModelId)
	})
}
