package config

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"

	"github.com/studyos/aigateway"
)

func storeSnapshot() *aigateway.Snapshot {
	return &aigateway.Snapshot{
		Providers: []aigateway.Provider{{Id: "groq", Name: "Groq", Enabled: true}},
		Models: []aigateway.Model{
			{Id: "groq-llama-3.1-8b", ProviderId: "groq", ModelId: "llama-3.1-8b-instant", Enabled: true},
		},
		Keys: []aigateway.Key{
			{Id: "groq-k1", ProviderId: "groq", Secret: "sk-1", Status: aigateway.KeyActive},
		},
		Routes: []aigateway.Route{
			{
				Task:    aigateway.TaskChat,
				Primary: aigateway.Candidate{ProviderId: "groq", ModelId: "groq-llama-3.1-8b"},
			},
		},
	}
}

func TestMemoryStore(t *testing.T) {
	t.Run("load returns a copy", func(t *testing.T) {
		store := NewMemoryStore(storeSnapshot())

		first, err := store.LoadSnapshot(context.Background())
		require.NoError(t, err)
		first.Keys[0].Status = aigateway.KeyRevoked

		second, err := store.LoadSnapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, aigateway.KeyActive, second.Keys[0].Status)
	})

	t.Run("update key status", func(t *testing.T) {
		store := NewMemoryStore(storeSnapshot())
		require.NoError(t, store.UpdateKeyStatus(context.Background(), "groq-k1", aigateway.KeyRateLimited))

		snapshot, err := store.LoadSnapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, aigateway.KeyRateLimited, snapshot.Keys[0].Status)

		assert.Error(t, store.UpdateKeyStatus(context.Background(), "missing", aigateway.KeyRevoked))
	})

	t.Run("update model enabled", func(t *testing.T) {
		store := NewMemoryStore(storeSnapshot())
		require.NoError(t, store.UpdateModelEnabled(context.Background(), "groq-llama-3.1-8b", false))

		snapshot, err := store.LoadSnapshot(context.Background())
		require.NoError(t, err)
		assert.False(t, snapshot.Models[0].Enabled)
	})

	t.Run("record key use rolls the daily counter at midnight", func(t *testing.T) {
		store := NewMemoryStore(storeSnapshot())
		day1 := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
		day2 := time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)

		key, err := store.RecordKeyUse(context.Background(), "groq-k1", day1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), key.DailyUsageCount)

		key, err = store.RecordKeyUse(context.Background(), "groq-k1", day1.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), key.DailyUsageCount)
		assert.Equal(t, int64(2), key.UsageCount)

		key, err = store.RecordKeyUse(context.Background(), "groq-k1", day2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), key.DailyUsageCount)
		assert.Equal(t, int64(3), key.UsageCount)
	})
}

func TestValkeyStore(t *testing.T) {
	t.Run("missing documents load as an empty snapshot", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.MatchFn(func(cmd []string) bool { return cmd[0] == "GET" }, "GET any config doc")).
			Return(valkeymock.Result(valkeymock.ValkeyNil())).
			Times(5)

		snapshot, err := store.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snapshot.Providers)
		assert.Empty(t, snapshot.Keys)
		assert.False(t, snapshot.SafetyLock)
	})

	t.Run("loads documents by key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		providersJson, err := json.Marshal(storeSnapshot().Providers)
		require.NoError(t, err)
		docs := map[string]string{
			docProviders: string(providersJson),
			docModels:    "[]",
			docKeys:      "[]",
			docRoutes:    "[]",
			docSettings:  `{"safety_lock":true}`,
		}

		mockClient.EXPECT().
			Do(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd valkey.Completed) valkey.ValkeyResult {
				parts := cmd.Commands()
				require.Equal(t, "GET", parts[0])
				return valkeymock.Result(valkeymock.ValkeyBlobString(docs[parts[1]]))
			}).
			Times(5)

		snapshot, err := store.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot.Providers, 1)
		assert.Equal(t, "groq", snapshot.Providers[0].Id)
		assert.True(t, snapshot.SafetyLock)
	})

	t.Run("update key status rewrites the keys document", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		store := NewValkeyStore(mockClient)
		ctx := context.Background()

		keysJson, err := json.Marshal(storeSnapshot().Keys)
		require.NoError(t, err)

		mockClient.EXPECT().
			Do(ctx, valkeymock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "GET" && cmd[1] == docKeys
			}, "GET keys doc")).
			Return(valkeymock.Result(valkeymock.ValkeyBlobString(string(keysJson))))

		mockClient.EXPECT().
			Do(ctx, valkeymock.MatchFn(func(cmd []string) bool {
				if cmd[0] != "SET" || cmd[1] != docKeys {
					return false
				}
				var keys []aigateway.Key
				if err := json.Unmarshal([]byte(cmd[2]), &keys); err != nil {
					return false
				}
				return len(keys) == 1 && keys[0].Status == aigateway.KeyRevoked
			}, "SET keys doc with revoked key")).
			Return(valkeymock.Result(valkeymock.ValkeyString("OK")))

		require.NoError(t, store.UpdateKeyStatus(ctx, "groq-k1", aigateway.KeyRevoked))
	})
}
