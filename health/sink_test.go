package health

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"

	"github.com/studyos/aigateway"
)

func TestValkeySink(t *testing.T) {
	t.Run("appends and trims the log", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockClient := valkeymock.NewClient(ctrl)
		sink := NewValkeySink(mockClient)
		ctx := context.Background()

		mockClient.EXPECT().
			Do(ctx, valkeymock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "LPUSH" && cmd[1] == usageLogKey
			}, "LPUSH usage log entry")).
			Return(valkeymock.Result(valkeymock.ValkeyInt64(1)))

		mockClient.EXPECT().
			Do(ctx, valkeymock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "LTRIM" && cmd[1] == usageLogKey &&
					cmd[3] == strconv.Itoa(usageLogMaxEntries-1)
			}, "LTRIM usage log to cap")).
			Return(valkeymock.Result(valkeymock.ValkeyString("OK")))

		err := sink.Append(ctx, Entry{
			Id:         "entry-1",
			Timestamp:  time.Now(),
			Task:       aigateway.TaskChat,
			ProviderId: "groq",
			ModelId:    "groq-llama-3.1-8b",
			Success:    true,
		})
		require.NoError(t, err)
	})
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Append(context.Background(), Entry{Id: "a"}))
	require.NoError(t, sink.Append(context.Background(), Entry{Id: "b"}))

	entries := sink.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Id)

	// The returned slice is a copy.
	entries[0].Id = "mutated"
	assert.Equal(t, "a", sink.Entries()[0].Id)
}
