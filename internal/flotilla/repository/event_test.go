package repository

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/pkg/api"
)

func TestReportEvents_RoundTrip(t *testing.T) {
	withEventRepository(func(r *RedisEventRepository, mr *miniredis.Miniredis) {
		now := time.Now().UTC()
		err := r.ReportEvents(ctx, []*api.JobEvent{
			{JobId: "job-1", Kind: api.EventSubmitted, Created: now},
			{JobId: "job-1", Kind: api.EventClaimed, State: api.JobRunning, Created: now.Add(time.Second)},
			{JobId: "job-2", Kind: api.EventSubmitted, Created: now},
		})
		require.NoError(t, err)

		history, err := r.GetEvents(ctx, "job-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, api.EventSubmitted, history[0].Kind)
		assert.Equal(t, api.EventClaimed, history[1].Kind)
		assert.Equal(t, api.JobRunning, history[1].State)

		history, err = r.GetEvents(ctx, "job-2")
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestGetEvents_UnknownJobHasNoHistory(t *testing.T) {
	withEventRepository(func(r *RedisEventRepository, mr *miniredis.Miniredis) {
		history, err := r.GetEvents(ctx, "never-submitted")
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestEvents_ExpireWithJobRetention(t *testing.T) {
	withEventRepository(func(r *RedisEventRepository, mr *miniredis.Miniredis) {
		err := r.ReportEvent(ctx, &api.JobEvent{JobId: "job-1", Kind: api.EventSubmitted, Created: time.Now()})
		require.NoError(t, err)

		mr.FastForward(testRetention.JobRetention + time.Minute)

		history, err := r.GetEvents(ctx, "job-1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func withEventRepository(action func(r *RedisEventRepository, mr *miniredis.Miniredis)) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	action(NewRedisEventRepository(client, testRetention), mr)
}
