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

func TestUpsertAgent_RoundTrip(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		agent := &api.AgentData{
			Name:    "rpi-04",
			State:   "waiting",
			Queues:  []string{"cert-lab", "rpi"},
			Comment: "bench 3",
			Updated: time.Now().UTC(),
		}
		require.NoError(t, r.UpsertAgent(ctx, agent))

		agents, err := r.GetAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "rpi-04", agents[0].Name)
		assert.Equal(t, []string{"cert-lab", "rpi"}, agents[0].Queues)
	})
}

func TestUpsertAgent_LatestHeartbeatWins(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "rpi-04", State: "waiting"}))
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "rpi-04", State: "test", JobId: "job-1"}))

		agents, err := r.GetAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "test", agents[0].State)
		assert.Equal(t, "job-1", agents[0].JobId)
	})
}

func TestGetQueueAgents_FiltersByServedQueue(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "rpi-04", Queues: []string{"cert-lab"}}))
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "nuc-01", Queues: []string{"oem-bench"}}))

		serving, err := r.GetQueueAgents(ctx, "cert-lab")
		require.NoError(t, err)
		require.Len(t, serving, 1)
		assert.Equal(t, "rpi-04", serving[0].Name)

		serving, err = r.GetQueueAgents(ctx, "unused")
		require.NoError(t, err)
		assert.Empty(t, serving)
	})
}

func TestGetAgents_SilentAgentsAgeOut(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "rpi-04"}))
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "nuc-01"}))

		mr.FastForward(testRetention.AgentRetention + time.Minute)
		require.NoError(t, r.UpsertAgent(ctx, &api.AgentData{Name: "nuc-02"}))

		agents, err := r.GetAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "nuc-02", agents[0].Name)
	})
}

func TestAdvertiseQueues_RoundTrip(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		err := r.AdvertiseQueues(ctx, map[string]string{
			"cert-lab":  "certification lab devices",
			"oem-bench": "OEM bring-up bench",
		})
		require.NoError(t, err)

		queues, err := r.GetAdvertisedQueues(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"cert-lab":  "certification lab devices",
			"oem-bench": "OEM bring-up bench",
		}, queues)
	})
}

func TestAdvertiseQueues_LapseUnlessReposted(t *testing.T) {
	withAgentRepository(func(r *RedisAgentRepository, mr *miniredis.Miniredis) {
		require.NoError(t, r.AdvertiseQueues(ctx, map[string]string{"cert-lab": "lab"}))

		mr.FastForward(testRetention.QueueRetention + time.Minute)

		queues, err := r.GetAdvertisedQueues(ctx)
		require.NoError(t, err)
		assert.Empty(t, queues)
	})
}

func withAgentRepository(action func(r *RedisAgentRepository, mr *miniredis.Miniredis)) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	action(NewRedisAgentRepository(client, testRetention), mr)
}
