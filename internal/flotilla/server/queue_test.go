package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/pkg/api"
)

func TestQueueServer_GetJobEvents(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		job, err := s.submit.SubmitJob(asUser("alice"), &api.JobSpec{Queue: "q"})
		require.NoError(t, err)
		_, err = s.agent.ClaimJob(asUser("rpi-04"), []string{"q"})
		require.NoError(t, err)

		history, err := s.queue.GetJobEvents(ctx, job.Id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, api.EventSubmitted, history[0].Kind)
		assert.Equal(t, api.EventClaimed, history[1].Kind)
	})
}

func TestQueueServer_GetJobEvents_UnknownJob(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		_, err := s.queue.GetJobEvents(ctx, "no-such-job")
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestQueueServer_GetQueuePosition(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		first, err := s.submit.SubmitJob(asUser("alice"), &api.JobSpec{Queue: "q", Priority: 10})
		require.NoError(t, err)
		second, err := s.submit.SubmitJob(asUser("alice"), &api.JobSpec{Queue: "q"})
		require.NoError(t, err)

		position, err := s.queue.GetQueuePosition(ctx, first.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), position)

		position, err = s.queue.GetQueuePosition(ctx, second.Id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), position)
	})
}

func TestQueueServer_PeekQueue(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		_, err := s.submit.SubmitJob(asUser("alice"), &api.JobSpec{Queue: "q", Priority: 5})
		require.NoError(t, err)
		top, err := s.submit.SubmitJob(asUser("alice"), &api.JobSpec{Queue: "q", Priority: 50})
		require.NoError(t, err)

		jobs, err := s.queue.PeekQueue(ctx, "q", 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, top.Id, jobs[0].Id)
	})
}

func TestQueueServer_GetQueueWaitTimes(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		for _, sample := range []float64{10, 20, 30, 40, 50} {
			require.NoError(t, s.stats.RecordQueueWait(ctx, "q", sample))
		}
		require.NoError(t, s.agents.AdvertiseQueues(ctx, map[string]string{"q": "bench"}))
		s.cache.Refresh()

		waitTimes := s.queue.GetQueueWaitTimes(ctx)
		require.Contains(t, waitTimes, "q")
		assert.InDelta(t, 30.0, waitTimes["q"][50], 1e-9)
		assert.InDelta(t, 46.0, waitTimes["q"][90], 1e-9)
	})
}

func TestQueueServer_GetQueueAgents(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		require.NoError(t, s.agent.Heartbeat(asUser("rpi-04"), &api.AgentData{Name: "rpi-04", Queues: []string{"q"}}))
		require.NoError(t, s.agent.Heartbeat(asUser("nuc-01"), &api.AgentData{Name: "nuc-01", Queues: []string{"other"}}))

		serving, err := s.queue.GetQueueAgents(ctx, "q")
		require.NoError(t, err)
		require.Len(t, serving, 1)
		assert.Equal(t, "rpi-04", serving[0].Name)
	})
}
