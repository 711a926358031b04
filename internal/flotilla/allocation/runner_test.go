package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/pkg/api"
)

func TestRunnerAllocatesMultiJob(t *testing.T) {
	withAllocation(func(h allocationHarness) {
		parent, err := h.submit.SubmitJob(asUser("client"), multiSpec("rpi"))
		require.NoError(t, err)

		h.runner.CheckForWork()
		defer h.runner.Stop()

		var childId string
		require.Eventually(t, func() bool {
			claimed, err := h.jobs.ClaimJob(ctx, []string{"rpi"}, time.Now())
			if err != nil || claimed == nil {
				return false
			}
			childId = claimed.Id
			applied, err := h.jobs.SetJobState(ctx, childId, api.JobAllocated)
			return err == nil && applied
		}, 5*time.Second, 5*time.Millisecond)

		require.Eventually(t, func() bool {
			info, err := h.jobs.GetJobInfo(ctx, parent.Id)
			return err == nil && info.State == api.JobAllocated
		}, 5*time.Second, 5*time.Millisecond)

		applied, err := h.jobs.SetJobState(ctx, childId, api.JobCompleted)
		require.NoError(t, err)
		require.True(t, applied)

		require.Eventually(t, func() bool {
			info, err := h.jobs.GetJobInfo(ctx, parent.Id)
			return err == nil && info.State == api.JobCompleted
		}, 5*time.Second, 5*time.Millisecond)

		result, err := h.jobs.GetJobResult(ctx, parent.Id)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Phases[api.JobAllocate].ExitCode)

		history, err := h.events.GetEvents(ctx, parent.Id)
		require.NoError(t, err)
		kinds := make([]string, 0, len(history))
		for _, event := range history {
			kinds = append(kinds, event.Kind)
		}
		assert.Equal(t, []string{
			api.EventSubmitted,
			api.EventClaimed,
			api.EventStateChanged,
			api.EventStateChanged,
			api.EventStateChanged,
		}, kinds)
		assert.Equal(t, api.JobCompleted, history[len(history)-1].State)
	})
}

func TestRunnerHeartbeatsBeforeClaiming(t *testing.T) {
	withAllocation(func(h allocationHarness) {
		h.runner.CheckForWork()
		h.runner.Stop()

		agents, err := h.agents.GetAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, "allocator", agents[0].Name)
		assert.Equal(t, "waiting", agents[0].State)
		assert.Equal(t, []string{"multi"}, agents[0].Queues)
	})
}

func TestRunnerFailsPlainJobOnAllocationQueue(t *testing.T) {
	withAllocation(func(h allocationHarness) {
		job, err := h.submit.SubmitJob(asUser("client"), &api.JobSpec{Queue: "multi"})
		require.NoError(t, err)

		h.runner.CheckForWork()
		defer h.runner.Stop()

		require.Eventually(t, func() bool {
			info, err := h.jobs.GetJobInfo(ctx, job.Id)
			return err == nil && info.State == api.JobCompleted
		}, 5*time.Second, 5*time.Millisecond)

		result, err := h.jobs.GetJobResult(ctx, job.Id)
		require.NoError(t, err)
		allocate := result.Phases[api.JobAllocate]
		assert.Equal(t, 1, allocate.ExitCode)
		assert.Contains(t, allocate.Output, "no multi-device provision data")
	})
}

func TestRunnerReportsCancelledParent(t *testing.T) {
	withAllocation(func(h allocationHarness) {
		parent, err := h.submit.SubmitJob(asUser("client"), multiSpec("rpi"))
		require.NoError(t, err)

		h.runner.CheckForWork()
		defer h.runner.Stop()

		childIds := h.waitForChildren(t, "rpi", 1)
		_, err = h.submit.CancelJob(asUser("client"), parent.Id)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			info, err := h.jobs.GetJobInfo(ctx, parent.Id)
			return err == nil && info.State == api.JobCancelled
		}, 5*time.Second, 5*time.Millisecond)

		info, err := h.jobs.GetJobInfo(ctx, childIds[0])
		require.NoError(t, err)
		assert.Equal(t, api.JobCancelled, info.State)
	})
}
