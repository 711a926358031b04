package allocation

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/internal/flotilla/server"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// Runner is the broker's in-process executor for multi-device parents. It
// claims from the configured queues like any agent, hands each parent to the
// orchestrator and reports the parent's lifecycle back through the agent
// server, so a multi-device job looks no different from one run by hardware.
type Runner struct {
	config        configuration.AllocationConfig
	agentServer   *server.AgentServer
	jobRepository repository.JobRepository
	orchestrator  *Orchestrator

	wg sync.WaitGroup
}

func NewRunner(
	config configuration.AllocationConfig,
	agentServer *server.AgentServer,
	jobRepository repository.JobRepository,
	orchestrator *Orchestrator,
) *Runner {
	return &Runner{
		config:        config,
		agentServer:   agentServer,
		jobRepository: jobRepository,
		orchestrator:  orchestrator,
	}
}

// CheckForWork heartbeats, then drains the allocation queues, dispatching
// each claimed parent to its own saga goroutine. Meant to run on a
// background task interval.
func (r *Runner) CheckForWork() {
	if len(r.config.Queues) == 0 {
		return
	}
	ctx := r.serviceContext()

	err := r.agentServer.Heartbeat(ctx, &api.AgentData{
		Name:   r.config.AgentName,
		State:  "waiting",
		Queues: r.config.Queues,
	})
	if err != nil {
		log.Warnf("Allocation runner heartbeat failed: %v", err)
	}

	for {
		parent, err := r.agentServer.ClaimJob(ctx, r.config.Queues)
		if err != nil {
			log.Errorf("Allocation runner failed to claim work: %v", err)
			return
		}
		if parent == nil {
			return
		}
		r.wg.Add(1)
		go func(parent *api.JobInfo) {
			defer r.wg.Done()
			r.runAllocation(parent)
		}(parent)
	}
}

// Stop waits for in-flight sagas to finish.
func (r *Runner) Stop() {
	r.wg.Wait()
}

func (r *Runner) runAllocation(parent *api.JobInfo) {
	ctx := r.serviceContext()

	if !parent.ProvisionData.IsMulti() {
		log.Warnf("Job %s claimed from an allocation queue has no multi-device provision data", parent.Id)
		err := r.agentServer.ReportPhaseResult(ctx, parent.Id, api.JobAllocate, &api.PhaseResult{
			ExitCode: 1,
			Output:   "job has no multi-device provision data",
		})
		if err != nil {
			log.Warnf("Failed to record outcome of job %s: %v", parent.Id, err)
		}
		r.reportState(ctx, parent.Id, api.JobCompleted)
		return
	}

	r.reportState(ctx, parent.Id, api.JobAllocate)

	childIds, err := r.orchestrator.AllocateMulti(ctx, parent)
	if err != nil {
		log.Errorf("Allocation of job %s failed: %v", parent.Id, err)
		if r.parentWasCancelled(ctx, parent.Id) {
			r.reportState(ctx, parent.Id, api.JobCancelled)
		} else {
			r.reportState(ctx, parent.Id, api.JobCompleted)
		}
		return
	}

	log.Infof("Job %s allocated %d devices", parent.Id, len(childIds))
	r.reportState(ctx, parent.Id, api.JobAllocated)

	cancelled, err := r.orchestrator.WatchAllocation(ctx, parent.Id, childIds)
	if err != nil {
		log.Errorf("Watch of allocated job %s ended: %v", parent.Id, err)
		return
	}
	if cancelled {
		r.reportState(ctx, parent.Id, api.JobCancelled)
	} else {
		r.reportState(ctx, parent.Id, api.JobCompleted)
	}
}

func (r *Runner) reportState(ctx context.Context, jobId string, state api.JobState) {
	if _, err := r.agentServer.ReportJobState(ctx, jobId, state); err != nil {
		log.Warnf("Failed to report job %s as %s: %v", jobId, state, err)
	}
}

func (r *Runner) parentWasCancelled(ctx context.Context, jobId string) bool {
	info, err := r.jobRepository.GetJobInfo(ctx, jobId)
	if err != nil {
		return false
	}
	return info.CancelRequested || info.State == api.JobCancelled
}

func (r *Runner) serviceContext() context.Context {
	return auth.WithPrincipal(context.Background(), auth.NewStaticPrincipal(r.config.AgentName, "internal", nil))
}
