package server

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/common/util"
	"github.com/flotillaproject/flotilla/internal/flotilla/permissions"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// AgentServer serves the device agents: claiming work, reporting progress
// and results, relaying output and heartbeating.
type AgentServer struct {
	permissions     auth.PermissionChecker
	jobRepository   repository.JobRepository
	agentRepository repository.AgentRepository
	statsRepository repository.StatsRepository
	eventStore      repository.EventStore
	clock           util.Clock
}

func NewAgentServer(
	permissions auth.PermissionChecker,
	jobRepository repository.JobRepository,
	agentRepository repository.AgentRepository,
	statsRepository repository.StatsRepository,
	eventStore repository.EventStore,
) *AgentServer {
	return &AgentServer{
		permissions:     permissions,
		jobRepository:   jobRepository,
		agentRepository: agentRepository,
		statsRepository: statsRepository,
		eventStore:      eventStore,
		clock:           &util.DefaultClock{},
	}
}

// ClaimJob hands the best waiting job across the requested queues to the
// caller, or nil when there is nothing to do. Once the claim lands the job is
// the agent's; bookkeeping failures after that point are logged, not returned.
func (s *AgentServer) ClaimJob(ctx context.Context, queues []string) (*api.JobInfo, error) {
	if err := s.checkAgentPermission(ctx, "claim jobs"); err != nil {
		return nil, err
	}
	if len(queues) == 0 {
		return nil, &flotillaerrors.ErrInvalidArgument{Name: "queue", Value: "", Message: "at least one queue is required"}
	}

	now := s.clock.Now().UTC()
	info, err := s.jobRepository.ClaimJob(ctx, queues, now)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	wait := now.Sub(info.Created).Seconds()
	if wait < 0 {
		wait = 0
	}
	if err := s.statsRepository.RecordQueueWait(ctx, info.Queue, wait); err != nil {
		log.Warnf("Failed to record wait time of job %s: %v", info.Id, err)
	}
	err = s.eventStore.ReportEvents(ctx, []*api.JobEvent{{
		JobId:   info.Id,
		Kind:    api.EventClaimed,
		State:   api.JobRunning,
		Created: now,
	}})
	if err != nil {
		log.Warnf("Failed to record claim of job %s: %v", info.Id, err)
	}
	return info, nil
}

// ReportJobState applies an agent's phase transition. Returns whether the
// report was applied; stale or backward reports are dropped.
func (s *AgentServer) ReportJobState(ctx context.Context, jobId string, state api.JobState) (bool, error) {
	if err := s.checkAgentPermission(ctx, "report job state"); err != nil {
		return false, err
	}

	applied, err := s.jobRepository.SetJobState(ctx, jobId, state)
	if err != nil {
		return false, err
	}
	if !applied {
		log.Warnf("Dropped state report %s for job %s", state, jobId)
		return false, nil
	}

	kind := api.EventStateChanged
	if state == api.JobCancelled {
		kind = api.EventCancelled
	}
	err = s.eventStore.ReportEvents(ctx, []*api.JobEvent{{
		JobId:   jobId,
		Kind:    kind,
		State:   state,
		Created: s.clock.Now().UTC(),
	}})
	if err != nil {
		log.Warnf("Failed to record state change of job %s: %v", jobId, err)
	}
	return true, nil
}

// ReportPhaseResult stores the outcome of one phase.
func (s *AgentServer) ReportPhaseResult(ctx context.Context, jobId string, phase api.JobState, result *api.PhaseResult) error {
	if err := s.checkAgentPermission(ctx, "report results"); err != nil {
		return err
	}
	if err := s.jobRepository.ReportPhaseResult(ctx, jobId, phase, result); err != nil {
		return err
	}
	err := s.eventStore.ReportEvents(ctx, []*api.JobEvent{{
		JobId:   jobId,
		Kind:    api.EventResultReported,
		State:   phase,
		Created: s.clock.Now().UTC(),
	}})
	if err != nil {
		log.Warnf("Failed to record result report of job %s: %v", jobId, err)
	}
	return nil
}

// AppendOutput buffers live output for the job's submitter to poll.
func (s *AgentServer) AppendOutput(ctx context.Context, jobId string, chunk string) error {
	if err := s.checkAgentPermission(ctx, "post output"); err != nil {
		return err
	}
	return s.jobRepository.AppendOutput(ctx, jobId, chunk)
}

// Heartbeat stores the agent's self-reported state and refreshes its
// registration.
func (s *AgentServer) Heartbeat(ctx context.Context, agent *api.AgentData) error {
	if err := s.checkAgentPermission(ctx, "post agent data"); err != nil {
		return err
	}
	if agent.Name == "" {
		return &flotillaerrors.ErrInvalidArgument{Name: "name", Value: "", Message: "agent name cannot be empty"}
	}
	agent.Updated = s.clock.Now().UTC()
	return s.agentRepository.UpsertAgent(ctx, agent)
}

// AdvertiseQueues publishes queue descriptions on behalf of an agent.
func (s *AgentServer) AdvertiseQueues(ctx context.Context, queues map[string]string) error {
	if err := s.checkAgentPermission(ctx, "advertise queues"); err != nil {
		return err
	}
	return s.agentRepository.AdvertiseQueues(ctx, queues)
}

func (s *AgentServer) checkAgentPermission(ctx context.Context, action string) error {
	if !s.permissions.UserHasPermission(ctx, permissions.ExecuteJobs) {
		return &flotillaerrors.ErrNoPermission{
			Principal: auth.GetPrincipal(ctx).GetName(),
			Action:    action,
		}
	}
	return nil
}
