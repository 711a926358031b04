package server

import (
	"context"

	"github.com/flotillaproject/flotilla/internal/flotilla/cache"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// QueueServer answers the read-only introspection queries: job views, queue
// positions and snapshots, wait times and the agent roster. Reads are open to
// any authenticated principal.
type QueueServer struct {
	jobRepository   repository.JobRepository
	agentRepository repository.AgentRepository
	eventRepository repository.EventRepository
	queueCache      *cache.QueueCache
}

func NewQueueServer(
	jobRepository repository.JobRepository,
	agentRepository repository.AgentRepository,
	eventRepository repository.EventRepository,
	queueCache *cache.QueueCache,
) *QueueServer {
	return &QueueServer{
		jobRepository:   jobRepository,
		agentRepository: agentRepository,
		eventRepository: eventRepository,
		queueCache:      queueCache,
	}
}

func (s *QueueServer) GetJobInfo(ctx context.Context, jobId string) (*api.JobInfo, error) {
	return s.jobRepository.GetJobInfo(ctx, jobId)
}

func (s *QueueServer) GetJobResult(ctx context.Context, jobId string) (*api.JobResult, error) {
	return s.jobRepository.GetJobResult(ctx, jobId)
}

func (s *QueueServer) GetJobEvents(ctx context.Context, jobId string) ([]*api.JobEvent, error) {
	if _, err := s.jobRepository.GetJobInfo(ctx, jobId); err != nil {
		return nil, err
	}
	return s.eventRepository.GetEvents(ctx, jobId)
}

// GetJobOutput returns the output buffered since the last call and clears it.
func (s *QueueServer) GetJobOutput(ctx context.Context, jobId string) (string, error) {
	return s.jobRepository.DrainOutput(ctx, jobId)
}

func (s *QueueServer) GetQueuePosition(ctx context.Context, jobId string) (int64, error) {
	return s.jobRepository.GetQueuePosition(ctx, jobId)
}

func (s *QueueServer) PeekQueue(ctx context.Context, queue string, limit int64) ([]*api.Job, error) {
	return s.jobRepository.PeekQueue(ctx, queue, limit)
}

// GetQueueWaitTimes serves wait percentiles from the refreshed snapshot.
func (s *QueueServer) GetQueueWaitTimes(ctx context.Context) map[string]map[int]float64 {
	return s.queueCache.GetQueueWaitTimes()
}

func (s *QueueServer) GetAgents(ctx context.Context) ([]*api.AgentData, error) {
	return s.agentRepository.GetAgents(ctx)
}

func (s *QueueServer) GetQueueAgents(ctx context.Context, queue string) ([]*api.AgentData, error) {
	return s.agentRepository.GetQueueAgents(ctx, queue)
}

func (s *QueueServer) GetAdvertisedQueues(ctx context.Context) (map[string]string, error) {
	return s.agentRepository.GetAdvertisedQueues(ctx)
}
