package repository

import (
	"context"
	"time"

	"github.com/flotillaproject/flotilla/pkg/api"
)

// CancelResult describes what a cancellation request actually did.
type CancelResult string

const (
	// The job was still waiting and has been cancelled outright.
	CancelResultCancelled CancelResult = "cancelled"
	// The job is being worked on; the cancel flag has been raised for the
	// agent to act on.
	CancelResultRequested CancelResult = "cancel_requested"
	// The job was already completed or cancelled; nothing changed.
	CancelResultAlreadyTerminal CancelResult = "already_terminal"
)

type JobRepository interface {
	CreateJob(ctx context.Context, job *api.Job) error
	GetJobInfo(ctx context.Context, jobId string) (*api.JobInfo, error)
	GetExistingJobsByIds(ctx context.Context, jobIds []string) ([]*api.Job, error)
	ClaimJob(ctx context.Context, queues []string, now time.Time) (*api.JobInfo, error)
	CancelJob(ctx context.Context, jobId string) (CancelResult, error)
	MarkAttachmentsComplete(ctx context.Context, jobId string) (bool, error)
	SetJobState(ctx context.Context, jobId string, state api.JobState) (bool, error)
	ReportPhaseResult(ctx context.Context, jobId string, phase api.JobState, result *api.PhaseResult) error
	GetJobResult(ctx context.Context, jobId string) (*api.JobResult, error)
	AppendOutput(ctx context.Context, jobId string, chunk string) error
	DrainOutput(ctx context.Context, jobId string) (string, error)
	GetQueuePosition(ctx context.Context, jobId string) (int64, error)
	PeekQueue(ctx context.Context, queue string, limit int64) ([]*api.Job, error)
	GetQueueSizes(ctx context.Context, queues []string) (map[string]int64, error)
}

type AgentRepository interface {
	UpsertAgent(ctx context.Context, agent *api.AgentData) error
	GetAgents(ctx context.Context) ([]*api.AgentData, error)
	GetQueueAgents(ctx context.Context, queue string) ([]*api.AgentData, error)
	AdvertiseQueues(ctx context.Context, queues map[string]string) error
	GetAdvertisedQueues(ctx context.Context) (map[string]string, error)
}

type AuthorizationRepository interface {
	RestrictQueue(ctx context.Context, queue string) error
	UnrestrictQueue(ctx context.Context, queue string) error
	GetRestrictedQueues(ctx context.Context) ([]string, error)
	IsQueueRestricted(ctx context.Context, queue string) (bool, error)
	UpsertClientPermission(ctx context.Context, permission *api.ClientPermission) error
	GetClientPermission(ctx context.Context, clientId string) (*api.ClientPermission, error)
	DeleteClientPermission(ctx context.Context, clientId string) error
}

type TokenRepository interface {
	IssueToken(ctx context.Context, clientId string) (string, error)
	TouchToken(ctx context.Context, token string) (string, error)
	RevokeToken(ctx context.Context, token string) error
}

type StatsRepository interface {
	RecordQueueWait(ctx context.Context, queue string, seconds float64) error
	GetQueueWaitSamples(ctx context.Context, queue string) ([]float64, error)
}

// EventStore accepts job lifecycle events for recording or forwarding on.
type EventStore interface {
	ReportEvents(ctx context.Context, events []*api.JobEvent) error
}

// EventRepository additionally serves the recorded history of a job.
type EventRepository interface {
	EventStore
	GetEvents(ctx context.Context, jobId string) ([]*api.JobEvent, error)
}
