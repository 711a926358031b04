package api

import (
	"encoding/json"
	"time"
)

// Attachment names one file the client uploads before the job becomes
// claimable. Local is the client-side path, Agent the path the agent
// materializes it at.
type Attachment struct {
	Local string `json:"local"`
	Agent string `json:"agent,omitempty"`
}

// JobSpec is the client-supplied portion of a job.
type JobSpec struct {
	Queue              string          `json:"job_queue"`
	Priority           int64           `json:"job_priority,omitempty"`
	Attachments        []Attachment    `json:"attachments,omitempty"`
	ProvisionData      *ProvisionData  `json:"provision_data,omitempty"`
	FirmwareUpdateData json.RawMessage `json:"firmware_update_data,omitempty"`
	SetupData          json.RawMessage `json:"setup_data,omitempty"`
	TestData           json.RawMessage `json:"test_data,omitempty"`
	AllocateData       json.RawMessage `json:"allocate_data,omitempty"`
	ReserveData        json.RawMessage `json:"reserve_data,omitempty"`
	// AllocationTimeout bounds the multi-device allocation saga, in seconds.
	AllocationTimeout int64 `json:"allocation_timeout,omitempty"`
}

// Job is the immutable record created at admission.
type Job struct {
	Id       string    `json:"job_id"`
	ParentId string    `json:"parent_job_id,omitempty"`
	Owner    string    `json:"owner,omitempty"`
	Created  time.Time `json:"created_at"`

	Queue              string          `json:"job_queue"`
	Priority           int64           `json:"job_priority,omitempty"`
	Attachments        []Attachment    `json:"attachments,omitempty"`
	ProvisionData      *ProvisionData  `json:"provision_data,omitempty"`
	FirmwareUpdateData json.RawMessage `json:"firmware_update_data,omitempty"`
	SetupData          json.RawMessage `json:"setup_data,omitempty"`
	TestData           json.RawMessage `json:"test_data,omitempty"`
	AllocateData       json.RawMessage `json:"allocate_data,omitempty"`
	ReserveData        json.RawMessage `json:"reserve_data,omitempty"`
	AllocationTimeout  int64           `json:"allocation_timeout,omitempty"`
}

// Gated reports whether the job was submitted with attachments and therefore
// starts outside the claimable queue.
func (j *Job) Gated() bool {
	return len(j.Attachments) > 0
}

// AttachmentsStatus tracks readiness of a gated job's upload.
type AttachmentsStatus string

const (
	AttachmentsWaiting  AttachmentsStatus = "waiting"
	AttachmentsComplete AttachmentsStatus = "complete"
)

// JobStatus is the mutable side of a job.
type JobStatus struct {
	State             JobState          `json:"job_state"`
	Started           *time.Time        `json:"started_at,omitempty"`
	CancelRequested   bool              `json:"cancel_requested,omitempty"`
	AttachmentsStatus AttachmentsStatus `json:"attachments_status,omitempty"`
}

// JobInfo is the combined view returned to pollers.
type JobInfo struct {
	*Job
	JobStatus
}

// PhaseResult is the outcome an agent reports for one phase.
type PhaseResult struct {
	ExitCode   int             `json:"exit_code"`
	Output     string          `json:"output,omitempty"`
	Serial     string          `json:"serial,omitempty"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty"`
}

// JobResult aggregates the per-phase outcomes with the current state.
type JobResult struct {
	JobState JobState                 `json:"job_state"`
	Phases   map[JobState]PhaseResult `json:"phases,omitempty"`
}

// Event kinds recorded on the per-job stream.
const (
	EventSubmitted       = "submitted"
	EventClaimed         = "claimed"
	EventStateChanged    = "state_changed"
	EventCancelRequested = "cancel_requested"
	EventCancelled       = "cancelled"
	EventResultReported  = "result_reported"
)

type JobEvent struct {
	JobId   string    `json:"job_id"`
	Kind    string    `json:"kind"`
	State   JobState  `json:"job_state,omitempty"`
	Note    string    `json:"note,omitempty"`
	Created time.Time `json:"created_at"`
}

// AgentData is an agent's self-reported heartbeat document.
type AgentData struct {
	Name    string    `json:"name"`
	State   string    `json:"state,omitempty"`
	Queues  []string  `json:"queues,omitempty"`
	Comment string    `json:"comment,omitempty"`
	JobId   string    `json:"job_id,omitempty"`
	Updated time.Time `json:"updated_at"`
}

// ClientPermission grants a client queue access and priority headroom.
// MaxPriority maps queue names to the highest admissible priority; the "*"
// key applies to queues without an explicit entry.
type ClientPermission struct {
	ClientId              string           `json:"client_id"`
	MaxPriority           map[string]int64 `json:"max_priority,omitempty"`
	AllowedQueues         []string         `json:"allowed_queues,omitempty"`
	MaxReservationSeconds int64            `json:"max_reservation_seconds,omitempty"`
}

// PriorityCeiling resolves the highest priority the client may request on
// queue, falling back to the wildcard entry and finally to zero.
func (p *ClientPermission) PriorityCeiling(queue string) int64 {
	if p == nil {
		return 0
	}
	if ceiling, ok := p.MaxPriority[queue]; ok {
		return ceiling
	}
	if ceiling, ok := p.MaxPriority["*"]; ok {
		return ceiling
	}
	return 0
}

// QueueAllowed reports whether the client may submit to a restricted queue.
func (p *ClientPermission) QueueAllowed(queue string) bool {
	if p == nil {
		return false
	}
	for _, allowed := range p.AllowedQueues {
		if allowed == queue {
			return true
		}
	}
	return false
}
