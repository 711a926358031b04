package api

// JobState is the lifecycle phase of a job. States are ordered; apart from
// cancellation, a job only ever moves to a state with a higher ordinal.
type JobState string

const (
	JobWaiting        JobState = "waiting"
	JobRunning        JobState = "running"
	JobSetup          JobState = "setup"
	JobProvision      JobState = "provision"
	JobFirmwareUpdate JobState = "firmware_update"
	JobTest           JobState = "test"
	JobAllocate       JobState = "allocate"
	JobAllocated      JobState = "allocated"
	JobReserve        JobState = "reserve"
	JobCleanup        JobState = "cleanup"
	JobCompleted      JobState = "completed"
	JobCancelled      JobState = "cancelled"
)

var stateOrdinals = map[JobState]int{
	JobWaiting:        0,
	JobRunning:        1,
	JobSetup:          2,
	JobProvision:      3,
	JobFirmwareUpdate: 4,
	JobTest:           5,
	JobAllocate:       6,
	JobAllocated:      7,
	JobReserve:        8,
	JobCleanup:        9,
	JobCompleted:      10,
	JobCancelled:      11,
}

// JobStates lists every valid state in ordinal order.
func JobStates() []JobState {
	return []JobState{
		JobWaiting, JobRunning, JobSetup, JobProvision, JobFirmwareUpdate,
		JobTest, JobAllocate, JobAllocated, JobReserve, JobCleanup,
		JobCompleted, JobCancelled,
	}
}

func (s JobState) Valid() bool {
	_, ok := stateOrdinals[s]
	return ok
}

func (s JobState) Ordinal() int {
	ordinal, ok := stateOrdinals[s]
	if !ok {
		return -1
	}
	return ordinal
}

// Terminal reports whether no further transition is permitted from s.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// CanTransitionTo reports whether a job in state s may move to next.
// Cancellation is reachable from every non-terminal state; all other
// transitions must strictly increase the ordinal.
func (s JobState) CanTransitionTo(next JobState) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == JobCancelled {
		return true
	}
	return next.Ordinal() > s.Ordinal()
}
