package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/common/util"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// JobController is the slice of the submit server the orchestrator drives:
// children enter through the same admission pipeline as any job and leave
// through the same cancellation path.
type JobController interface {
	SubmitChild(ctx context.Context, spec *api.JobSpec, parentId string) (*api.Job, error)
	CancelJob(ctx context.Context, jobId string) (repository.CancelResult, error)
}

// Orchestrator runs the multi-device allocation saga: submit one child per
// device spec, wait for all of them to reach allocated, and on any failure
// cancel whatever was already submitted.
type Orchestrator struct {
	controller    JobController
	jobRepository repository.JobRepository
	config        configuration.AllocationConfig
	clock         util.Clock
}

func NewOrchestrator(
	controller JobController,
	jobRepository repository.JobRepository,
	config configuration.AllocationConfig,
) *Orchestrator {
	return &Orchestrator{
		controller:    controller,
		jobRepository: jobRepository,
		config:        config,
		clock:         &util.DefaultClock{},
	}
}

// AllocateMulti submits the parent's child jobs and polls until every child
// is allocated, returning the child ids. The saga fails if the parent is
// cancelled, a child ends before reaching allocated, or the allocation
// timeout elapses; failed sagas cancel all submitted children before
// returning. The outcome is recorded as the parent's allocate phase result
// either way.
func (o *Orchestrator) AllocateMulti(ctx context.Context, parent *api.JobInfo) ([]string, error) {
	if !parent.ProvisionData.IsMulti() {
		return nil, &flotillaerrors.ErrInvalidArgument{
			Name: "provision_data", Value: string(api.BackendMulti),
			Message: fmt.Sprintf("job %s has no multi-device provision data", parent.Id),
		}
	}

	childIds, err := o.submitChildren(ctx, parent)
	if err != nil {
		return nil, o.fail(ctx, parent.Id, childIds, err.Error(), nil)
	}

	timeout := time.Duration(parent.AllocationTimeout) * time.Second
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}
	deadline := o.clock.Now().Add(timeout)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	allocated := map[string]bool{}
	for {
		parentInfo, err := o.jobRepository.GetJobInfo(ctx, parent.Id)
		if err != nil {
			return nil, o.fail(ctx, parent.Id, childIds, fmt.Sprintf("parent vanished: %v", err), nil)
		}
		if parentInfo.State == api.JobCancelled || parentInfo.CancelRequested {
			return nil, o.fail(ctx, parent.Id, childIds, "parent was cancelled", nil)
		}
		if o.clock.Now().After(deadline) {
			return nil, o.fail(ctx, parent.Id, childIds,
				fmt.Sprintf("allocation did not finish within %s", timeout), nil)
		}

		for _, childId := range childIds {
			if allocated[childId] {
				continue
			}
			info, err := o.jobRepository.GetJobInfo(ctx, childId)
			if err != nil {
				return nil, o.fail(ctx, parent.Id, childIds,
					fmt.Sprintf("child job vanished: %v", err), []string{childId})
			}
			if info.State == api.JobAllocated {
				allocated[childId] = true
				continue
			}
			if info.State.Terminal() {
				return nil, o.fail(ctx, parent.Id, childIds,
					fmt.Sprintf("child job %s ended as %s before allocation", childId, info.State),
					[]string{childId})
			}
		}
		if len(allocated) == len(childIds) {
			o.recordOutcome(ctx, parent.Id, successResult(childIds))
			return childIds, nil
		}

		select {
		case <-ctx.Done():
			return nil, o.fail(ctx, parent.Id, childIds, fmt.Sprintf("allocation aborted: %v", ctx.Err()), nil)
		case <-ticker.C:
		}
	}
}

// WatchAllocation follows an allocated parent until it is cancelled or its
// children all finish, then cancels whatever children are still live.
// Returns true when the watch ended because the parent's cancellation was
// requested.
func (o *Orchestrator) WatchAllocation(ctx context.Context, parentId string, childIds []string) (bool, error) {
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		parent, err := o.jobRepository.GetJobInfo(ctx, parentId)
		if err != nil {
			return false, errors.Wrapf(err, "error watching job %s", parentId)
		}
		if parent.State.Terminal() {
			o.releaseChildren(ctx, parentId, childIds)
			return false, nil
		}
		if parent.CancelRequested {
			o.releaseChildren(ctx, parentId, childIds)
			return true, nil
		}

		finished := true
		for _, childId := range childIds {
			info, err := o.jobRepository.GetJobInfo(ctx, childId)
			if err != nil {
				continue
			}
			if !info.State.Terminal() {
				finished = false
				break
			}
		}
		if finished {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) submitChildren(ctx context.Context, parent *api.JobInfo) ([]string, error) {
	childIds := make([]string, 0, len(parent.ProvisionData.Multi.Jobs))
	for i := range parent.ProvisionData.Multi.Jobs {
		spec := parent.ProvisionData.Multi.Jobs[i]
		child, err := o.controller.SubmitChild(ctx, &spec, parent.Id)
		if err != nil {
			return childIds, errors.Wrapf(err, "error submitting child %d of job %s", i, parent.Id)
		}
		childIds = append(childIds, child.Id)
	}
	return childIds, nil
}

// fail runs compensation and returns the saga error. Compensation failures
// are logged and never mask the original cause.
func (o *Orchestrator) fail(ctx context.Context, parentId string, childIds []string, reason string, failedIds []string) error {
	if err := o.compensate(ctx, childIds); err != nil {
		log.Errorf("Compensation for job %s left children behind: %v", parentId, err)
	}
	provisioningErr := &flotillaerrors.ErrProvisioningFailed{Reason: reason, FailedJobIds: failedIds}
	o.recordOutcome(ctx, parentId, &api.PhaseResult{ExitCode: 1, Output: provisioningErr.Error()})
	return provisioningErr
}

// compensate cancels every child through the normal cancellation path.
// Terminal and already-expired children are fine; live ones that cannot be
// cancelled after retrying are collected into the returned error.
func (o *Orchestrator) compensate(ctx context.Context, childIds []string) error {
	var result *multierror.Error
	for _, childId := range childIds {
		err := retry.Do(
			func() error {
				_, err := o.controller.CancelJob(ctx, childId)
				var notFound *flotillaerrors.ErrNotFound
				if errors.As(err, &notFound) {
					return nil
				}
				return err
			},
			retry.Attempts(3),
			retry.Delay(100*time.Millisecond),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error cancelling child job %s", childId))
		}
	}
	return result.ErrorOrNil()
}

func (o *Orchestrator) releaseChildren(ctx context.Context, parentId string, childIds []string) {
	if err := o.compensate(ctx, childIds); err != nil {
		log.Errorf("Failed to release children of job %s: %v", parentId, err)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, parentId string, result *api.PhaseResult) {
	if err := o.jobRepository.ReportPhaseResult(ctx, parentId, api.JobAllocate, result); err != nil {
		log.Warnf("Failed to record allocation outcome of job %s: %v", parentId, err)
	}
}

func successResult(childIds []string) *api.PhaseResult {
	deviceInfo, _ := json.Marshal(struct {
		Children []string `json:"children"`
	}{Children: childIds})
	return &api.PhaseResult{ExitCode: 0, DeviceInfo: deviceInfo}
}
