package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/common/util"
	"github.com/flotillaproject/flotilla/internal/flotilla/permissions"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// SubmitServer owns the admission pipeline: it normalizes and validates
// incoming job specs, applies the authorization gates and persists admitted
// jobs.
type SubmitServer struct {
	permissions             auth.PermissionChecker
	jobRepository           repository.JobRepository
	authorizationRepository repository.AuthorizationRepository
	eventStore              repository.EventStore
	clock                   util.Clock
}

func NewSubmitServer(
	permissions auth.PermissionChecker,
	jobRepository repository.JobRepository,
	authorizationRepository repository.AuthorizationRepository,
	eventStore repository.EventStore,
) *SubmitServer {
	return &SubmitServer{
		permissions:             permissions,
		jobRepository:           jobRepository,
		authorizationRepository: authorizationRepository,
		eventStore:              eventStore,
		clock:                   &util.DefaultClock{},
	}
}

// SubmitJob admits one job for the calling principal.
func (s *SubmitServer) SubmitJob(ctx context.Context, spec *api.JobSpec) (*api.Job, error) {
	return s.submitJob(ctx, spec, "")
}

// SubmitChild admits a job on behalf of a multi-device parent. The child
// passes the same admission pipeline as any direct submission.
func (s *SubmitServer) SubmitChild(ctx context.Context, spec *api.JobSpec, parentId string) (*api.Job, error) {
	if parentId == "" {
		return nil, &flotillaerrors.ErrInvalidArgument{Name: "parent_job_id", Value: "", Message: "parent job id cannot be empty"}
	}
	return s.submitJob(ctx, spec, parentId)
}

func (s *SubmitServer) submitJob(ctx context.Context, spec *api.JobSpec, parentId string) (*api.Job, error) {
	normalizeJobSpec(spec)
	if err := validateJobSpec(spec); err != nil {
		return nil, err
	}
	if err := s.checkSubmitAuthorization(ctx, spec); err != nil {
		return nil, err
	}

	principal := auth.GetPrincipal(ctx)
	job := &api.Job{
		Id:                 uuid.NewString(),
		ParentId:           parentId,
		Owner:              principal.GetName(),
		Created:            s.clock.Now().UTC(),
		Queue:              spec.Queue,
		Priority:           spec.Priority,
		Attachments:        spec.Attachments,
		ProvisionData:      spec.ProvisionData,
		FirmwareUpdateData: spec.FirmwareUpdateData,
		SetupData:          spec.SetupData,
		TestData:           spec.TestData,
		AllocateData:       spec.AllocateData,
		ReserveData:        spec.ReserveData,
		AllocationTimeout:  spec.AllocationTimeout,
	}

	if err := s.jobRepository.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	err := s.eventStore.ReportEvents(ctx, []*api.JobEvent{{
		JobId:   job.Id,
		Kind:    api.EventSubmitted,
		State:   api.JobWaiting,
		Created: s.clock.Now().UTC(),
	}})
	if err != nil {
		return nil, errors.Wrapf(err, "error recording submission of job %s", job.Id)
	}
	return job, nil
}

// CancelJob cancels a job the caller owns, or any job for principals holding
// the cancel-any permission. Cancelling a terminal job reports what the job
// ended as without treating it as a failure.
func (s *SubmitServer) CancelJob(ctx context.Context, jobId string) (repository.CancelResult, error) {
	info, err := s.jobRepository.GetJobInfo(ctx, jobId)
	if err != nil {
		return "", err
	}
	if err := s.checkOwnership(ctx, info.Job, permissions.CancelJobs, permissions.CancelAnyJobs, "cancel"); err != nil {
		return "", err
	}

	result, err := s.jobRepository.CancelJob(ctx, jobId)
	if err != nil {
		return "", err
	}

	var event *api.JobEvent
	switch result {
	case repository.CancelResultCancelled:
		event = &api.JobEvent{JobId: jobId, Kind: api.EventCancelled, State: api.JobCancelled}
	case repository.CancelResultRequested:
		event = &api.JobEvent{JobId: jobId, Kind: api.EventCancelRequested, State: info.State}
	}
	if event != nil {
		event.Created = s.clock.Now().UTC()
		if err := s.eventStore.ReportEvents(ctx, []*api.JobEvent{event}); err != nil {
			return "", errors.Wrapf(err, "error recording cancellation of job %s", jobId)
		}
	}
	return result, nil
}

// AttachmentsReceived reports that a gated job's upload finished, making the
// job claimable unless it was cancelled in the meantime.
func (s *SubmitServer) AttachmentsReceived(ctx context.Context, jobId string) error {
	info, err := s.jobRepository.GetJobInfo(ctx, jobId)
	if err != nil {
		return err
	}
	if err := s.checkOwnership(ctx, info.Job, permissions.SubmitJobs, permissions.SubmitAnyJobs, "upload attachments for"); err != nil {
		return err
	}

	enqueued, err := s.jobRepository.MarkAttachmentsComplete(ctx, jobId)
	if err != nil {
		return err
	}
	if enqueued {
		err := s.eventStore.ReportEvents(ctx, []*api.JobEvent{{
			JobId:   jobId,
			Kind:    api.EventStateChanged,
			State:   api.JobWaiting,
			Note:    "attachments complete",
			Created: s.clock.Now().UTC(),
		}})
		if err != nil {
			return errors.Wrapf(err, "error recording attachment completion of job %s", jobId)
		}
	}
	return nil
}

func (s *SubmitServer) checkSubmitAuthorization(ctx context.Context, spec *api.JobSpec) error {
	principal := auth.GetPrincipal(ctx)
	if !s.permissions.UserHasPermission(ctx, permissions.SubmitJobs) {
		return &flotillaerrors.ErrNoPermission{
			Principal: principal.GetName(),
			Queue:     spec.Queue,
			Action:    "submit jobs",
		}
	}
	if s.permissions.UserHasPermission(ctx, permissions.SubmitAnyJobs) {
		return nil
	}

	clientPermission, err := s.getClientPermission(ctx, principal.GetName())
	if err != nil {
		return err
	}

	restricted, err := s.authorizationRepository.IsQueueRestricted(ctx, spec.Queue)
	if err != nil {
		return err
	}
	if restricted && !clientPermission.QueueAllowed(spec.Queue) {
		return &flotillaerrors.ErrNoPermission{
			Principal: principal.GetName(),
			Queue:     spec.Queue,
			Action:    "submit to restricted queue",
		}
	}
	if spec.Priority > 0 && spec.Priority > clientPermission.PriorityCeiling(spec.Queue) {
		return &flotillaerrors.ErrNoPermission{
			Principal: principal.GetName(),
			Queue:     spec.Queue,
			Action:    fmt.Sprintf("submit at priority %d", spec.Priority),
		}
	}
	return nil
}

// getClientPermission resolves the caller's permission record; principals
// without one get the zero grant.
func (s *SubmitServer) getClientPermission(ctx context.Context, clientId string) (*api.ClientPermission, error) {
	clientPermission, err := s.authorizationRepository.GetClientPermission(ctx, clientId)
	if err != nil {
		var notFound *flotillaerrors.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	return clientPermission, nil
}

func (s *SubmitServer) checkOwnership(ctx context.Context, job *api.Job, own, any permission.Permission, action string) error {
	principal := auth.GetPrincipal(ctx)
	if s.permissions.UserHasPermission(ctx, any) {
		return nil
	}
	if s.permissions.UserHasPermission(ctx, own) && job.Owner == principal.GetName() {
		return nil
	}
	return &flotillaerrors.ErrNoPermission{
		Principal: principal.GetName(),
		Queue:     job.Queue,
		Action:    action + " job " + job.Id,
	}
}

func normalizeJobSpec(spec *api.JobSpec) {
	spec.Queue = strings.ToLower(strings.TrimSpace(spec.Queue))
	if spec.ProvisionData != nil && spec.ProvisionData.Multi != nil {
		for i := range spec.ProvisionData.Multi.Jobs {
			child := &spec.ProvisionData.Multi.Jobs[i]
			child.Queue = strings.ToLower(strings.TrimSpace(child.Queue))
		}
	}
}

func validateJobSpec(spec *api.JobSpec) error {
	var result *multierror.Error
	if spec.Queue == "" {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name: "job_queue", Value: "", Message: "queue name cannot be empty",
		})
	}
	if spec.Priority < 0 {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name: "job_priority", Value: fmt.Sprintf("%d", spec.Priority), Message: "priority cannot be negative",
		})
	}
	if spec.AllocationTimeout < 0 {
		result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
			Name: "allocation_timeout", Value: fmt.Sprintf("%d", spec.AllocationTimeout), Message: "allocation timeout cannot be negative",
		})
	}
	for _, attachment := range spec.Attachments {
		if attachment.Local == "" {
			result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
				Name: "attachments", Value: "", Message: "attachment local path cannot be empty",
			})
			continue
		}
		for _, path := range []string{attachment.Local, attachment.Agent} {
			if path != "" && !pathStaysInWorkspace(path) {
				result = multierror.Append(result, &flotillaerrors.ErrInvalidArgument{
					Name: "attachments", Value: path, Message: "attachment paths must stay inside the job workspace",
				})
			}
		}
	}
	if spec.ProvisionData != nil {
		result = multierror.Append(result, spec.ProvisionData.Validate())
	}
	return result.ErrorOrNil()
}

func pathStaysInWorkspace(path string) bool {
	if filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(path)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
