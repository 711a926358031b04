package permissions

import (
	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
)

const (
	SubmitJobs    permission.Permission = "submit_jobs"
	SubmitAnyJobs permission.Permission = "submit_any_jobs"
	CancelJobs    permission.Permission = "cancel_jobs"
	CancelAnyJobs permission.Permission = "cancel_any_jobs"
	ExecuteJobs   permission.Permission = "execute_jobs"

	ManageQueues      permission.Permission = "manage_queues"
	ManagePermissions permission.Permission = "manage_permissions"
)
