package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/flotilla/permissions"
	"github.com/flotillaproject/flotilla/pkg/api"
)

func TestAdminRestrictedQueues(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		require.NoError(t, s.admin.RestrictQueue(asUser("ops"), "oem-bench"))

		queues, err := s.admin.GetRestrictedQueues(asUser("ops"))
		require.NoError(t, err)
		assert.Equal(t, []string{"oem-bench"}, queues)

		require.NoError(t, s.admin.UnrestrictQueue(asUser("ops"), "oem-bench"))
		queues, err = s.admin.GetRestrictedQueues(asUser("ops"))
		require.NoError(t, err)
		assert.Empty(t, queues)
	})
}

func TestAdminRestrictQueue_EmptyName(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		err := s.admin.RestrictQueue(asUser("ops"), "")
		var invalid *flotillaerrors.ErrInvalidArgument
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestAdminOperationsRequireManagePermissions(t *testing.T) {
	checker := fakePermissionChecker{granted: map[permission.Permission]bool{}}
	withTestServers(checker, func(s testServers) {
		var noPermission *flotillaerrors.ErrNoPermission

		assert.ErrorAs(t, s.admin.RestrictQueue(asUser("alice"), "q"), &noPermission)
		assert.ErrorAs(t, s.admin.UnrestrictQueue(asUser("alice"), "q"), &noPermission)
		_, err := s.admin.GetRestrictedQueues(asUser("alice"))
		assert.ErrorAs(t, err, &noPermission)

		assert.ErrorAs(t, s.admin.UpsertClientPermission(asUser("alice"), &api.ClientPermission{ClientId: "c"}), &noPermission)
		_, err = s.admin.GetClientPermission(asUser("alice"), "c")
		assert.ErrorAs(t, err, &noPermission)
		assert.ErrorAs(t, s.admin.DeleteClientPermission(asUser("alice"), "c"), &noPermission)

		_, err = s.admin.IssueToken(asUser("alice"), "c")
		assert.ErrorAs(t, err, &noPermission)
		assert.ErrorAs(t, s.admin.RevokeToken(asUser("alice"), "tok"), &noPermission)
	})
}

func TestAdminQueueManagerCannotManagePermissions(t *testing.T) {
	checker := fakePermissionChecker{granted: map[permission.Permission]bool{
		permissions.ManageQueues: true,
	}}
	withTestServers(checker, func(s testServers) {
		require.NoError(t, s.admin.RestrictQueue(asUser("ops"), "q"))

		err := s.admin.UpsertClientPermission(asUser("ops"), &api.ClientPermission{ClientId: "c"})
		var noPermission *flotillaerrors.ErrNoPermission
		assert.ErrorAs(t, err, &noPermission)
	})
}

func TestAdminClientPermissions(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		grant := &api.ClientPermission{
			ClientId:      "lab-client",
			MaxPriority:   map[string]int64{"*": 100},
			AllowedQueues: []string{"oem-bench"},
		}
		require.NoError(t, s.admin.UpsertClientPermission(asUser("ops"), grant))

		stored, err := s.admin.GetClientPermission(asUser("ops"), "lab-client")
		require.NoError(t, err)
		assert.Equal(t, grant, stored)

		require.NoError(t, s.admin.DeleteClientPermission(asUser("ops"), "lab-client"))
		_, err = s.admin.GetClientPermission(asUser("ops"), "lab-client")
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestAdminTokenLifecycle(t *testing.T) {
	withTestServers(grantAll(), func(s testServers) {
		token, err := s.admin.IssueToken(asUser("ops"), "lab-client")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		clientId, err := s.tokens.TouchToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "lab-client", clientId)

		require.NoError(t, s.admin.RevokeToken(asUser("ops"), token))
		_, err = s.tokens.TouchToken(ctx, token)
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}
