package server

import (
	"context"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/auth/permission"
	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/flotilla/permissions"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/pkg/api"
)

// AdminServer manages restricted queues, client permission records and
// refresh tokens.
type AdminServer struct {
	permissions             auth.PermissionChecker
	authorizationRepository repository.AuthorizationRepository
	tokenRepository         repository.TokenRepository
}

func NewAdminServer(
	permissions auth.PermissionChecker,
	authorizationRepository repository.AuthorizationRepository,
	tokenRepository repository.TokenRepository,
) *AdminServer {
	return &AdminServer{
		permissions:             permissions,
		authorizationRepository: authorizationRepository,
		tokenRepository:         tokenRepository,
	}
}

func (s *AdminServer) RestrictQueue(ctx context.Context, queue string) error {
	if err := s.checkPermission(ctx, permissions.ManageQueues, "restrict queues"); err != nil {
		return err
	}
	if queue == "" {
		return &flotillaerrors.ErrInvalidArgument{Name: "queue", Value: "", Message: "queue name cannot be empty"}
	}
	return s.authorizationRepository.RestrictQueue(ctx, queue)
}

func (s *AdminServer) UnrestrictQueue(ctx context.Context, queue string) error {
	if err := s.checkPermission(ctx, permissions.ManageQueues, "unrestrict queues"); err != nil {
		return err
	}
	return s.authorizationRepository.UnrestrictQueue(ctx, queue)
}

func (s *AdminServer) GetRestrictedQueues(ctx context.Context) ([]string, error) {
	if err := s.checkPermission(ctx, permissions.ManageQueues, "list restricted queues"); err != nil {
		return nil, err
	}
	return s.authorizationRepository.GetRestrictedQueues(ctx)
}

func (s *AdminServer) UpsertClientPermission(ctx context.Context, clientPermission *api.ClientPermission) error {
	if err := s.checkPermission(ctx, permissions.ManagePermissions, "manage client permissions"); err != nil {
		return err
	}
	return s.authorizationRepository.UpsertClientPermission(ctx, clientPermission)
}

func (s *AdminServer) GetClientPermission(ctx context.Context, clientId string) (*api.ClientPermission, error) {
	if err := s.checkPermission(ctx, permissions.ManagePermissions, "read client permissions"); err != nil {
		return nil, err
	}
	return s.authorizationRepository.GetClientPermission(ctx, clientId)
}

func (s *AdminServer) DeleteClientPermission(ctx context.Context, clientId string) error {
	if err := s.checkPermission(ctx, permissions.ManagePermissions, "manage client permissions"); err != nil {
		return err
	}
	return s.authorizationRepository.DeleteClientPermission(ctx, clientId)
}

// IssueToken creates a refresh token for a client. The token is returned
// once and never readable again.
func (s *AdminServer) IssueToken(ctx context.Context, clientId string) (string, error) {
	if err := s.checkPermission(ctx, permissions.ManagePermissions, "issue tokens"); err != nil {
		return "", err
	}
	return s.tokenRepository.IssueToken(ctx, clientId)
}

func (s *AdminServer) RevokeToken(ctx context.Context, token string) error {
	if err := s.checkPermission(ctx, permissions.ManagePermissions, "revoke tokens"); err != nil {
		return err
	}
	return s.tokenRepository.RevokeToken(ctx, token)
}

func (s *AdminServer) checkPermission(ctx context.Context, perm permission.Permission, action string) error {
	if !s.permissions.UserHasPermission(ctx, perm) {
		return &flotillaerrors.ErrNoPermission{
			Principal: auth.GetPrincipal(ctx).GetName(),
			Action:    action,
		}
	}
	return nil
}
