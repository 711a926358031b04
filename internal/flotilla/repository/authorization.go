package repository

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/pkg/api"
)

const (
	restrictedQueuesKey    = "RestrictedQueues"
	clientPermissionPrefix = "ClientPermission:"
)

// RedisAuthorizationRepository stores the restricted-queue set and per-client
// permission records. Authorization data has no expiry; operators remove
// entries explicitly.
type RedisAuthorizationRepository struct {
	db redis.UniversalClient
}

func NewRedisAuthorizationRepository(db redis.UniversalClient) *RedisAuthorizationRepository {
	return &RedisAuthorizationRepository{db: db}
}

func (repo *RedisAuthorizationRepository) RestrictQueue(ctx context.Context, queue string) error {
	added, err := repo.db.SAdd(ctx, restrictedQueuesKey, queue).Result()
	if err != nil {
		return errors.Wrapf(err, "[RedisAuthorizationRepository.RestrictQueue] error restricting queue %s", queue)
	}
	if added == 0 {
		return &flotillaerrors.ErrAlreadyExists{Type: "restricted queue", Value: queue}
	}
	return nil
}

func (repo *RedisAuthorizationRepository) UnrestrictQueue(ctx context.Context, queue string) error {
	removed, err := repo.db.SRem(ctx, restrictedQueuesKey, queue).Result()
	if err != nil {
		return errors.Wrapf(err, "[RedisAuthorizationRepository.UnrestrictQueue] error unrestricting queue %s", queue)
	}
	if removed == 0 {
		return &flotillaerrors.ErrNotFound{Type: "restricted queue", Value: queue}
	}
	return nil
}

func (repo *RedisAuthorizationRepository) GetRestrictedQueues(ctx context.Context) ([]string, error) {
	queues, err := repo.db.SMembers(ctx, restrictedQueuesKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[RedisAuthorizationRepository.GetRestrictedQueues] error listing restricted queues")
	}
	sort.Strings(queues)
	return queues, nil
}

func (repo *RedisAuthorizationRepository) IsQueueRestricted(ctx context.Context, queue string) (bool, error) {
	restricted, err := repo.db.SIsMember(ctx, restrictedQueuesKey, queue).Result()
	if err != nil {
		return false, errors.Wrapf(err, "[RedisAuthorizationRepository.IsQueueRestricted] error checking queue %s", queue)
	}
	return restricted, nil
}

func (repo *RedisAuthorizationRepository) UpsertClientPermission(ctx context.Context, permission *api.ClientPermission) error {
	if permission.ClientId == "" {
		return &flotillaerrors.ErrInvalidArgument{Name: "client_id", Value: "", Message: "client id cannot be empty"}
	}
	data, err := json.Marshal(permission)
	if err != nil {
		return errors.Wrapf(err, "[RedisAuthorizationRepository.UpsertClientPermission] error marshalling permission for %s", permission.ClientId)
	}
	err = repo.db.Set(ctx, clientPermissionPrefix+permission.ClientId, data, 0).Err()
	return errors.Wrapf(err, "[RedisAuthorizationRepository.UpsertClientPermission] error saving permission for %s", permission.ClientId)
}

func (repo *RedisAuthorizationRepository) GetClientPermission(ctx context.Context, clientId string) (*api.ClientPermission, error) {
	data, err := repo.db.Get(ctx, clientPermissionPrefix+clientId).Result()
	if err == redis.Nil {
		return nil, &flotillaerrors.ErrNotFound{Type: "client permission", Value: clientId}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisAuthorizationRepository.GetClientPermission] error reading permission for %s", clientId)
	}
	permission := &api.ClientPermission{}
	if err := json.Unmarshal([]byte(data), permission); err != nil {
		return nil, errors.Wrapf(err, "[RedisAuthorizationRepository.GetClientPermission] error unmarshalling permission for %s", clientId)
	}
	return permission, nil
}

func (repo *RedisAuthorizationRepository) DeleteClientPermission(ctx context.Context, clientId string) error {
	removed, err := repo.db.Del(ctx, clientPermissionPrefix+clientId).Result()
	if err != nil {
		return errors.Wrapf(err, "[RedisAuthorizationRepository.DeleteClientPermission] error deleting permission for %s", clientId)
	}
	if removed == 0 {
		return &flotillaerrors.ErrNotFound{Type: "client permission", Value: clientId}
	}
	return nil
}
