package repository

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/renstrom/shortuuid"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
)

const refreshTokenPrefix = "RefreshToken:"

// RedisTokenRepository issues opaque refresh tokens mapping back to client
// ids. A token's expiry slides on every use, so tokens only lapse after the
// retention window of idleness.
type RedisTokenRepository struct {
	db        redis.UniversalClient
	retention configuration.RetentionPolicy
}

func NewRedisTokenRepository(db redis.UniversalClient, retention configuration.RetentionPolicy) *RedisTokenRepository {
	return &RedisTokenRepository{db: db, retention: retention}
}

func (repo *RedisTokenRepository) IssueToken(ctx context.Context, clientId string) (string, error) {
	if clientId == "" {
		return "", &flotillaerrors.ErrInvalidArgument{Name: "client_id", Value: "", Message: "client id cannot be empty"}
	}
	token := shortuuid.New()
	err := repo.db.Set(ctx, refreshTokenPrefix+token, clientId, repo.retention.TokenRetention).Err()
	if err != nil {
		return "", errors.Wrapf(err, "[RedisTokenRepository.IssueToken] error issuing token for %s", clientId)
	}
	return token, nil
}

// TouchToken resolves a token to its client id and slides the expiry.
func (repo *RedisTokenRepository) TouchToken(ctx context.Context, token string) (string, error) {
	clientId, err := repo.db.Get(ctx, refreshTokenPrefix+token).Result()
	if err == redis.Nil {
		return "", &flotillaerrors.ErrNotFound{Type: "refresh token", Value: token}
	}
	if err != nil {
		return "", errors.Wrap(err, "[RedisTokenRepository.TouchToken] error reading token")
	}
	if err := repo.db.Expire(ctx, refreshTokenPrefix+token, repo.retention.TokenRetention).Err(); err != nil {
		return "", errors.Wrap(err, "[RedisTokenRepository.TouchToken] error refreshing token expiry")
	}
	return clientId, nil
}

func (repo *RedisTokenRepository) RevokeToken(ctx context.Context, token string) error {
	removed, err := repo.db.Del(ctx, refreshTokenPrefix+token).Result()
	if err != nil {
		return errors.Wrap(err, "[RedisTokenRepository.RevokeToken] error revoking token")
	}
	if removed == 0 {
		return &flotillaerrors.ErrNotFound{Type: "refresh token", Value: token}
	}
	return nil
}
