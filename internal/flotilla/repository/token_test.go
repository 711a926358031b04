package repository

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
)

func TestIssueToken_TouchResolvesClient(t *testing.T) {
	withTokenRepository(func(r *RedisTokenRepository, mr *miniredis.Miniredis) {
		token, err := r.IssueToken(ctx, "lab-client")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		clientId, err := r.TouchToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "lab-client", clientId)
	})
}

func TestIssueToken_EmptyClientId(t *testing.T) {
	withTokenRepository(func(r *RedisTokenRepository, mr *miniredis.Miniredis) {
		_, err := r.IssueToken(ctx, "")
		var invalid *flotillaerrors.ErrInvalidArgument
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestIssueToken_TokensAreUnique(t *testing.T) {
	withTokenRepository(func(r *RedisTokenRepository, mr *miniredis.Miniredis) {
		first, err := r.IssueToken(ctx, "lab-client")
		require.NoError(t, err)
		second, err := r.IssueToken(ctx, "lab-client")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
}

func TestTouchToken_SlidesExpiry(t *testing.T) {
	withTokenRepository(func(r *RedisTokenRepository, mr *miniredis.Miniredis) {
		token, err := r.IssueToken(ctx, "lab-client")
		require.NoError(t, err)

		mr.FastForward(testRetention.TokenRetention - time.Hour)
		_, err = r.TouchToken(ctx, token)
		require.NoError(t, err)

		mr.FastForward(testRetention.TokenRetention - time.Hour)
		_, err = r.TouchToken(ctx, token)
		require.NoError(t, err)

		mr.FastForward(testRetention.TokenRetention + time.Minute)
		_, err = r.TouchToken(ctx, token)
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestRevokeToken(t *testing.T) {
	withTokenRepository(func(r *RedisTokenRepository, mr *miniredis.Miniredis) {
		token, err := r.IssueToken(ctx, "lab-client")
		require.NoError(t, err)
		require.NoError(t, r.RevokeToken(ctx, token))

		var notFound *flotillaerrors.ErrNotFound
		_, err = r.TouchToken(ctx, token)
		assert.ErrorAs(t, err, &notFound)

		err = r.RevokeToken(ctx, token)
		assert.ErrorAs(t, err, &notFound)
	})
}

func withTokenRepository(action func(r *RedisTokenRepository, mr *miniredis.Miniredis)) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	action(NewRedisTokenRepository(client, testRetention), mr)
}
