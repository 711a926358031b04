package repository

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/pkg/api"
)

func TestRestrictQueue(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		require.NoError(t, r.RestrictQueue(ctx, "oem-bench"))

		restricted, err := r.IsQueueRestricted(ctx, "oem-bench")
		require.NoError(t, err)
		assert.True(t, restricted)

		restricted, err = r.IsQueueRestricted(ctx, "cert-lab")
		require.NoError(t, err)
		assert.False(t, restricted)
	})
}

func TestRestrictQueue_Duplicate(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		require.NoError(t, r.RestrictQueue(ctx, "oem-bench"))

		err := r.RestrictQueue(ctx, "oem-bench")
		var alreadyExists *flotillaerrors.ErrAlreadyExists
		assert.ErrorAs(t, err, &alreadyExists)
	})
}

func TestUnrestrictQueue(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		require.NoError(t, r.RestrictQueue(ctx, "oem-bench"))
		require.NoError(t, r.UnrestrictQueue(ctx, "oem-bench"))

		restricted, err := r.IsQueueRestricted(ctx, "oem-bench")
		require.NoError(t, err)
		assert.False(t, restricted)

		err = r.UnrestrictQueue(ctx, "oem-bench")
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestGetRestrictedQueues_Sorted(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		require.NoError(t, r.RestrictQueue(ctx, "zeta"))
		require.NoError(t, r.RestrictQueue(ctx, "alpha"))
		require.NoError(t, r.RestrictQueue(ctx, "mid"))

		queues, err := r.GetRestrictedQueues(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, queues)
	})
}

func TestClientPermission_RoundTrip(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		permission := &api.ClientPermission{
			ClientId:              "lab-client",
			MaxPriority:           map[string]int64{"oem-bench": 200, "*": 100},
			AllowedQueues:         []string{"oem-bench"},
			MaxReservationSeconds: 3600,
		}
		require.NoError(t, r.UpsertClientPermission(ctx, permission))

		stored, err := r.GetClientPermission(ctx, "lab-client")
		require.NoError(t, err)
		assert.Equal(t, permission, stored)
	})
}

func TestClientPermission_Missing(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		_, err := r.GetClientPermission(ctx, "ghost")
		var notFound *flotillaerrors.ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestClientPermission_Delete(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		require.NoError(t, r.UpsertClientPermission(ctx, &api.ClientPermission{ClientId: "lab-client"}))
		require.NoError(t, r.DeleteClientPermission(ctx, "lab-client"))

		var notFound *flotillaerrors.ErrNotFound
		_, err := r.GetClientPermission(ctx, "lab-client")
		assert.ErrorAs(t, err, &notFound)

		err = r.DeleteClientPermission(ctx, "lab-client")
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestClientPermission_EmptyClientId(t *testing.T) {
	withAuthorizationRepository(func(r *RedisAuthorizationRepository) {
		err := r.UpsertClientPermission(ctx, &api.ClientPermission{})
		var invalid *flotillaerrors.ErrInvalidArgument
		assert.ErrorAs(t, err, &invalid)
	})
}

func withAuthorizationRepository(action func(r *RedisAuthorizationRepository)) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	action(NewRedisAuthorizationRepository(client))
}
