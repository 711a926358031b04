package repository

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
)

const queueWaitPrefix = "Queue:Wait:"

// RedisStatsRepository accumulates per-queue wait time samples, one float
// per claimed job. The sample list shares the queue retention window and
// slides on every write, so idle queues eventually drop their history.
type RedisStatsRepository struct {
	db        redis.UniversalClient
	retention configuration.RetentionPolicy
}

func NewRedisStatsRepository(db redis.UniversalClient, retention configuration.RetentionPolicy) *RedisStatsRepository {
	return &RedisStatsRepository{db: db, retention: retention}
}

func (repo *RedisStatsRepository) RecordQueueWait(ctx context.Context, queue string, seconds float64) error {
	pipe := repo.db.TxPipeline()
	pipe.RPush(ctx, queueWaitPrefix+queue, strconv.FormatFloat(seconds, 'f', -1, 64))
	pipe.Expire(ctx, queueWaitPrefix+queue, repo.retention.QueueRetention)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "[RedisStatsRepository.RecordQueueWait] error recording wait for queue %s", queue)
}

func (repo *RedisStatsRepository) GetQueueWaitSamples(ctx context.Context, queue string) ([]float64, error) {
	values, err := repo.db.LRange(ctx, queueWaitPrefix+queue, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisStatsRepository.GetQueueWaitSamples] error reading waits of queue %s", queue)
	}
	samples := make([]float64, 0, len(values))
	for _, value := range values {
		sample, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Warnf("Skipping malformed wait sample %q of queue %s", value, queue)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
