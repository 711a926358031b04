package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/pkg/api"
)

const (
	jobEventsPrefix = "Job:Events:"
	eventDataKey    = "message"
)

// RedisEventRepository keeps a per-job stream of lifecycle events. Streams
// share the job retention window so history outlives neither the job nor
// its result.
type RedisEventRepository struct {
	db        redis.UniversalClient
	retention configuration.RetentionPolicy
}

func NewRedisEventRepository(db redis.UniversalClient, retention configuration.RetentionPolicy) *RedisEventRepository {
	return &RedisEventRepository{db: db, retention: retention}
}

func (repo *RedisEventRepository) ReportEvent(ctx context.Context, event *api.JobEvent) error {
	return repo.ReportEvents(ctx, []*api.JobEvent{event})
}

func (repo *RedisEventRepository) ReportEvents(ctx context.Context, events []*api.JobEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Marshal everything up front so a bad event fails the call before
	// anything has been written.
	payloads := make([][]byte, len(events))
	for i, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return errors.Wrapf(err, "[RedisEventRepository.ReportEvents] error marshalling event for job %s", event.JobId)
		}
		payloads[i] = payload
	}

	pipe := repo.db.Pipeline()
	for i, event := range events {
		stream := jobEventsPrefix + event.JobId
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]interface{}{eventDataKey: payloads[i]},
		})
		pipe.Expire(ctx, stream, repo.retention.JobRetention)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "[RedisEventRepository.ReportEvents] error saving events")
}

// GetEvents returns a job's full recorded history in arrival order.
func (repo *RedisEventRepository) GetEvents(ctx context.Context, jobId string) ([]*api.JobEvent, error) {
	messages, err := repo.db.XRange(ctx, jobEventsPrefix+jobId, "-", "+").Result()
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisEventRepository.GetEvents] error reading events of job %s", jobId)
	}

	events := make([]*api.JobEvent, 0, len(messages))
	for _, message := range messages {
		data, ok := message.Values[eventDataKey].(string)
		if !ok {
			log.Warnf("Skipping malformed event %s of job %s", message.ID, jobId)
			continue
		}
		event := &api.JobEvent{}
		if err := json.Unmarshal([]byte(data), event); err != nil {
			return nil, errors.Wrapf(err, "[RedisEventRepository.GetEvents] error unmarshalling event %s of job %s", message.ID, jobId)
		}
		events = append(events, event)
	}
	return events, nil
}
