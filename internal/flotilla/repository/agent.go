package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/pkg/api"
)

const (
	agentObjectPrefix = "Agent:"
	agentRegistryKey  = "Agents"

	advertisedQueuePrefix  = "Queue:Advertised:"
	advertisedQueuesSetKey = "Queues:Advertised"
)

// RedisAgentRepository keeps each agent's last heartbeat under its own key so
// agents that stop reporting age out individually. The registry set is pruned
// lazily as reads discover expired members.
type RedisAgentRepository struct {
	db        redis.UniversalClient
	retention configuration.RetentionPolicy
}

func NewRedisAgentRepository(db redis.UniversalClient, retention configuration.RetentionPolicy) *RedisAgentRepository {
	return &RedisAgentRepository{db: db, retention: retention}
}

func (repo *RedisAgentRepository) UpsertAgent(ctx context.Context, agent *api.AgentData) error {
	data, err := json.Marshal(agent)
	if err != nil {
		return errors.Wrapf(err, "[RedisAgentRepository.UpsertAgent] error marshalling agent %s", agent.Name)
	}
	pipe := repo.db.TxPipeline()
	pipe.Set(ctx, agentObjectPrefix+agent.Name, data, repo.retention.AgentRetention)
	pipe.SAdd(ctx, agentRegistryKey, agent.Name)
	_, err = pipe.Exec(ctx)
	return errors.Wrapf(err, "[RedisAgentRepository.UpsertAgent] error saving agent %s", agent.Name)
}

func (repo *RedisAgentRepository) GetAgents(ctx context.Context) ([]*api.AgentData, error) {
	names, err := repo.db.SMembers(ctx, agentRegistryKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[RedisAgentRepository.GetAgents] error listing agents")
	}
	if len(names) == 0 {
		return []*api.AgentData{}, nil
	}

	pipe := repo.db.Pipeline()
	cmds := make([]*redis.StringCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.Get(ctx, agentObjectPrefix+name)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "[RedisAgentRepository.GetAgents] error reading agents")
	}

	agents := make([]*api.AgentData, 0, len(names))
	stale := []interface{}{}
	for i, cmd := range cmds {
		if cmd.Err() == redis.Nil {
			stale = append(stale, names[i])
			continue
		}
		agent := &api.AgentData{}
		if err := json.Unmarshal([]byte(cmd.Val()), agent); err != nil {
			return nil, errors.Wrapf(err, "[RedisAgentRepository.GetAgents] error unmarshalling agent %s", names[i])
		}
		agents = append(agents, agent)
	}
	if len(stale) > 0 {
		if err := repo.db.SRem(ctx, agentRegistryKey, stale...).Err(); err != nil {
			log.Warnf("Failed to prune %d expired agents: %v", len(stale), err)
		}
	}
	return agents, nil
}

func (repo *RedisAgentRepository) GetQueueAgents(ctx context.Context, queue string) ([]*api.AgentData, error) {
	agents, err := repo.GetAgents(ctx)
	if err != nil {
		return nil, err
	}
	serving := make([]*api.AgentData, 0, len(agents))
	for _, agent := range agents {
		if slices.Contains(agent.Queues, queue) {
			serving = append(serving, agent)
		}
	}
	return serving, nil
}

// AdvertiseQueues publishes queue names with human descriptions so clients
// can discover where to submit. Advertisements lapse unless re-posted within
// the queue retention window.
func (repo *RedisAgentRepository) AdvertiseQueues(ctx context.Context, queues map[string]string) error {
	if len(queues) == 0 {
		return nil
	}
	pipe := repo.db.TxPipeline()
	for name, description := range queues {
		pipe.Set(ctx, advertisedQueuePrefix+name, description, repo.retention.QueueRetention)
		pipe.SAdd(ctx, advertisedQueuesSetKey, name)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "[RedisAgentRepository.AdvertiseQueues] error saving queue advertisements")
}

func (repo *RedisAgentRepository) GetAdvertisedQueues(ctx context.Context) (map[string]string, error) {
	names, err := repo.db.SMembers(ctx, advertisedQueuesSetKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[RedisAgentRepository.GetAdvertisedQueues] error listing queues")
	}
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	pipe := repo.db.Pipeline()
	cmds := make([]*redis.StringCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.Get(ctx, advertisedQueuePrefix+name)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "[RedisAgentRepository.GetAdvertisedQueues] error reading queues")
	}

	queues := make(map[string]string, len(names))
	stale := []interface{}{}
	for i, cmd := range cmds {
		if cmd.Err() == redis.Nil {
			stale = append(stale, names[i])
			continue
		}
		queues[names[i]] = cmd.Val()
	}
	if len(stale) > 0 {
		if err := repo.db.SRem(ctx, advertisedQueuesSetKey, stale...).Err(); err != nil {
			log.Warnf("Failed to prune %d lapsed queue advertisements: %v", len(stale), err)
		}
	}
	return queues, nil
}
