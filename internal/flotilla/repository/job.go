package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/flotillaerrors"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/pkg/api"
)

const (
	jobObjectPrefix = "Job:"
	jobStatusPrefix = "Job:Status:"
	jobResultPrefix = "Job:Result:"
	jobOutputPrefix = "Job:Output:"
	jobQueuePrefix  = "Job:Queue:"
)

const (
	statusStateField       = "state"
	statusStartedField     = "started"
	statusCancelField      = "cancel"
	statusAttachmentsField = "attachments"
)

type RedisJobRepository struct {
	db        redis.UniversalClient
	retention configuration.RetentionPolicy
}

func NewRedisJobRepository(db redis.UniversalClient, retention configuration.RetentionPolicy) *RedisJobRepository {
	return &RedisJobRepository{db: db, retention: retention}
}

// Queue zsets are scored by negated priority so that ZRANGE returns the
// highest-priority job first. Ties share a score and fall back to the zset's
// lexical member ordering, which makes claiming deterministic.
func queueScore(priority int64) float64 {
	return -float64(priority)
}

// claimScript atomically selects the best waiting job across the given queue
// zsets, removes it and flips it to running. Members whose status hash has
// expired or moved on are dropped as they are encountered, so the zsets only
// ever yield claimable jobs. Gated jobs are never eligible.
//
// KEYS: queue zsets, in the caller's preference order for tie-breaking.
// ARGV[1]: started timestamp, ARGV[2]: status key prefix.
var claimScript = redis.NewScript(`
local best = false
local bestScore = 0
local bestKey = false
for i, key in ipairs(KEYS) do
	local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	while #head > 0 do
		local state = redis.call('HGET', ARGV[2] .. head[1], 'state')
		local attachments = redis.call('HGET', ARGV[2] .. head[1], 'attachments')
		if state == 'waiting' and attachments ~= 'waiting' then
			break
		end
		redis.call('ZREM', key, head[1])
		head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	end
	if #head > 0 then
		local score = tonumber(head[2])
		if best == false or score < bestScore then
			best = head[1]
			bestScore = score
			bestKey = key
		end
	end
end
if best == false then
	return false
end
redis.call('ZREM', bestKey, best)
local statusKey = ARGV[2] .. best
redis.call('HSET', statusKey, 'state', 'running')
redis.call('HSET', statusKey, 'started', ARGV[1])
return best
`)

// cancelScript cancels a waiting job outright and raises the cooperative
// cancel flag for jobs that are already being worked on.
//
// KEYS[1]: status hash, KEYS[2]: queue zset. ARGV[1]: job id.
var cancelScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return 'missing'
end
if state == 'completed' or state == 'cancelled' then
	return 'terminal'
end
if state == 'waiting' then
	redis.call('ZREM', KEYS[2], ARGV[1])
	redis.call('HSET', KEYS[1], 'state', 'cancelled')
	return 'cancelled'
end
redis.call('HSET', KEYS[1], 'cancel', '1')
return 'requested'
`)

// attachmentsScript marks a gated job's upload complete and, if the job has
// not been cancelled in the meantime, makes it claimable. Idempotent.
//
// KEYS[1]: status hash, KEYS[2]: queue zset. ARGV[1]: job id, ARGV[2]: score.
var attachmentsScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return 'missing'
end
local attachments = redis.call('HGET', KEYS[1], 'attachments')
if attachments ~= 'waiting' then
	return 'noop'
end
redis.call('HSET', KEYS[1], 'attachments', 'complete')
if state == 'waiting' then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 'enqueued'
end
return 'complete'
`)

// setStateScript enforces the forward-only lifecycle: transitions must
// strictly increase the state's rank, cancellation is reachable from any
// non-terminal state, and terminal states accept nothing. A job force-moved
// out of waiting is also removed from its queue zset so the zset never holds
// unclaimable members.
//
// KEYS[1]: status hash, KEYS[2]: queue zset. ARGV[1]: target state, ARGV[2]: job id.
var setStateScript = redis.NewScript(`
local ranks = {
	['waiting'] = 0, ['running'] = 1, ['setup'] = 2, ['provision'] = 3,
	['firmware_update'] = 4, ['test'] = 5, ['allocate'] = 6, ['allocated'] = 7,
	['reserve'] = 8, ['cleanup'] = 9, ['completed'] = 10, ['cancelled'] = 11,
}
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return 'missing'
end
if state == 'completed' or state == 'cancelled' then
	return 'terminal'
end
local target = ARGV[1]
if ranks[target] == nil then
	return 'invalid'
end
if target ~= 'cancelled' and ranks[target] <= ranks[state] then
	return 'rejected'
end
if state == 'waiting' then
	redis.call('ZREM', KEYS[2], ARGV[2])
end
redis.call('HSET', KEYS[1], 'state', target)
return 'ok'
`)

func (repo *RedisJobRepository) CreateJob(ctx context.Context, job *api.Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return errors.Wrapf(err, "[RedisJobRepository.CreateJob] error marshalling job %s", job.Id)
	}

	pipe := repo.db.TxPipeline()
	pipe.Set(ctx, jobObjectPrefix+job.Id, jobData, repo.retention.JobRetention)
	status := map[string]interface{}{statusStateField: string(api.JobWaiting)}
	if job.Gated() {
		status[statusAttachmentsField] = string(api.AttachmentsWaiting)
	}
	pipe.HSet(ctx, jobStatusPrefix+job.Id, status)
	pipe.Expire(ctx, jobStatusPrefix+job.Id, repo.retention.JobRetention)
	if !job.Gated() {
		pipe.ZAdd(ctx, jobQueuePrefix+job.Queue, redis.Z{Member: job.Id, Score: queueScore(job.Priority)})
	}
	_, err = pipe.Exec(ctx)
	return errors.Wrapf(err, "[RedisJobRepository.CreateJob] error saving job %s", job.Id)
}

func (repo *RedisJobRepository) GetJobInfo(ctx context.Context, jobId string) (*api.JobInfo, error) {
	pipe := repo.db.Pipeline()
	jobCmd := pipe.Get(ctx, jobObjectPrefix+jobId)
	statusCmd := pipe.HGetAll(ctx, jobStatusPrefix+jobId)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobInfo] error reading job %s", jobId)
	}
	if jobCmd.Err() == redis.Nil {
		return nil, &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	}

	job := &api.Job{}
	if err := json.Unmarshal([]byte(jobCmd.Val()), job); err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobInfo] error unmarshalling job %s", jobId)
	}
	status, err := parseJobStatus(statusCmd.Val())
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobInfo] error parsing status of job %s", jobId)
	}
	return &api.JobInfo{Job: job, JobStatus: *status}, nil
}

func parseJobStatus(fields map[string]string) (*api.JobStatus, error) {
	status := &api.JobStatus{State: api.JobState(fields[statusStateField])}
	if status.State == "" {
		// The status hash can expire independently of the blob; report the
		// job as cancelled rather than inventing a live state.
		status.State = api.JobCancelled
		return status, nil
	}
	if started, ok := fields[statusStartedField]; ok {
		t, err := time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, errors.Wrap(err, "invalid started timestamp")
		}
		status.Started = &t
	}
	status.CancelRequested = fields[statusCancelField] == "1"
	status.AttachmentsStatus = api.AttachmentsStatus(fields[statusAttachmentsField])
	return status, nil
}

func (repo *RedisJobRepository) GetExistingJobsByIds(ctx context.Context, jobIds []string) ([]*api.Job, error) {
	pipe := repo.db.Pipeline()
	cmds := make([]*redis.StringCmd, len(jobIds))
	for i, jobId := range jobIds {
		cmds[i] = pipe.Get(ctx, jobObjectPrefix+jobId)
	}
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "[RedisJobRepository.GetExistingJobsByIds] error reading jobs")
	}

	jobs := make([]*api.Job, 0, len(jobIds))
	for i, cmd := range cmds {
		if cmd.Err() == redis.Nil {
			log.Warnf("No job found with id %s", jobIds[i])
			continue
		}
		job := &api.Job{}
		if err := json.Unmarshal([]byte(cmd.Val()), job); err != nil {
			return nil, errors.Wrapf(err, "[RedisJobRepository.GetExistingJobsByIds] error unmarshalling job %s", jobIds[i])
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ClaimJob hands the single best waiting job across queues to an agent,
// flipping it to running with the given start time. Returns nil when every
// queue is empty. At most one caller can ever receive a given job.
func (repo *RedisJobRepository) ClaimJob(ctx context.Context, queues []string, now time.Time) (*api.JobInfo, error) {
	if len(queues) == 0 {
		return nil, nil
	}
	keys := make([]string, len(queues))
	for i, queue := range queues {
		keys[i] = jobQueuePrefix + queue
	}

	result, err := claimScript.Run(ctx, repo.db, keys, now.UTC().Format(time.RFC3339Nano), jobStatusPrefix).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisJobRepository.ClaimJob] error executing claim")
	}
	jobId, ok := result.(string)
	if !ok {
		return nil, errors.Errorf("[RedisJobRepository.ClaimJob] unexpected claim reply %v", result)
	}

	repo.refreshJobExpiry(ctx, jobId)
	return repo.GetJobInfo(ctx, jobId)
}

func (repo *RedisJobRepository) CancelJob(ctx context.Context, jobId string) (CancelResult, error) {
	job, err := repo.getJob(ctx, jobId)
	if err != nil {
		return "", err
	}

	keys := []string{jobStatusPrefix + jobId, jobQueuePrefix + job.Queue}
	result, err := cancelScript.Run(ctx, repo.db, keys, jobId).Result()
	if err != nil {
		return "", errors.Wrapf(err, "[RedisJobRepository.CancelJob] error cancelling job %s", jobId)
	}

	switch result {
	case "missing":
		return "", &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	case "terminal":
		return CancelResultAlreadyTerminal, nil
	case "cancelled":
		return CancelResultCancelled, nil
	case "requested":
		repo.refreshJobExpiry(ctx, jobId)
		return CancelResultRequested, nil
	}
	return "", errors.Errorf("[RedisJobRepository.CancelJob] unexpected cancel reply %v", result)
}

// MarkAttachmentsComplete records that a gated job's upload has finished.
// Returns true if the job became claimable as a result. Calling it again, or
// for a job without attachments, is a no-op.
func (repo *RedisJobRepository) MarkAttachmentsComplete(ctx context.Context, jobId string) (bool, error) {
	job, err := repo.getJob(ctx, jobId)
	if err != nil {
		return false, err
	}

	keys := []string{jobStatusPrefix + jobId, jobQueuePrefix + job.Queue}
	result, err := attachmentsScript.Run(ctx, repo.db, keys, jobId, queueScore(job.Priority)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "[RedisJobRepository.MarkAttachmentsComplete] error for job %s", jobId)
	}

	switch result {
	case "missing":
		return false, &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	case "enqueued":
		repo.refreshJobExpiry(ctx, jobId)
		return true, nil
	case "noop", "complete":
		return false, nil
	}
	return false, errors.Errorf("[RedisJobRepository.MarkAttachmentsComplete] unexpected reply %v", result)
}

// SetJobState applies an agent-reported transition. Returns false without an
// error when the transition is rejected (terminal job, or a report that does
// not move the state forward); existing state is never corrupted.
func (repo *RedisJobRepository) SetJobState(ctx context.Context, jobId string, state api.JobState) (bool, error) {
	if !state.Valid() {
		return false, &flotillaerrors.ErrInvalidArgument{Name: "job_state", Value: string(state)}
	}
	job, err := repo.getJob(ctx, jobId)
	if err != nil {
		return false, err
	}

	keys := []string{jobStatusPrefix + jobId, jobQueuePrefix + job.Queue}
	result, err := setStateScript.Run(ctx, repo.db, keys, string(state), jobId).Result()
	if err != nil {
		return false, errors.Wrapf(err, "[RedisJobRepository.SetJobState] error updating job %s", jobId)
	}

	switch result {
	case "missing":
		return false, &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	case "invalid":
		return false, &flotillaerrors.ErrInvalidArgument{Name: "job_state", Value: string(state)}
	case "terminal", "rejected":
		return false, nil
	case "ok":
		repo.refreshJobExpiry(ctx, jobId)
		return true, nil
	}
	return false, errors.Errorf("[RedisJobRepository.SetJobState] unexpected reply %v", result)
}

func (repo *RedisJobRepository) ReportPhaseResult(ctx context.Context, jobId string, phase api.JobState, result *api.PhaseResult) error {
	if !phase.Valid() {
		return &flotillaerrors.ErrInvalidArgument{Name: "phase", Value: string(phase)}
	}
	if err := repo.requireJob(ctx, jobId); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrapf(err, "[RedisJobRepository.ReportPhaseResult] error marshalling result for job %s", jobId)
	}

	pipe := repo.db.TxPipeline()
	pipe.HSet(ctx, jobResultPrefix+jobId, string(phase), data)
	pipe.Expire(ctx, jobResultPrefix+jobId, repo.retention.JobRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "[RedisJobRepository.ReportPhaseResult] error saving result for job %s", jobId)
	}
	repo.refreshJobExpiry(ctx, jobId)
	return nil
}

func (repo *RedisJobRepository) GetJobResult(ctx context.Context, jobId string) (*api.JobResult, error) {
	if err := repo.requireJob(ctx, jobId); err != nil {
		return nil, err
	}

	pipe := repo.db.Pipeline()
	statusCmd := pipe.HGetAll(ctx, jobStatusPrefix+jobId)
	resultCmd := pipe.HGetAll(ctx, jobResultPrefix+jobId)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobResult] error reading result of job %s", jobId)
	}

	status, err := parseJobStatus(statusCmd.Val())
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobResult] error parsing status of job %s", jobId)
	}
	result := &api.JobResult{JobState: status.State}
	for phase, data := range resultCmd.Val() {
		phaseResult := api.PhaseResult{}
		if err := json.Unmarshal([]byte(data), &phaseResult); err != nil {
			return nil, errors.Wrapf(err, "[RedisJobRepository.GetJobResult] error unmarshalling %s result of job %s", phase, jobId)
		}
		if result.Phases == nil {
			result.Phases = map[api.JobState]api.PhaseResult{}
		}
		result.Phases[api.JobState(phase)] = phaseResult
	}
	return result, nil
}

// AppendOutput adds a chunk of live output. The output key's expiry is
// anchored at the first write.
func (repo *RedisJobRepository) AppendOutput(ctx context.Context, jobId string, chunk string) error {
	if err := repo.requireJob(ctx, jobId); err != nil {
		return err
	}
	length, err := repo.db.RPush(ctx, jobOutputPrefix+jobId, chunk).Result()
	if err != nil {
		return errors.Wrapf(err, "[RedisJobRepository.AppendOutput] error appending output for job %s", jobId)
	}
	if length == 1 {
		if err := repo.db.Expire(ctx, jobOutputPrefix+jobId, repo.retention.OutputRetention).Err(); err != nil {
			return errors.Wrapf(err, "[RedisJobRepository.AppendOutput] error setting output expiry for job %s", jobId)
		}
	}
	repo.refreshJobExpiry(ctx, jobId)
	return nil
}

// DrainOutput returns all buffered output and clears the buffer.
func (repo *RedisJobRepository) DrainOutput(ctx context.Context, jobId string) (string, error) {
	if err := repo.requireJob(ctx, jobId); err != nil {
		return "", err
	}
	pipe := repo.db.TxPipeline()
	rangeCmd := pipe.LRange(ctx, jobOutputPrefix+jobId, 0, -1)
	pipe.Del(ctx, jobOutputPrefix+jobId)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", errors.Wrapf(err, "[RedisJobRepository.DrainOutput] error draining output of job %s", jobId)
	}
	return strings.Join(rangeCmd.Val(), ""), nil
}

// GetQueuePosition counts the waiting jobs that would be claimed ahead of this
// one. Jobs still gated on attachments report the position they would enter
// at; jobs past waiting have no position.
func (repo *RedisJobRepository) GetQueuePosition(ctx context.Context, jobId string) (int64, error) {
	info, err := repo.GetJobInfo(ctx, jobId)
	if err != nil {
		return 0, err
	}
	if info.State != api.JobWaiting {
		return 0, &flotillaerrors.ErrStateConflict{
			JobId:   jobId,
			State:   string(info.State),
			Message: "queue position is only defined for waiting jobs",
		}
	}

	queueKey := jobQueuePrefix + info.Queue
	rank, err := repo.db.ZRank(ctx, queueKey, jobId).Result()
	if err == redis.Nil {
		count, err := repo.db.ZCount(ctx, queueKey, "-inf", formatScore(queueScore(info.Priority))).Result()
		if err != nil {
			return 0, errors.Wrapf(err, "[RedisJobRepository.GetQueuePosition] error counting queue %s", info.Queue)
		}
		return count, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "[RedisJobRepository.GetQueuePosition] error ranking job %s", jobId)
	}
	return rank, nil
}

func formatScore(score float64) string {
	return fmt.Sprintf("%f", score)
}

// PeekQueue returns up to limit waiting jobs in claim order without
// disturbing them.
func (repo *RedisJobRepository) PeekQueue(ctx context.Context, queue string, limit int64) ([]*api.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	jobIds, err := repo.db.ZRange(ctx, jobQueuePrefix+queue, 0, limit-1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.PeekQueue] error reading queue %s", queue)
	}
	return repo.GetExistingJobsByIds(ctx, jobIds)
}

func (repo *RedisJobRepository) GetQueueSizes(ctx context.Context, queues []string) (map[string]int64, error) {
	pipe := repo.db.Pipeline()
	cmds := make([]*redis.IntCmd, len(queues))
	for i, queue := range queues {
		cmds[i] = pipe.ZCard(ctx, jobQueuePrefix+queue)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "[RedisJobRepository.GetQueueSizes] error reading queue sizes")
	}
	sizes := make(map[string]int64, len(queues))
	for i, queue := range queues {
		sizes[queue] = cmds[i].Val()
	}
	return sizes, nil
}

func (repo *RedisJobRepository) getJob(ctx context.Context, jobId string) (*api.Job, error) {
	jobData, err := repo.db.Get(ctx, jobObjectPrefix+jobId).Result()
	if err == redis.Nil {
		return nil, &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.getJob] error reading job %s", jobId)
	}
	job := &api.Job{}
	if err := json.Unmarshal([]byte(jobData), job); err != nil {
		return nil, errors.Wrapf(err, "[RedisJobRepository.getJob] error unmarshalling job %s", jobId)
	}
	return job, nil
}

func (repo *RedisJobRepository) requireJob(ctx context.Context, jobId string) error {
	exists, err := repo.db.Exists(ctx, jobObjectPrefix+jobId).Result()
	if err != nil {
		return errors.Wrapf(err, "[RedisJobRepository.requireJob] error checking job %s", jobId)
	}
	if exists == 0 {
		return &flotillaerrors.ErrNotFound{Type: "job", Value: jobId}
	}
	return nil
}

// refreshJobExpiry slides the retention window after job activity.
// Best effort: a failed refresh only shortens how long stale data lingers.
func (repo *RedisJobRepository) refreshJobExpiry(ctx context.Context, jobId string) {
	pipe := repo.db.Pipeline()
	pipe.Expire(ctx, jobObjectPrefix+jobId, repo.retention.JobRetention)
	pipe.Expire(ctx, jobStatusPrefix+jobId, repo.retention.JobRetention)
	pipe.Expire(ctx, jobResultPrefix+jobId, repo.retention.JobRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("Failed to refresh expiry of job %s: %v", jobId, err)
	}
}
