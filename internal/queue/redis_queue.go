package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"htmlpdf-service/internal/apperr"
	"htmlpdf-service/internal/config"
	"htmlpdf-service/internal/logger"
	"htmlpdf-service/internal/models"
)

// ErrStaleTransition is returned when a job is not in the state a transition
// expects, for example a second consumer marking an already finished job.
var ErrStaleTransition = errors.New("job is not in the expected state")

// Job hash fields.
const (
	fieldStatus    = "status"
	fieldMode      = "mode"
	fieldPayload   = "payload"
	fieldURL       = "url"
	fieldFileName  = "fileName"
	fieldSize      = "size"
	fieldError     = "error"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

// RedisQueue is a FIFO list of job pointers plus one TTL-bearing hash per job.
type RedisQueue struct {
	client       *redis.Client
	queueKey     string
	jobPrefix    string
	retentionTTL time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisQueue builds a queue over client using the key names and timings in cfg.
func NewRedisQueue(client *redis.Client, cfg config.Config, log *zap.Logger) *RedisQueue {
	queueKey := cfg.QueueKey
	if queueKey == "" {
		queueKey = "pdf:queue"
	}
	prefix := cfg.JobKeyPrefix
	if prefix == "" {
		prefix = "pdf:job:"
	}
	retention := cfg.JobRetentionTTL
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	// BLPOP treats zero as "block forever"; the loop must wake up to notice shutdown.
	poll := cfg.QueuePollTimeout
	if poll < time.Second {
		poll = time.Second
	}
	return &RedisQueue{
		client:       client,
		queueKey:     queueKey,
		jobPrefix:    prefix,
		retentionTTL: retention,
		pollTimeout:  poll,
		now:          time.Now,
		logger:       logger.OrNop(log).Named("queue"),
	}
}

func (q *RedisQueue) jobKey(id string) string {
	return q.jobPrefix + id
}

func (q *RedisQueue) timestamp() string {
	return q.now().UTC().Format(time.RFC3339Nano)
}

// Ping checks connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return apperr.Infrastructure(err, "redis unavailable")
	}
	return nil
}

// Enqueue stores payload under a new job id in the queued state and appends
// the id to the queue. It never waits on rendering.
func (q *RedisQueue) Enqueue(ctx context.Context, mode string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Validation("payload is not serializable: %v", err)
	}
	id := uuid.NewString()
	entry, err := json.Marshal(models.QueueEntry{ID: id, Mode: mode})
	if err != nil {
		return "", fmt.Errorf("encode queue entry: %w", err)
	}

	ts := q.timestamp()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobKey(id),
		fieldStatus, models.StatusQueued,
		fieldMode, mode,
		fieldPayload, string(body),
		fieldCreatedAt, ts,
		fieldUpdatedAt, ts,
	)
	pipe.Expire(ctx, q.jobKey(id), q.retentionTTL)
	pipe.RPush(ctx, q.queueKey, entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", apperr.Infrastructure(err, "enqueue job")
	}
	q.logger.Debug("job enqueued", zap.String("job_id", id), zap.String("mode", mode))
	return id, nil
}

// Dequeue blocks for up to the poll timeout waiting for the next entry.
// It returns nil with no error when the timeout elapses.
func (q *RedisQueue) Dequeue(ctx context.Context) (*models.QueueEntry, error) {
	res, err := q.client.BLPop(ctx, q.pollTimeout, q.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure(err, "dequeue")
	}
	if len(res) != 2 {
		return nil, apperr.Infrastructure(nil, "unexpected BLPOP reply of %d elements", len(res))
	}
	var entry models.QueueEntry
	if err := json.Unmarshal([]byte(res[1]), &entry); err != nil || entry.ID == "" {
		// Bare ids are accepted; the mode is read back from the job hash.
		entry = models.QueueEntry{ID: res[1]}
	}
	return &entry, nil
}

// Requeue puts id back at the head of the queue so the next Dequeue returns it.
// Consumers use it when a popped entry could not be claimed.
func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	entry, err := json.Marshal(models.QueueEntry{ID: id})
	if err != nil {
		return fmt.Errorf("encode queue entry: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, entry).Err(); err != nil {
		return apperr.Infrastructure(err, "requeue job %s", id)
	}
	return nil
}

// MarkProcessing moves a queued job to processing.
func (q *RedisQueue) MarkProcessing(ctx context.Context, id string) error {
	return q.transition(ctx, id, models.StatusQueued, models.StatusProcessing, 0)
}

// MarkDone records the result and restarts the retention window.
func (q *RedisQueue) MarkDone(ctx context.Context, id string, res models.GeneratePdfResult) error {
	return q.transition(ctx, id, models.StatusProcessing, models.StatusDone, q.retentionTTL,
		fieldURL, res.URL,
		fieldFileName, res.FileName,
		fieldSize, strconv.FormatInt(res.Size, 10),
	)
}

// MarkError records msg and restarts the retention window.
func (q *RedisQueue) MarkError(ctx context.Context, id, msg string) error {
	return q.transition(ctx, id, models.StatusProcessing, models.StatusError, q.retentionTTL,
		fieldError, msg,
	)
}

func (q *RedisQueue) transition(ctx context.Context, id, from, to string, ttl time.Duration, fields ...string) error {
	args := make([]any, 0, 4+len(fields))
	args = append(args, from, to, q.timestamp(), int64(ttl/time.Second))
	for _, f := range fields {
		args = append(args, f)
	}
	n, err := transitionScript.Run(ctx, q.client, []string{q.jobKey(id)}, args...).Int()
	if err != nil {
		return apperr.Infrastructure(err, "mark job %s %s", id, to)
	}
	switch n {
	case -1:
		return apperr.NotFound("job %q not found", id)
	case 0:
		return fmt.Errorf("%s -> %s for %s: %w", from, to, id, ErrStaleTransition)
	}
	return nil
}

// Get returns the job record, or nil when it does not exist or has expired.
func (q *RedisQueue) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, apperr.Infrastructure(err, "read job %s", id)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	job := &models.Job{
		ID:       id,
		Mode:     fields[fieldMode],
		Status:   fields[fieldStatus],
		Payload:  []byte(fields[fieldPayload]),
		URL:      fields[fieldURL],
		FileName: fields[fieldFileName],
		Error:    fields[fieldError],
	}
	if v := fields[fieldSize]; v != "" {
		job.Size, _ = strconv.ParseInt(v, 10, 64)
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	return job, nil
}

// Depth is the number of entries waiting.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		return 0, apperr.Infrastructure(err, "queue depth")
	}
	return n, nil
}

// transitionScript sets status to ARGV[2] only when the current status is
// ARGV[1]. Returns -1 for a missing job, 0 when the guard fails, 1 on success.
var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then return -1 end
if current ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'updatedAt', ARGV[3])
for i = 5, #ARGV - 1, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then redis.call('EXPIRE', KEYS[1], ttl) end
return 1
`)
