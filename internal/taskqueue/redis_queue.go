package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// popDue removes and returns the earliest member of a sorted set whose
// score is at most ARGV[1], or nil when none is due.
var popDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
redis.call('ZREM', KEYS[1], due[1])
return due[1]
`)

// RedisQueue implements Queue on a Redis sorted set:
//
//	<prefix>tasks  score = NotBefore (unix ms), member = JSON-encoded Task
//
// Claiming runs as a Lua script, so concurrent workers never receive the
// same task.
type RedisQueue struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue. prefix defaults to
// "flowstate:".
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "flowstate:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "tasks",
		pollInterval: 50 * time.Millisecond,
	}
}

// SetPollInterval changes how often an idle Dequeue polls Redis.
func (q *RedisQueue) SetPollInterval(d time.Duration) {
	if d > 0 {
		q.pollInterval = d
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	t = prepare(t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.NotBefore.UnixMilli()),
		Member: data,
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		res, err := popDue.Run(ctx, q.client, []string{q.key}, time.Now().UnixMilli()).Text()
		switch {
		case err == nil:
			return DecodeTask([]byte(res))
		case !errors.Is(err, redis.Nil):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// Len returns the number of queued tasks, due or not.
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		slog.Warn("redis_queue_len_failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
