package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// DefaultRedisPrefix is used when no key prefix is given.
const DefaultRedisPrefix = "flowstate:"

// RedisRunStore is a RunStore and EventStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>run:<id>                 => JSON-encoded run
//	<prefix>idx:all                  => SET of all run IDs
//	<prefix>idx:wf:<workflow>        => SET of run IDs for a given workflow
//	<prefix>idx:status:<status>      => SET of run IDs for a given status
//	<prefix>events:<id>              => LIST of JSON-encoded events
//
// A run moves between status sets on every update. ListRuns still checks
// each decoded run against the filter.
type RedisRunStore struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ RunStore   = (*RedisRunStore)(nil)
	_ EventStore = (*RedisRunStore)(nil)
)

var runStatuses = []api.RunStatus{api.RunRunning, api.RunCompleted, api.RunFailed, api.RunCancelled}

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional but recommended (e.g. "flowstate:").
func NewRedisRunStore(client redis.UniversalClient, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRunStore) keyRun(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisRunStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisRunStore) keyWorkflow(name string) string {
	return s.prefix + "idx:wf:" + name
}

func (s *RedisRunStore) keyStatus(status api.RunStatus) string {
	return s.prefix + "idx:status:" + string(status)
}

func (s *RedisRunStore) keyEvents(runID string) string {
	return s.prefix + "events:" + runID
}

func (s *RedisRunStore) index(ctx context.Context, run *api.WorkflowRun) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), run.ID)
	pipe.SAdd(ctx, s.keyWorkflow(run.Workflow.Name), run.ID)
	for _, st := range runStatuses {
		if st != run.Status {
			pipe.SRem(ctx, s.keyStatus(st), run.ID)
		}
	}
	pipe.SAdd(ctx, s.keyStatus(run.Status), run.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyRun(run.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.index(ctx, run)
}

func (s *RedisRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	// SET XX only overwrites an existing key.
	ok, err := s.client.SetXX(ctx, s.keyRun(run.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunNotFound
	}
	return s.index(ctx, run)
}

func (s *RedisRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	data, err := s.client.Get(ctx, s.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRun(data)
}

func (s *RedisRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	var ids []string
	var err error

	switch {
	case filter.WorkflowName != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx,
			s.keyWorkflow(filter.WorkflowName),
			s.keyStatus(filter.Status),
		).Result()
	case filter.WorkflowName != "":
		ids, err = s.client.SMembers(ctx, s.keyWorkflow(filter.WorkflowName)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.WorkflowRun{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.WorkflowRun{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyRun(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	runs := make([]*api.WorkflowRun, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		if filter.Matches(run) {
			runs = append(runs, run)
		}
	}
	sortRuns(runs)
	return runs, nil
}

func (s *RedisRunStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyEvents(ev.RunID), data).Err()
}

func (s *RedisRunStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	items, err := s.client.LRange(ctx, s.keyEvents(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.ExecutionEvent, 0, len(items))
	for _, item := range items {
		var ev api.ExecutionEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
