package flowstate

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowstate-dev/flowstate/internal/taskqueue"
	"github.com/flowstate-dev/flowstate/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *worker.Worker

	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Runs, events and queued tasks are persisted in
// the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flowstate.db?_pragma=journal_mode(WAL)")
//	bundle, err := flowstate.NewSQLiteBundle(db, opts, worker.Config{MaxAttempts: 3})
//	// register workflows on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, opts Options, cfg worker.Config) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return newBundle(eng, q, opts, cfg), nil
}

// NewPostgresBundle is NewSQLiteBundle for PostgreSQL. Several processes may
// run workers against the same database.
func NewPostgresBundle(db *sql.DB, opts Options, cfg worker.Config) (*WorkerBundle, error) {
	eng, err := NewPostgresEngine(db, opts)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewPostgresQueue(db)
	if err != nil {
		return nil, err
	}
	return newBundle(eng, q, opts, cfg), nil
}

// NewRedisBundle keeps runs and the task queue under the same key prefix.
func NewRedisBundle(client redis.UniversalClient, prefix string, opts Options, cfg worker.Config) *WorkerBundle {
	return newBundle(
		NewRedisEngine(client, prefix, opts),
		taskqueue.NewRedisQueue(client, prefix),
		opts, cfg,
	)
}

// NewMongoBundle keeps runs and the task queue in the same database.
func NewMongoBundle(client *mongo.Client, dbName string, opts Options, cfg worker.Config) *WorkerBundle {
	return newBundle(
		NewMongoEngine(client, dbName, opts),
		taskqueue.NewMongoQueue(client, dbName, ""),
		opts, cfg,
	)
}

func newBundle(eng Engine, q taskqueue.Queue, opts Options, cfg worker.Config) *WorkerBundle {
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}
	return &WorkerBundle{
		Engine: eng,
		Worker: worker.NewWithConfig(eng, q, cfg),
		queue:  q,
	}
}

// Pending returns the number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
