package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/flowstate-dev/flowstate/internal/config"
	"github.com/flowstate-dev/flowstate/internal/engine"
	"github.com/flowstate-dev/flowstate/internal/taskqueue"
)

func noopClose(context.Context) error { return nil }

// openEngine connects to the configured store and returns an engine and a
// task queue over it together with a function that closes the connection.
func openEngine(ctx context.Context, sc config.StorageConfig, ecfg engine.Config) (*engine.Engine, taskqueue.Queue, func(context.Context) error, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return engine.NewInMemoryEngine(ecfg), taskqueue.NewInMemoryQueue(1024), noopClose, nil

	case config.DriverSQLite, config.DriverPostgres:
		driver := "sqlite"
		if sc.Driver == config.DriverPostgres {
			driver = "pgx"
		}
		db, err := sql.Open(driver, sc.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open %s: %w", sc.Driver, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("connect %s: %w", sc.Driver, err)
		}
		closeDB := func(context.Context) error { return db.Close() }

		var (
			eng   *engine.Engine
			queue taskqueue.Queue
		)
		if sc.Driver == config.DriverSQLite {
			// SQLite allows a single writer.
			db.SetMaxOpenConns(1)
			if eng, err = engine.NewSQLiteEngine(db, ecfg); err == nil {
				queue, err = taskqueue.NewSQLiteQueue(db)
			}
		} else {
			if eng, err = engine.NewPostgresEngine(db, ecfg); err == nil {
				queue, err = taskqueue.NewPostgresQueue(db)
			}
		}
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return eng, queue, closeDB, nil

	case config.DriverRedis:
		opts, err := redis.ParseURL(sc.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return engine.NewRedisEngine(client, sc.Prefix, ecfg),
			taskqueue.NewRedisQueue(client, sc.Prefix),
			func(context.Context) error { return client.Close() }, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.DSN))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return engine.NewMongoEngine(client, sc.Database, ecfg),
			taskqueue.NewMongoQueue(client, sc.Database, ""),
			client.Disconnect, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
