// Package db opens the configured storage backend.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"taskboard/internal/config"
	"taskboard/pkg/notification"
	"taskboard/pkg/task"
)

const connectTimeout = 10 * time.Second

// Stores holds the task and notification stores of one backend.
type Stores struct {
	Tasks         task.Store
	Notifications notification.Store

	close func(context.Context) error
}

// EnsureSchema creates the tables, indexes or collections both stores need.
func (s *Stores) EnsureSchema(ctx context.Context) error {
	if err := s.Tasks.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure task schema: %w", err)
	}
	if err := s.Notifications.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure notification schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return &Stores{
			Tasks:         task.NewMemStore(),
			Notifications: notification.NewMemStore(),
		}, nil

	case config.DriverPostgres:
		pool, err := ConnectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tasks:         task.NewPgStore(pool),
			Notifications: notification.NewPgStore(pool),
			close:         func(context.Context) error { pool.Close(); return nil },
		}, nil

	case config.DriverMongo:
		client, err := ConnectMongo(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.Database)
		return &Stores{
			Tasks:         task.NewMongoStore(database),
			Notifications: notification.NewMongoStore(database),
			close:         client.Disconnect,
		}, nil

	case config.DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tasks:         task.NewSQLiteStore(db),
			Notifications: notification.NewSQLiteStore(db),
			close:         func(context.Context) error { return db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// ConnectPostgres opens a pgx pool and pings it.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ConnectMongo connects a client to uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// OpenSQLite opens the SQLite database at path. ":memory:" gives a private
// in-memory database held on a single connection.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
