package main

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/tokens"
	"github.com/bebleo/checklist/internal/users"
)

// Migrator is the subset of db.Migrator the migrate commands drive.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
}

// UserStore seeds and maintains accounts.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, input users.NewUser) (*users.User, error)
	SetPassword(ctx context.Context, id int64, password string) error
	CountActiveAdmins(ctx context.Context) (int, error)
}

// TokenPurger removes expired password tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Store bundles the database backed services the CLI needs.
type Store struct {
	Users  UserStore
	Tokens TokenPurger
	Close  func()
}

// Queue is the subset of the asynq client and inspector used by the jobs commands.
type Queue interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Deps contains injectable dependencies for the CLI commands. Nil fields use
// the production implementations.
type Deps struct {
	NewMigrator func(databaseURL string) (Migrator, error)
	OpenStore   func(ctx context.Context, databaseURL string) (*Store, error)
	OpenQueue   func(opts asynq.RedisClientOpt) Queue
}

func (d Deps) withDefaults() Deps {
	if d.NewMigrator == nil {
		d.NewMigrator = func(databaseURL string) (Migrator, error) {
			return db.NewMigrator(databaseURL)
		}
	}
	if d.OpenStore == nil {
		d.OpenStore = openStore
	}
	if d.OpenQueue == nil {
		d.OpenQueue = openQueue
	}
	return d
}

func openStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := db.New(ctx, databaseURL, 2)
	if err != nil {
		return nil, err
	}
	return &Store{
		Users:  users.NewService(users.NewRepository(pool), auth.NewBcryptHasher(0)),
		Tokens: tokens.NewService(tokens.NewRepository(pool), tokens.DefaultTTL),
		Close:  pool.Close,
	}, nil
}

type asynqQueue struct {
	*asynq.Client
	inspector *asynq.Inspector
}

func openQueue(opts asynq.RedisClientOpt) Queue {
	return &asynqQueue{Client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

func (q *asynqQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return q.inspector.GetQueueInfo(queue)
}

func (q *asynqQueue) Close() error {
	err := q.inspector.Close()
	if closeErr := q.Client.Close(); closeErr != nil {
		err = closeErr
	}
	return err
}
