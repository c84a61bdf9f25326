package engine

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"flowin/internal/config"
	"flowin/internal/engine/auth"
	"flowin/internal/events"
	"flowin/internal/feed"
	"flowin/internal/kv"
	"flowin/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Feed   feed.Broker
	Prefs  kv.Store
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time

	seedMu *sync.Mutex
}

// New wires an engine with in-process feeds and SQLite-backed prefs.
// Callers swap Feed, Prefs or Log for other backends.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Auth:   auth.Service{Repo: r, Secret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL},
		Feed:   feed.NewHub(nil),
		Prefs:  repo.Prefs{DB: db},
		Config: cfg,
		Log:    zap.NewNop(),
		Now:    time.Now,
		seedMu: &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// publish signals feed subscribers after a commit. Failures only delay
// subscribers until the next change, so they are logged and dropped.
func (e Engine) publish(ctx context.Context, topics ...string) {
	if e.Feed == nil {
		return
	}
	for _, topic := range topics {
		if err := e.Feed.Publish(context.WithoutCancel(ctx), topic); err != nil {
			e.logger().Warn("feed publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (e Engine) memberTopics(members []string) []string {
	topics := make([]string, 0, len(members))
	for _, m := range members {
		topics = append(topics, feed.UserProjects(m))
	}
	return topics
}

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
