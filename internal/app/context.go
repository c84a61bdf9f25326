package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flowin/internal/config"
	"flowin/internal/db"
	"flowin/internal/domain"
	"flowin/internal/engine"
	"flowin/internal/feed"
	"flowin/internal/kv"
	"flowin/internal/logging"
	"flowin/internal/migrate"
	"flowin/internal/repo"
)

// DefaultLocalUser is the account CLI commands act as when no --user is given.
const DefaultLocalUser = "local@flowin.local"

// Workspace is an opened workspace: migrated database, config, logger and
// an engine wired to the configured feed and prefs backends.
type Workspace struct {
	Engine engine.Engine
	Config *config.Config
	Log    *zap.Logger

	conn  *sql.DB
	redis *redis.Client
}

// Open prepares the workspace directory, loads flowin.yml when present and
// wires the engine. Callers must Close the result.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	w := &Workspace{Config: cfg, Log: log, conn: conn}
	e := engine.New(conn, cfg)
	e.Log = log
	e.Feed = feed.NewHub(log.Named("feed"))

	if cfg.RedisRequired() {
		w.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := w.redis.Ping(ctx).Err(); err != nil {
			w.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		if cfg.Feed.Backend == "redis" {
			e.Feed = feed.NewRedisBroker(w.redis, cfg.Feed.ChannelPrefix, log.Named("feed"))
		}
		if cfg.Prefs.Backend == "redis" {
			e.Prefs = kv.NewRedis(w.redis, cfg.Feed.ChannelPrefix)
		}
	}
	w.Engine = e
	return w, nil
}

func (w *Workspace) Close() error {
	var errs []error
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.conn != nil {
		errs = append(errs, w.conn.Close())
	}
	_ = w.Log.Sync()
	return errors.Join(errs...)
}

// ResolveUser maps a CLI user reference to an account. An email that is not
// registered yet gets a password-less local account; anything else must be
// an existing user id.
func ResolveUser(ctx context.Context, e engine.Engine, ref string) (domain.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultLocalUser
	}
	if strings.Contains(ref, "@") {
		return e.Auth.EnsureLocalUser(ctx, ref, "")
	}
	u, err := e.Auth.GetUser(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user %q not found; pass an email to create a local account", ref)
	}
	return u, err
}
