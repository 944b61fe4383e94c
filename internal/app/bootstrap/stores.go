package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/audit"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/events"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// Stores bundles the persistence layer shared by every binary.
type Stores struct {
	Pool         *pgxpool.Pool
	SQL          *sql.DB
	Redis        *redis.Client
	Practices    practice.Repository
	Appointments appointment.Repository
	Outbox       events.Outbox
	Processed    events.Deduper
	Operator     *audit.OperatorLog
}

// BuildStores selects Postgres-backed stores when a database is configured and
// in-memory stores otherwise. Practice lookups are cached in Redis when available.
func BuildStores(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Stores{Pool: pool, Redis: redisClient}

	if pool == nil {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL is required in production")
		}
		logger.Warn("using in-memory stores; data is lost on restart")
		s.Practices = practice.NewMemoryStore()
		s.Appointments = appointment.NewMemoryRepository()
		s.Outbox = events.NewMemoryOutbox()
		s.Processed = events.NewMemoryProcessedStore()
		s.Operator = audit.NewOperatorLog(nil, logger)
	} else {
		s.SQL = stdlib.OpenDBFromPool(pool)
		s.Practices = practice.NewPostgresStore(pool)
		s.Appointments = appointment.NewPostgresRepository(pool)
		s.Outbox = events.NewOutboxStore(pool)
		s.Processed = events.NewProcessedStore(pool)
		s.Operator = audit.NewOperatorLog(s.SQL, logger)
	}

	if redisClient != nil {
		s.Practices = practice.NewCachedRepository(s.Practices, redisClient, 0, logger)
	}
	return s, nil
}

// Ping reports whether the configured backing stores respond.
func (s *Stores) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("bootstrap: stores not initialized")
	}
	if s.Pool != nil {
		if err := s.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases pooled connections.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.SQL != nil {
		_ = s.SQL.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}
