package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedRepository is a Redis read-through cache in front of another Repository.
// Only lookups by id are cached; ListActive always reads the backing store.
type CachedRepository struct {
	next   Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedRepository wraps next. A non-positive ttl uses five minutes.
func NewCachedRepository(next Repository, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func (c *CachedRepository) key(id string) string {
	return fmt.Sprintf("practice:config:%s", id)
}

func (c *CachedRepository) Get(ctx context.Context, id string) (*Practice, error) {
	data, err := c.redis.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var p Practice
		if jsonErr := json.Unmarshal(data, &p); jsonErr == nil {
			return &p, nil
		}
		c.logger.Warn("practice cache entry corrupt, refetching", "practice_id", id)
	case err != redis.Nil:
		// Redis trouble should not block lookups.
		c.logger.Warn("practice cache read failed", "practice_id", id, "error", err)
	}

	p, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *CachedRepository) FindByWhatsAppNumber(ctx context.Context, e164 string) (*Practice, error) {
	p, err := c.next.FindByWhatsAppNumber(ctx, e164)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *CachedRepository) FindByGoogleLocation(ctx context.Context, locationName string) (*Practice, error) {
	p, err := c.next.FindByGoogleLocation(ctx, locationName)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *CachedRepository) ListActive(ctx context.Context) ([]*Practice, error) {
	return c.next.ListActive(ctx)
}

// Invalidate drops the cached copy of a practice.
func (c *CachedRepository) Invalidate(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("practice: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedRepository) store(ctx context.Context, p *Practice) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("practice cache marshal failed", "practice_id", p.ID, "error", err)
		return
	}
	if err := c.redis.Set(ctx, c.key(p.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("practice cache write failed", "practice_id", p.ID, "error", err)
	}
}
