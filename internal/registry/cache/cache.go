// Package cache provides a Redis read-through cache for record lookups.
//
// The cache is strictly an accelerator: every miss or Redis failure falls
// back to the store, and mutations invalidate the affected key before the
// response returns. Only queries are ever served from here, so a stale entry
// can never influence a mutation's preconditions.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"datamarket/internal/platform/config"
	"datamarket/internal/registry/models"
	id "datamarket/pkg/domain"
)

const recordKeyPrefix = "datamarket:record:"

// RecordCache caches records by id with a TTL.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
// Returns nil if the URL is empty (cache not configured).
func New(cfg config.RedisConfig, logger *slog.Logger) (*RecordCache, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.RecordTTL, logger), nil
}

// NewWithClient wraps an existing Redis client. Used by integration tests.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RecordCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCache{client: client, ttl: ttl, logger: logger}
}

// GetRecord returns the cached record and true on a hit. Redis errors are
// logged and reported as misses.
func (c *RecordCache) GetRecord(ctx context.Context, recordID id.RecordID) (*models.Record, bool) {
	payload, err := c.client.Get(ctx, recordKey(recordID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "record cache read failed",
				"record_id", recordID,
				"error", err.Error(),
			)
		}
		return nil, false
	}
	var record models.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		c.logger.WarnContext(ctx, "record cache entry corrupt, dropping",
			"record_id", recordID,
			"error", err.Error(),
		)
		c.InvalidateRecord(ctx, recordID)
		return nil, false
	}
	return &record, true
}

// SetRecord stores the record with the configured TTL. Failures are logged,
// never surfaced: the store already answered the query.
func (c *RecordCache) SetRecord(ctx context.Context, record *models.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		c.logger.WarnContext(ctx, "record cache marshal failed",
			"record_id", record.ID,
			"error", err.Error(),
		)
		return
	}
	if err := c.client.Set(ctx, recordKey(record.ID), payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "record cache write failed",
			"record_id", record.ID,
			"error", err.Error(),
		)
	}
}

// InvalidateRecord drops the cached entry after a mutation.
func (c *RecordCache) InvalidateRecord(ctx context.Context, recordID id.RecordID) {
	if err := c.client.Del(ctx, recordKey(recordID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "record cache invalidation failed",
			"record_id", recordID,
			"error", err.Error(),
		)
	}
}

func recordKey(recordID id.RecordID) string {
	return recordKeyPrefix + recordID.String()
}
