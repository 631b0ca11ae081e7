package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying Redis client for lock pools
func (c *Cache) Client() *redis.Client {
	return c.client
}

// channelGenerationTTL bounds how long a write generation is remembered.
// It must outlive any single read-through fill.
const channelGenerationTTL = 24 * time.Hour

func channelKey(channelID string) string {
	return fmt.Sprintf("channel:%s", channelID)
}

func channelGenerationKey(channelID string) string {
	return fmt.Sprintf("channel:gen:%s", channelID)
}

// Channel Cache Operations

// SetChannel caches a channel snapshot
func (c *Cache) SetChannel(ctx context.Context, ch *models.Channel, ttl time.Duration) error {
	return c.SetWithJSON(ctx, channelKey(ch.ID), ch, ttl)
}

// GetChannel retrieves a channel from cache. A miss returns nil, nil.
func (c *Cache) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	data, err := c.client.Get(ctx, channelKey(channelID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get channel from cache: %w", err)
	}

	var ch models.Channel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel: %w", err)
	}

	return &ch, nil
}

// DeleteChannel removes a channel from cache
func (c *Cache) DeleteChannel(ctx context.Context, channelID string) error {
	return c.client.Del(ctx, channelKey(channelID)).Err()
}

// ChannelGeneration returns the channel's write generation, zero when no
// write has been recorded
func (c *Cache) ChannelGeneration(ctx context.Context, channelID string) (int64, error) {
	gen, err := c.client.Get(ctx, channelGenerationKey(channelID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// BumpChannelGeneration records that a write is about to happen, so fills
// that read the store before it are discarded
func (c *Cache) BumpChannelGeneration(ctx context.Context, channelID string) error {
	key := channelGenerationKey(channelID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, channelGenerationTTL)
		return nil
	})
	return err
}

// FillChannel caches ch only while the channel's generation still equals
// gen. It reports whether the snapshot was stored.
func (c *Cache) FillChannel(ctx context.Context, ch *models.Channel, gen int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(ch)
	if err != nil {
		return false, fmt.Errorf("failed to marshal channel: %w", err)
	}

	key := channelGenerationKey(ch.ID)
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, channelKey(ch.ID), data, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fill channel cache: %w", err)
	}
	return stored, nil
}

// Batch Operations

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil // Cache miss
		}
		return fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
