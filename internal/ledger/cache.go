package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotVersionKey = "stock:version"
	snapshotBumpChan   = "stock.bump"
)

// PositionCache is a versioned Redis cache for location position snapshots.
// It backs the read-side snapshot endpoint only and is never consulted for
// control flow.
type PositionCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewPositionCache instantiates the cache helper. A nil client degrades to
// pass-through loading.
func NewPositionCache(client *redis.Client, ttl time.Duration) *PositionCache {
	return &PositionCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *PositionCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, snapshotVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, snapshotVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, snapshotVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *PositionCache) buildKey(ctx context.Context, locationID int64) (string, error) {
	parts := []string{"stock", "snapshot", strconv.FormatInt(locationID, 10)}
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// Snapshot loads the cached position list for a location, populating it via
// the loader on miss. Concurrent misses for the same key collapse into one
// loader call.
func (c *PositionCache) Snapshot(ctx context.Context, locationID int64, loader func(context.Context) ([]Position, error)) ([]Position, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, locationID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var positions []Position
		if err := json.Unmarshal(payload, &positions); err != nil {
			return nil, err
		}
		return positions, nil
	}
	if err != redis.Nil {
		return nil, err
	}
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		positions, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(positions)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return positions, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Position), nil
	}
}

// Bump invalidates all snapshots by incrementing the global version and
// publishing an event for other replicas.
func (c *PositionCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, snapshotVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, snapshotBumpChan, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications from other
// replicas and keeps the local version in sync.
func (c *PositionCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, snapshotBumpChan)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, snapshotVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, snapshotVersionKey).Err()
			}
		}
	}()
	return nil
}
