package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps recently computed slot lists in redis. Misses and redis
// failures both read as "not cached"; availability must keep answering when
// redis is down.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache builds a cache with the given TTL.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func slotsKey(serviceID, staffID int64, date string) string {
	return fmt.Sprintf("availability:slots:%d:%d:%s", serviceID, staffID, date)
}

// cachedSlots is the stored payload. The source travels with the slots so
// a list written by the local fallback is never reported as external on a
// later hit.
type cachedSlots struct {
	Source Source   `json:"source"`
	Slots  []string `json:"slots"`
}

// GetSlots returns the cached slot list and the source that computed it.
func (c *Cache) GetSlots(ctx context.Context, serviceID, staffID int64, date string) ([]string, Source, bool) {
	if c == nil || c.rdb == nil {
		return nil, SourceLocal, false
	}
	raw, err := c.rdb.Get(ctx, slotsKey(serviceID, staffID, date)).Result()
	if err != nil {
		return nil, SourceLocal, false
	}
	var entry cachedSlots
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Slots == nil {
		return nil, SourceLocal, false
	}
	return entry.Slots, entry.Source, true
}

// SetSlots stores a slot list. An empty list is cached too; "nobody is
// free" is just as expensive to recompute.
func (c *Cache) SetSlots(ctx context.Context, serviceID, staffID int64, date string, slots []string, source Source) {
	if c == nil || c.rdb == nil {
		return
	}
	if slots == nil {
		slots = []string{}
	}
	raw, err := json.Marshal(cachedSlots{Source: source, Slots: slots})
	if err != nil {
		return
	}
	c.rdb.Set(ctx, slotsKey(serviceID, staffID, date), raw, c.ttl)
}
