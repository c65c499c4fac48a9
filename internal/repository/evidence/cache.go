package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/redis"
)

// store is the consumer interface for the evidence pack cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores assembled evidence packs keyed by deal, question fingerprint
// and snapshot. The snapshot id in the key makes packs from older snapshots
// unreachable after a promotion without any explicit invalidation. Concurrent
// writers for the same key are fine: packs for one key are equivalent, so
// last write wins.
type Cache struct {
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewCache creates an evidence pack cache. ttl == 0 stores packs without
// expiration. cacheTotal is a counter vec with label "result" ("hit"/"miss").
func NewCache(
	s store,
	keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		store:      s,
		keyPrefix:  keyPrefix + "evpack:",
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Get returns the cached pack for the key triple, or ok=false on a miss.
// Store failures are logged and reported as misses so a cache outage only
// costs a recomputation, never the request.
func (c *Cache) Get(ctx context.Context, dealID, fingerprint, snapshotID string) (domain.EvidencePack, bool) {
	key := c.key(dealID, fingerprint, snapshotID)

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached evidence pack", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return domain.EvidencePack{}, false
	}

	var pack domain.EvidencePack
	if err := json.Unmarshal(data, &pack); err != nil {
		c.logger.Warn("Failed to decode cached evidence pack", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return domain.EvidencePack{}, false
	}

	c.incCache("hit")
	return pack, true
}

// Put stores a pack under its own key triple. Failures are logged, not
// returned: a pack that fails to cache is still served to the caller.
func (c *Cache) Put(ctx context.Context, pack domain.EvidencePack) {
	key := c.key(pack.DealID, pack.Fingerprint, pack.SnapshotID)

	data, err := json.Marshal(pack)
	if err != nil {
		c.logger.Warn("Failed to encode evidence pack", zap.String("key", key), zap.Error(err))
		return
	}

	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Failed to cache evidence pack", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) key(dealID, fingerprint, snapshotID string) string {
	return fmt.Sprintf("%s%s:%s:%s", c.keyPrefix, dealID, fingerprint, snapshotID)
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
