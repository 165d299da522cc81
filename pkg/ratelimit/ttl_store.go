package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTLStore keeps entries in a ttlcache so idle clients are evicted in the background.
type TTLStore struct {
	cache *ttlcache.Cache[string, Entry]
	stop  sync.Once
}

// NewTTLStore starts the eviction loop; call Close to stop it.
func NewTTLStore(defaultTTL time.Duration) *TTLStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, Entry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)
	go cache.Start()

	return &TTLStore{cache: cache}
}

func (t *TTLStore) Get(_ context.Context, key string) (Entry, bool, error) {
	item := t.cache.Get(key)
	if item == nil {
		return Entry{}, false, nil
	}
	return item.Value(), true, nil
}

func (t *TTLStore) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	t.cache.Set(key, e, ttl)
	return nil
}

func (t *TTLStore) Len() int {
	return t.cache.Len()
}

// Close stops the eviction loop. Safe to call more than once.
func (t *TTLStore) Close() {
	t.stop.Do(t.cache.Stop)
}
