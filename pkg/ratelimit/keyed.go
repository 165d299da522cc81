package ratelimit

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key. Buckets of idle keys
// expire after idleTTL.
type KeyedLimiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	stop     sync.Once
}

// NewKeyedLimiter allows perMinute events per key with the given burst.
func NewKeyedLimiter(perMinute, burst int, idleTTL time.Duration) *KeyedLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *rate.Limiter](idleTTL),
	)
	go cache.Start()

	return &KeyedLimiter{
		limiters: cache,
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

// Allow consumes one token for key.
func (k *KeyedLimiter) Allow(key string) bool {
	item, _ := k.limiters.GetOrSet(key, rate.NewLimiter(k.rate, k.burst))
	return item.Value().Allow()
}

func (k *KeyedLimiter) Close() {
	k.stop.Do(k.limiters.Stop)
}
