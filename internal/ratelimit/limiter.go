// Package ratelimit throttles callers with one token bucket per user id or
// client IP.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tier picks the limits for a caller.
type Tier int

const (
	// TierAnonymous is the auth endpoints, keyed by client IP.
	TierAnonymous Tier = iota
	// TierUser is the data gateway, keyed by user id.
	TierUser
)

// Config sets per-tier refill rates and bursts. Buckets idle for longer than
// CleanupInterval are dropped.
type Config struct {
	UserRPS         float64
	UserBurst       int
	AnonRPS         float64
	AnonBurst       int
	CleanupInterval time.Duration
}

var DefaultConfig = Config{
	UserRPS:         10,
	UserBurst:       30,
	AnonRPS:         1,
	AnonBurst:       10,
	CleanupInterval: time.Hour,
}

func (c Config) limits(tier Tier) (rate.Limit, int) {
	if tier == TierAnonymous {
		return rate.Limit(c.AnonRPS), c.AnonBurst
	}
	return rate.Limit(c.UserRPS), c.UserBurst
}

// A user id and an IP never share a bucket even if the strings match.
type bucketKey struct {
	tier Tier
	key  string
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter holds the buckets and a janitor goroutine that evicts idle ones.
type RateLimiter struct {
	config Config

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter starts the janitor. Call Stop to end it.
func NewRateLimiter(config Config) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[bucketKey]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Allow takes one token from the caller's bucket if one is available.
func (rl *RateLimiter) Allow(key string, tier Tier) bool {
	return rl.GetLimiter(key, tier).Allow()
}

// GetLimiter returns the caller's bucket, creating it full on first use.
func (rl *RateLimiter) GetLimiter(key string, tier Tier) *rate.Limiter {
	k := bucketKey{tier: tier, key: key}
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[k]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.config.limits(tier))}
		rl.buckets[k] = b
	}
	b.lastUsed = now
	return b.limiter
}

// Cleanup evicts buckets unused for a full CleanupInterval.
func (rl *RateLimiter) Cleanup() {
	cutoff := time.Now().Add(-rl.config.CleanupInterval)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

func (rl *RateLimiter) janitor() {
	defer close(rl.done)
	tick := time.NewTicker(rl.config.CleanupInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the janitor and waits for it. Repeated calls are fine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

// Len is the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
