package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/policies"
)

// bucket is the per-domain token-bucket state. tokens is real-valued so
// partial refills accumulate between acquires.
type bucket struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	originalRate float64
	lastRefill   time.Time
	reducedUntil time.Time // zero when no backoff is active
}

// TokenBucketLimiter enforces per-domain request pacing. Buckets are
// created lazily from the domain's policy. One mutex guards the whole
// map; waits are computed under the lock and slept outside it.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	policies *policies.Store
	logger   arbor.ILogger

	now func() time.Time
}

func NewTokenBucketLimiter(store *policies.Store, logger arbor.ILogger) *TokenBucketLimiter {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &TokenBucketLimiter{
		buckets:  make(map[string]*bucket),
		policies: store,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *TokenBucketLimiter) bucketFor(domain string) *bucket {
	b, ok := l.buckets[domain]
	if !ok {
		policy := l.policies.Get(domain)
		rate := policy.Rate()
		b = &bucket{
			tokens:       float64(policy.TokensPerInterval),
			maxTokens:    float64(policy.TokensPerInterval),
			refillRate:   rate,
			originalRate: rate,
			lastRefill:   l.now(),
		}
		l.buckets[domain] = b
	}
	return b
}

// refill adds elapsed*rate tokens, clamps to max, and restores the rate
// when an expired backoff is found. Callers hold the lock.
func (l *TokenBucketLimiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.maxTokens {
			b.tokens = b.maxTokens
		}
		b.lastRefill = now
	}
	if !b.reducedUntil.IsZero() && now.After(b.reducedUntil) {
		b.refillRate = b.originalRate
		b.reducedUntil = time.Time{}
	}
}

// Acquire blocks until a token is available for domain or ctx is done.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, domain string) error {
	for {
		l.mu.Lock()
		b := l.bucketFor(domain)
		l.refill(b)

		if b.tokens >= 1 {
			b.tokens--
			l.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReduceRate applies a temporary backoff: the refill rate becomes
// original*factor until d elapses. Repeated calls with the same factor
// are idempotent because the base is always the original rate.
func (l *TokenBucketLimiter) ReduceRate(domain string, factor float64, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(domain)
	b.refillRate = b.originalRate * factor
	b.reducedUntil = l.now().Add(d)

	l.logger.Warn().
		Str("domain", domain).
		Float64("rate", b.refillRate).
		Dur("duration", d).
		Msg("Rate limit reduced")
}

// Rate reports the domain's current refill rate in tokens per second.
func (l *TokenBucketLimiter) Rate(domain string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(domain)
	l.refill(b)
	return b.refillRate
}

// LoadPolicies swaps in a new policy store and drops existing buckets so
// every domain picks up its new limits on the next acquire.
func (l *TokenBucketLimiter) LoadPolicies(store *policies.Store) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.policies = store
	l.buckets = make(map[string]*bucket)
}

// GetStats reports the bucket state for domain. A domain that has never
// acquired gets its policy defaults; no bucket is created.
func (l *TokenBucketLimiter) GetStats(domain string) models.LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[domain]
	if !ok {
		policy := l.policies.Get(domain)
		return models.LimiterStats{
			CurrentTokens: float64(policy.TokensPerInterval),
			MaxTokens:     float64(policy.TokensPerInterval),
			RefillRate:    policy.Rate(),
		}
	}
	l.refill(b)
	return l.statsLocked(b)
}

// AllStats snapshots every tracked domain for the metrics report.
func (l *TokenBucketLimiter) AllStats() map[string]models.LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]models.LimiterStats, len(l.buckets))
	for domain, b := range l.buckets {
		l.refill(b)
		out[domain] = l.statsLocked(b)
	}
	return out
}

func (l *TokenBucketLimiter) statsLocked(b *bucket) models.LimiterStats {
	return models.LimiterStats{
		CurrentTokens: b.tokens,
		MaxTokens:     b.maxTokens,
		RefillRate:    b.refillRate,
		Reduced:       !b.reducedUntil.IsZero(),
	}
}
