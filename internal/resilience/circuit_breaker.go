package resilience

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
)

type outcome struct {
	at      time.Time
	success bool
}

// breakerEntry is the per-domain breaker state: a bounded ring of the
// last windowSize outcomes plus the state machine.
type breakerEntry struct {
	state       models.BreakerState
	ring        []outcome
	lastChanged time.Time
}

// SlidingWindowBreaker is a per-domain three-state circuit breaker.
// Unknown domains are conceptually closed; querying them allocates
// nothing.
type SlidingWindowBreaker struct {
	mu               sync.Mutex
	domains          map[string]*breakerEntry
	windowSize       int
	failureThreshold int
	cooldown         time.Duration
	logger           arbor.ILogger

	now func() time.Time
}

func NewSlidingWindowBreaker(cfg common.BreakerConfig, logger arbor.ILogger) *SlidingWindowBreaker {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &SlidingWindowBreaker{
		domains:          make(map[string]*breakerEntry),
		windowSize:       cfg.WindowSize,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		logger:           logger,
		now:              time.Now,
	}
}

func (b *SlidingWindowBreaker) entryFor(domain string) *breakerEntry {
	e, ok := b.domains[domain]
	if !ok {
		e = &breakerEntry{state: models.BreakerClosed, lastChanged: b.now()}
		b.domains[domain] = e
	}
	return e
}

func (e *breakerEntry) failures() int {
	n := 0
	for _, o := range e.ring {
		if !o.success {
			n++
		}
	}
	return n
}

func (b *SlidingWindowBreaker) record(e *breakerEntry, success bool) {
	e.ring = append(e.ring, outcome{at: b.now(), success: success})
	if len(e.ring) > b.windowSize {
		e.ring = e.ring[len(e.ring)-b.windowSize:]
	}
}

// CanCall reports whether a request to domain may proceed. An open
// breaker whose cooldown has elapsed transitions to half-open here.
func (b *SlidingWindowBreaker) CanCall(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.domains[domain]
	if !ok {
		return true
	}

	switch e.state {
	case models.BreakerClosed, models.BreakerHalfOpen:
		return true
	case models.BreakerOpen:
		if b.now().Sub(e.lastChanged) >= b.cooldown {
			e.state = models.BreakerHalfOpen
			e.lastChanged = b.now()
			b.logger.Info().Str("domain", domain).Msg("Circuit breaker half-open, admitting probe")
			return true
		}
		return false
	}
	return true
}

func (b *SlidingWindowBreaker) RecordSuccess(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryFor(domain)
	b.record(e, true)

	if e.state == models.BreakerHalfOpen {
		e.state = models.BreakerClosed
		e.ring = nil
		e.lastChanged = b.now()
		b.logger.Info().Str("domain", domain).Msg("Circuit breaker closed after successful probe")
	}
}

func (b *SlidingWindowBreaker) RecordFailure(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryFor(domain)

	if e.state == models.BreakerHalfOpen {
		// Failed probe: reopen and restart the cooldown clock.
		e.state = models.BreakerOpen
		e.ring = nil
		e.lastChanged = b.now()
		b.logger.Warn().Str("domain", domain).Msg("Circuit breaker reopened after failed probe")
		return
	}

	b.record(e, false)

	if e.state == models.BreakerClosed && e.failures() >= b.failureThreshold {
		e.state = models.BreakerOpen
		e.lastChanged = b.now()
		b.logger.Warn().
			Str("domain", domain).
			Int("failures", e.failures()).
			Msg("Circuit breaker opened")
	}
}

// State returns the domain's current breaker state without creating one.
func (b *SlidingWindowBreaker) State(domain string) models.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.domains[domain]; ok {
		return e.state
	}
	return models.BreakerClosed
}

// AllStates snapshots every tracked domain.
func (b *SlidingWindowBreaker) AllStates() map[string]models.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]models.BreakerState, len(b.domains))
	for domain, e := range b.domains {
		out[domain] = e.state
	}
	return out
}
