package policies

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/morket/scraper/internal/common"
)

// DefaultPolicyName is the catch-all entry consulted when a domain has
// no explicit policy. It always exists, synthesized when the file omits it.
const DefaultPolicyName = "default"

// AllowedHours is an optional UTC scrape window. Start==End means no
// restriction; Start>End wraps past midnight.
type AllowedHours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Policy is the immutable per-domain knob set.
type Policy struct {
	TokensPerInterval int           `yaml:"tokens_per_interval"`
	IntervalSeconds   int           `yaml:"interval_seconds"`
	MinDelayMs        int           `yaml:"min_delay_ms"`
	MaxDelayMs        int           `yaml:"max_delay_ms"`
	AllowedHours      *AllowedHours `yaml:"allowed_hours"`
	RespectRobotsTxt  bool          `yaml:"respect_robots_txt"`
}

// Rate is the token refill rate in tokens per second.
func (p *Policy) Rate() float64 {
	return float64(p.TokensPerInterval) / float64(p.IntervalSeconds)
}

// Delay draws a uniform inter-action delay from [MinDelayMs, MaxDelayMs].
func (p *Policy) Delay(rng *rand.Rand) time.Duration {
	if p.MaxDelayMs <= p.MinDelayMs {
		return time.Duration(p.MinDelayMs) * time.Millisecond
	}
	ms := float64(p.MinDelayMs) + rng.Float64()*float64(p.MaxDelayMs-p.MinDelayMs)
	return time.Duration(ms * float64(time.Millisecond))
}

// WithinAllowedHours reports whether now (UTC) falls inside the policy's
// scrape window. Policies without a window always allow.
func (p *Policy) WithinAllowedHours(now time.Time) bool {
	if p.AllowedHours == nil {
		return true
	}
	start, end := p.AllowedHours.Start, p.AllowedHours.End
	if start == end {
		return true
	}
	hour := now.UTC().Hour()
	if start < end {
		return hour >= start && hour < end
	}
	// Window wraps past midnight: [start, 24) or [0, end).
	return hour >= start || hour < end
}

func (p *Policy) validate() error {
	if p.TokensPerInterval < 1 {
		return fmt.Errorf("tokens_per_interval must be >= 1, got %d", p.TokensPerInterval)
	}
	if p.IntervalSeconds < 1 {
		return fmt.Errorf("interval_seconds must be >= 1, got %d", p.IntervalSeconds)
	}
	if p.MinDelayMs < 0 || p.MaxDelayMs < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if p.MaxDelayMs < p.MinDelayMs {
		return fmt.Errorf("max_delay_ms %d is below min_delay_ms %d", p.MaxDelayMs, p.MinDelayMs)
	}
	if h := p.AllowedHours; h != nil {
		if h.Start < 0 || h.Start > 23 || h.End < 0 || h.End > 23 {
			return fmt.Errorf("allowed_hours values must be in [0,23]")
		}
	}
	return nil
}

// NewDefaultPolicy is the built-in fallback used when no file is
// configured or the file lacks a default entry.
func NewDefaultPolicy() *Policy {
	return &Policy{
		TokensPerInterval: 2,
		IntervalSeconds:   10,
		MinDelayMs:        500,
		MaxDelayMs:        2000,
		RespectRobotsTxt:  true,
	}
}

// Store is the read-only policy lookup handed to the executor and the
// rate limiter.
type Store struct {
	policies map[string]*Policy
}

type policyFile struct {
	Domains map[string]*Policy `yaml:"domains"`
}

// Load reads the YAML policy file at path. Invalid entries are skipped
// with a warning; a missing or unreadable file falls back to the
// built-in default. A "default" entry is synthesized when absent.
func Load(path string, logger arbor.ILogger) *Store {
	if logger == nil {
		logger = common.GetLogger()
	}

	store := &Store{policies: map[string]*Policy{}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Domain policy file unreadable, using built-in default")
		} else {
			var file policyFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Domain policy file unparseable, using built-in default")
			} else {
				for domain, policy := range file.Domains {
					if policy == nil {
						logger.Warn().Str("domain", domain).Msg("Skipping empty domain policy entry")
						continue
					}
					if err := policy.validate(); err != nil {
						logger.Warn().Err(err).Str("domain", domain).Msg("Skipping invalid domain policy entry")
						continue
					}
					store.policies[domain] = policy
				}
			}
		}
	}

	if _, ok := store.policies[DefaultPolicyName]; !ok {
		store.policies[DefaultPolicyName] = NewDefaultPolicy()
	}

	logger.Info().Int("domains", len(store.policies)).Msg("Domain policies loaded")
	return store
}

// Get returns the policy for domain, falling back to the default entry.
func (s *Store) Get(domain string) *Policy {
	if policy, ok := s.policies[domain]; ok {
		return policy
	}
	return s.policies[DefaultPolicyName]
}

// Domains lists every domain with an explicit policy, default included.
func (s *Store) Domains() []string {
	out := make([]string, 0, len(s.policies))
	for domain := range s.policies {
		out = append(out, domain)
	}
	return out
}
