package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the application configuration. Values come from
// defaults overridden by SCRAPER_* environment variables.
type Config struct {
	Environment string        `validate:"required,oneof=development production"`
	Server      ServerConfig  `validate:"required"`
	Auth        AuthConfig    `validate:"required"`
	Logging     LoggingConfig `validate:"required"`
	Browser     BrowserConfig `validate:"required"`
	Queue       QueueConfig   `validate:"required"`
	RateLimit   RateLimitConfig
	Breaker     BreakerConfig
	Proxy       ProxyConfig
	Backend     BackendConfig `validate:"required"`
	Webhook     WebhookConfig `validate:"required"`
	Policies    PoliciesConfig
	Robots      RobotsConfig
}

type ServerConfig struct {
	Port             int           `validate:"min=1,max=65535"`
	Host             string        `validate:"required"`
	GracefulShutdown time.Duration `validate:"min=1s"`
}

// AuthConfig holds the shared service key callers must present in the
// X-Service-Key header.
type AuthConfig struct {
	ServiceKey string `validate:"required"`
}

type LoggingConfig struct {
	Level  string   `validate:"required,oneof=debug info warn error"`
	Output []string `validate:"required,min=1,dive,oneof=stdout console file"`
}

type BrowserConfig struct {
	PoolSize       int           `validate:"min=1,max=20"`
	PageLimit      int           `validate:"min=1"`
	AcquireTimeout time.Duration `validate:"min=1s"`
	NavTimeout     time.Duration `validate:"min=100ms"`
	Headless       bool
	ExecPath       string
}

type QueueConfig struct {
	// Workers defaults to the browser pool size when zero.
	Workers     int           `validate:"min=0,max=64"`
	MaxDepth    int           `validate:"min=1"`
	TaskTimeout time.Duration `validate:"min=1s"`
}

// RateLimitConfig controls the per-domain token buckets: Tokens requests
// are admitted per Interval, bursting up to Tokens.
type RateLimitConfig struct {
	Tokens   float64       `validate:"gte=1"`
	Interval time.Duration `validate:"min=1s"`
}

// Rate is the bucket refill rate in tokens per second.
func (r RateLimitConfig) Rate() float64 {
	return r.Tokens / r.Interval.Seconds()
}

type BreakerConfig struct {
	WindowSize       int           `validate:"min=1"`
	FailureThreshold int           `validate:"min=1"`
	Cooldown         time.Duration `validate:"min=1s"`
}

type ProxyConfig struct {
	Endpoints           []string
	DomainCooldown      time.Duration `validate:"min=0"`
	HealthCheckInterval time.Duration `validate:"min=1s"`
}

// BackendConfig points at the credential backend.
type BackendConfig struct {
	APIURL     string `validate:"required,url"`
	ServiceKey string `validate:"required"`
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries int `validate:"min=0,max=10"`
}

type WebhookConfig struct {
	Secret      string `validate:"required"`
	DefaultURL  string `validate:"omitempty,url"`
	MaxRetries  int    `validate:"min=0,max=10"`
	BackoffBase time.Duration
	Timeout     time.Duration
}

type PoliciesConfig struct {
	Path string
}

type RobotsConfig struct {
	Enabled  bool
	CacheTTL time.Duration `validate:"min=1s"`
	Timeout  time.Duration `validate:"min=1s"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:             8001,
			Host:             "0.0.0.0",
			GracefulShutdown: 30 * time.Second,
		},
		Auth: AuthConfig{
			ServiceKey: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Browser: BrowserConfig{
			PoolSize:       5,
			PageLimit:      100,
			AcquireTimeout: 30 * time.Second,
			NavTimeout:     30 * time.Second,
			Headless:       true,
		},
		Queue: QueueConfig{
			Workers:     0, // follows pool size
			MaxDepth:    500,
			TaskTimeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Tokens:   2,
			Interval: 10 * time.Second,
		},
		Breaker: BreakerConfig{
			WindowSize:       10,
			FailureThreshold: 5,
			Cooldown:         120 * time.Second,
		},
		Proxy: ProxyConfig{
			Endpoints:           nil,
			DomainCooldown:      30 * time.Second,
			HealthCheckInterval: 60 * time.Second,
		},
		Backend: BackendConfig{
			APIURL:     "",
			ServiceKey: "",
			CacheTTL:   5 * time.Minute,
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Webhook: WebhookConfig{
			Secret:      "",
			DefaultURL:  "",
			MaxRetries:  3,
			BackoffBase: 2 * time.Second,
			Timeout:     15 * time.Second,
		},
		Policies: PoliciesConfig{
			Path: "",
		},
		Robots: RobotsConfig{
			Enabled:  true,
			CacheTTL: time.Hour,
			Timeout:  10 * time.Second,
		},
	}
}

// MaxConcurrency returns the worker count: the configured value, or the
// browser pool size when unset.
func (c *Config) MaxConcurrency() int {
	if c.Queue.Workers > 0 {
		return c.Queue.Workers
	}
	return c.Browser.PoolSize
}

// Load builds the configuration from defaults and SCRAPER_* environment
// variables, then validates it.
func Load() (*Config, error) {
	config := NewDefaultConfig()
	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRAPER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SCRAPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRAPER_HOST"); host != "" {
		config.Server.Host = host
	}
	if secs := os.Getenv("SCRAPER_GRACEFUL_SHUTDOWN_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Server.GracefulShutdown = time.Duration(s) * time.Second
		}
	}

	// Auth configuration
	if key := os.Getenv("SCRAPER_SERVICE_KEY"); key != "" {
		config.Auth.ServiceKey = key
	}

	// Logging configuration
	if level := os.Getenv("SCRAPER_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("SCRAPER_LOG_OUTPUT"); output != "" {
		if outputs := splitAndTrim(output, ","); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Browser configuration
	if size := os.Getenv("SCRAPER_BROWSER_POOL_SIZE"); size != "" {
		if s, err := strconv.Atoi(size); err == nil {
			config.Browser.PoolSize = s
		}
	}
	if limit := os.Getenv("SCRAPER_BROWSER_PAGE_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.Browser.PageLimit = l
		}
	}
	if timeout := os.Getenv("SCRAPER_BROWSER_ACQUIRE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Browser.AcquireTimeout = d
		}
	}
	if ms := os.Getenv("SCRAPER_NAVIGATION_TIMEOUT_MS"); ms != "" {
		if m, err := strconv.Atoi(ms); err == nil {
			config.Browser.NavTimeout = time.Duration(m) * time.Millisecond
		}
	}
	if headless := os.Getenv("SCRAPER_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("SCRAPER_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// Queue configuration
	if workers := os.Getenv("SCRAPER_MAX_CONCURRENCY"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Queue.Workers = w
		}
	}
	if depth := os.Getenv("SCRAPER_MAX_QUEUE_DEPTH"); depth != "" {
		if d, err := strconv.Atoi(depth); err == nil {
			config.Queue.MaxDepth = d
		}
	}
	if secs := os.Getenv("SCRAPER_TASK_TIMEOUT_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Queue.TaskTimeout = time.Duration(s) * time.Second
		}
	}

	// Rate limit configuration
	if tokens := os.Getenv("SCRAPER_RATE_LIMIT_TOKENS"); tokens != "" {
		if t, err := strconv.ParseFloat(tokens, 64); err == nil {
			config.RateLimit.Tokens = t
		}
	}
	if secs := os.Getenv("SCRAPER_RATE_LIMIT_INTERVAL_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.RateLimit.Interval = time.Duration(s) * time.Second
		}
	}

	// Circuit breaker configuration
	if window := os.Getenv("SCRAPER_CB_WINDOW_SIZE"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			config.Breaker.WindowSize = w
		}
	}
	if threshold := os.Getenv("SCRAPER_CB_FAILURE_THRESHOLD"); threshold != "" {
		if t, err := strconv.Atoi(threshold); err == nil {
			config.Breaker.FailureThreshold = t
		}
	}
	if secs := os.Getenv("SCRAPER_CB_COOLDOWN_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Breaker.Cooldown = time.Duration(s) * time.Second
		}
	}

	// Proxy configuration
	if endpoints := os.Getenv("SCRAPER_PROXY_ENDPOINTS"); endpoints != "" {
		config.Proxy.Endpoints = splitAndTrim(endpoints, ",")
	}
	if secs := os.Getenv("SCRAPER_PROXY_DOMAIN_COOLDOWN_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Proxy.DomainCooldown = time.Duration(s) * time.Second
		}
	}
	if secs := os.Getenv("SCRAPER_PROXY_HEALTH_CHECK_INTERVAL_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Proxy.HealthCheckInterval = time.Duration(s) * time.Second
		}
	}

	// Credential backend configuration
	if url := os.Getenv("SCRAPER_BACKEND_API_URL"); url != "" {
		config.Backend.APIURL = url
	}
	if key := os.Getenv("SCRAPER_BACKEND_SERVICE_KEY"); key != "" {
		config.Backend.ServiceKey = key
	}
	if secs := os.Getenv("SCRAPER_CREDENTIAL_CACHE_TTL_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Backend.CacheTTL = time.Duration(s) * time.Second
		}
	}
	if retries := os.Getenv("SCRAPER_CREDENTIAL_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Backend.MaxRetries = r
		}
	}
	if timeout := os.Getenv("SCRAPER_CREDENTIAL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Backend.Timeout = d
		}
	}

	// Webhook configuration
	if secret := os.Getenv("SCRAPER_WEBHOOK_SECRET"); secret != "" {
		config.Webhook.Secret = secret
	}
	if url := os.Getenv("SCRAPER_DEFAULT_WEBHOOK_URL"); url != "" {
		config.Webhook.DefaultURL = url
	}
	if retries := os.Getenv("SCRAPER_WEBHOOK_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Webhook.MaxRetries = r
		}
	}
	if base := os.Getenv("SCRAPER_WEBHOOK_BACKOFF_BASE"); base != "" {
		if d, err := time.ParseDuration(base); err == nil {
			config.Webhook.BackoffBase = d
		}
	}
	if timeout := os.Getenv("SCRAPER_WEBHOOK_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Webhook.Timeout = d
		}
	}

	// Domain policy configuration
	if path := os.Getenv("SCRAPER_DOMAIN_POLICIES_PATH"); path != "" {
		config.Policies.Path = path
	}

	// Robots configuration
	if enabled := os.Getenv("SCRAPER_ROBOTS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Robots.Enabled = e
		}
	}
	if secs := os.Getenv("SCRAPER_ROBOTS_CACHE_TTL_SECONDS"); secs != "" {
		if s, err := strconv.Atoi(secs); err == nil {
			config.Robots.CacheTTL = time.Duration(s) * time.Second
		}
	}

	// Development runs don't need a real backend; keep startup working
	// without one. Production must set SCRAPER_BACKEND_API_URL.
	if config.Backend.APIURL == "" && !config.IsProduction() {
		config.Backend.APIURL = "http://localhost:8000"
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.)
// are allowed. Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
