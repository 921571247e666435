package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// StatusHandler serves the unauthenticated health, readiness, and
// metrics endpoints.
type StatusHandler struct {
	pool      interfaces.BrowserPool
	scheduler interfaces.TaskScheduler
	proxies   interfaces.ProxyManager
	breakers  interfaces.CircuitBreaker
	limiter   interfaces.RateLimiter
	logger    arbor.ILogger
}

func NewStatusHandler(pool interfaces.BrowserPool, scheduler interfaces.TaskScheduler, proxies interfaces.ProxyManager, breakers interfaces.CircuitBreaker, limiter interfaces.RateLimiter, logger arbor.ILogger) *StatusHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &StatusHandler{
		pool:      pool,
		scheduler: scheduler,
		proxies:   proxies,
		breakers:  breakers,
		limiter:   limiter,
		logger:    logger,
	}
}

// Health handles GET /health: a coarse liveness snapshot.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}
	respondData(w, map[string]interface{}{
		"status":       "healthy",
		"browser_pool": h.pool.Stats(),
		"proxy_pool":   h.proxies.Stats(),
	})
}

// Readiness handles GET /readiness. Ready means at least one browser
// instance is available and, when proxies are configured, at least one
// of them is healthy.
func (h *StatusHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}

	poolStats := h.pool.Stats()
	proxyStats := h.proxies.Stats()

	proxyReady := proxyStats.Total == 0 || proxyStats.Healthy > 0
	ready := poolStats.Available > 0 && proxyReady

	data := map[string]interface{}{
		"ready":             ready,
		"browser_available": poolStats.Available,
		"proxy_healthy":     proxyStats.Healthy,
	}
	if ready {
		respondData(w, data)
		return
	}

	msg := "Service not ready"
	writeJSON(w, http.StatusServiceUnavailable, models.APIResponse{
		Success: false,
		Data:    data,
		Error:   &msg,
	})
}

// Metrics handles GET /metrics: the full operational snapshot.
func (h *StatusHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}
	respondData(w, models.ServiceStats{
		Pool:       h.pool.Stats(),
		Queue:      h.scheduler.Stats(),
		Proxies:    h.proxies.Stats(),
		Breakers:   h.breakers.AllStates(),
		RateLimits: h.limiter.AllStats(),
	})
}
