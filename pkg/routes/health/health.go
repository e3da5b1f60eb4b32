// Package health serves liveness and readiness probes over the service's backing stores.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 5 * time.Second

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a single probe
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Probe is one dependency check. A failing critical probe makes the service unhealthy; any other
// failing probe only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// DatabaseProbe pings Postgres
func DatabaseProbe(db *sqlx.DB) Probe {
	return Probe{Name: "database", Critical: true, Check: db.PingContext}
}

// RedisProbe pings the lock store
func RedisProbe(rdb *redis.Client) Probe {
	return Probe{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// GraphProbe verifies the topology projection target
func GraphProbe(client interface {
	VerifyConnectivity(ctx context.Context) error
}) Probe {
	return Probe{Name: "graph", Check: client.VerifyConnectivity}
}

// Checker provides health check functionality
type Checker struct {
	probes    []Probe
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

func NewChecker(version string, probes ...Probe) *Checker {
	return &Checker{
		probes:    probes,
		startTime: time.Now(),
		version:   version,
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler reports that the process is up
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether the service can take traffic
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs every probe and reports the detailed result
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.runChecks(ctx.Request().Context())
	overall := calculateOverallStatus(checks)

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

func (c *Checker) runChecks(ctx context.Context) map[string]CheckResult {
	checks := make(map[string]CheckResult, len(c.probes))
	for _, probe := range c.probes {
		checks[probe.Name] = runProbe(ctx, probe)
	}
	return checks
}

func runProbe(ctx context.Context, probe Probe) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := probe.Check(ctx); err != nil {
		status := StatusDegraded
		if probe.Critical {
			status = StatusUnhealthy
		}
		return CheckResult{
			Status:  status,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

func calculateOverallStatus(checks map[string]CheckResult) Status {
	hasDegraded := false
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// RegisterRoutes registers health check routes under /api/v1
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")

	health.GET("", c.HealthHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
