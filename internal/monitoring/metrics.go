package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

type Metrics struct {
	RequestCount    int64            `json:"request_count"`
	RequestDuration time.Duration    `json:"-"`
	AvgRequestMs    float64          `json:"avg_request_duration_ms"`
	ActiveRequests  int64            `json:"active_requests"`
	ErrorCount      int64            `json:"error_count"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	Endpoints       map[string]int64 `json:"endpoint_calls"`
	StartTime       time.Time        `json:"start_time"`
	LastRequest     time.Time        `json:"last_request"`
}

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Critical bool      `json:"critical"`
	Message  string    `json:"message,omitempty"`
	LastRun  time.Time `json:"last_run"`
}

type HealthCheckFunc func(ctx context.Context) error

// StatsFunc contributes a named section to the /metrics response.
type StatsFunc func() interface{}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// Monitor collects request metrics and runs health checks. A failing
// critical check makes the service unhealthy; a failing optional one (such
// as the Redis cache) only degrades it.
type Monitor struct {
	mu            sync.RWMutex
	metrics       Metrics
	totalDuration time.Duration
	checks        map[string]registeredCheck
	stats         map[string]StatsFunc
}

func NewMonitor() *Monitor {
	return &Monitor{
		metrics: Metrics{
			StatusCodes: make(map[string]int64),
			Endpoints:   make(map[string]int64),
			StartTime:   time.Now(),
		},
		checks: make(map[string]registeredCheck),
		stats:  make(map[string]StatsFunc),
	}
}

func (m *Monitor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.mu.Lock()
		m.metrics.ActiveRequests++
		m.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		endpoint := c.Request.Method + " " + c.FullPath()

		m.mu.Lock()
		defer m.mu.Unlock()
		m.metrics.RequestCount++
		m.metrics.ActiveRequests--
		m.totalDuration += duration
		m.metrics.RequestDuration = m.totalDuration / time.Duration(m.metrics.RequestCount)
		m.metrics.AvgRequestMs = float64(m.metrics.RequestDuration) / float64(time.Millisecond)
		m.metrics.LastRequest = time.Now()

		if statusCode >= 400 {
			m.metrics.ErrorCount++
		}
		m.metrics.StatusCodes[http.StatusText(statusCode)]++
		m.metrics.Endpoints[endpoint]++
	}
}

func (m *Monitor) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.metrics
	out.StatusCodes = make(map[string]int64, len(m.metrics.StatusCodes))
	out.Endpoints = make(map[string]int64, len(m.metrics.Endpoints))
	for k, v := range m.metrics.StatusCodes {
		out.StatusCodes[k] = v
	}
	for k, v := range m.metrics.Endpoints {
		out.Endpoints[k] = v
	}
	return out
}

func (m *Monitor) RegisterHealthCheck(name string, critical bool, fn HealthCheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = registeredCheck{fn: fn, critical: critical}
}

func (m *Monitor) RegisterStats(name string, fn StatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[name] = fn
}

// RunHealthChecks runs every registered check with its own timeout.
func (m *Monitor) RunHealthChecks(ctx context.Context) map[string]HealthCheck {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	checks := make(map[string]registeredCheck, len(m.checks))
	for name, check := range m.checks {
		names = append(names, name)
		checks[name] = check
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]HealthCheck, len(names))
	for _, name := range names {
		check := checks[name]
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check.fn(checkCtx)
		cancel()

		result := HealthCheck{
			Name:     name,
			Status:   StatusHealthy,
			Critical: check.critical,
			LastRun:  time.Now(),
		}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
		}
		results[name] = result
	}
	return results
}

func overallStatus(checks map[string]HealthCheck) string {
	status := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusHealthy {
			continue
		}
		if check.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

type SystemMetrics struct {
	Uptime         time.Duration `json:"uptime"`
	MemoryUsage    MemoryStats   `json:"memory"`
	GoroutineCount int           `json:"goroutine_count"`
	CPUCount       int           `json:"cpu_count"`
	GoVersion      string        `json:"go_version"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc_mb"`
	TotalAlloc uint64 `json:"total_alloc_mb"`
	Sys        uint64 `json:"sys_mb"`
	NumGC      uint32 `json:"num_gc"`
}

func (m *Monitor) GetSystemMetrics() SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return SystemMetrics{
		Uptime: time.Since(m.metrics.StartTime),
		MemoryUsage: MemoryStats{
			Alloc:      bToMb(ms.Alloc),
			TotalAlloc: bToMb(ms.TotalAlloc),
			Sys:        bToMb(ms.Sys),
			NumGC:      ms.NumGC,
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

// RegisterRoutes mounts /health, /ready, /live and /metrics.
func (m *Monitor) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", m.HealthHandler())
	r.GET("/ready", m.ReadinessHandler())
	r.GET("/live", m.LivenessHandler())
	r.GET("/metrics", m.MetricsHandler())
}

func (m *Monitor) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"application": m.GetMetrics(),
			"system":      m.GetSystemMetrics(),
			"timestamp":   time.Now(),
		}

		m.mu.RLock()
		for name, fn := range m.stats {
			response[name] = fn()
		}
		m.mu.RUnlock()

		c.JSON(http.StatusOK, response)
	}
}

func (m *Monitor) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := m.RunHealthChecks(c.Request.Context())
		status := overallStatus(checks)

		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    time.Since(m.metrics.StartTime).String(),
		})
	}
}

func (m *Monitor) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if overallStatus(m.RunHealthChecks(c.Request.Context())) == StatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"timestamp": time.Now(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
		})
	}
}

func (m *Monitor) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(m.metrics.StartTime).String(),
		})
	}
}
