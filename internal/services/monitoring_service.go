package services

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// HealthCheck checks one dependency. Critical checks mark the whole service critical on failure.
type HealthCheck struct {
	Check    func(ctx context.Context) error
	Critical bool
}

// HealthStatus represents the overall health of the system
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
	LastCheck  time.Time                  `json:"lastCheck"`
}

// ComponentStatus represents the status of a system component
type ComponentStatus struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	LastCheck time.Time              `json:"lastCheck"`
}

// MonitoringService owns the prometheus collectors and the component health table
type MonitoringService struct {
	registry *prometheus.Registry

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	computeDuration    *prometheus.HistogramVec
	fetchFailures      *prometheus.CounterVec
	narrationFallbacks *prometheus.CounterVec
	digestsPublished   *prometheus.CounterVec

	startedAt  time.Time
	components map[string]ComponentStatus
	checks     map[string]HealthCheck
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewMonitoringService creates a monitoring service with its own registry
func NewMonitoringService(logger *zap.Logger) *MonitoringService {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &MonitoringService{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "cache_hits_total",
				Help:      "Result cache hits by insight kind",
			},
			[]string{"kind"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "cache_misses_total",
				Help:      "Result cache misses (including forced refreshes) by insight kind",
			},
			[]string{"kind"},
		),
		computeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "insights",
				Name:      "compute_duration_seconds",
				Help:      "Time spent computing an insight on a cache miss",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "fetch_failures_total",
				Help:      "Record store fetch failures by source",
			},
			[]string{"source"},
		),
		narrationFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "narration_fallbacks_total",
				Help:      "Sections narrated by the deterministic formatter after a text generation failure",
			},
			[]string{"section"},
		),
		digestsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "insights",
				Name:      "digests_published_total",
				Help:      "Weekly digests handed to the event bus by outcome",
			},
			[]string{"outcome"},
		),
		startedAt:  time.Now(),
		components: make(map[string]ComponentStatus),
		checks:     make(map[string]HealthCheck),
		logger:     logger.Named("monitoring"),
	}

	m.registry.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.computeDuration,
		m.fetchFailures,
		m.narrationFallbacks,
		m.digestsPublished,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry exposes the private registry for tests and extra collectors
func (m *MonitoringService) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MonitoringService) RecordCacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *MonitoringService) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(kind).Inc()
}

func (m *MonitoringService) ObserveComputation(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.computeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *MonitoringService) RecordFetchFailure(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *MonitoringService) RecordNarrationFallback(section string) {
	if m == nil {
		return
	}
	m.narrationFallbacks.WithLabelValues(section).Inc()
}

func (m *MonitoringService) RecordDigestPublished(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.digestsPublished.WithLabelValues(outcome).Inc()
}

// RegisterHealthCheck adds a check run by CheckHealth
func (m *MonitoringService) RegisterHealthCheck(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// UpdateComponentStatus updates the status of a specific component
func (m *MonitoringService) UpdateComponentStatus(component, status, message string, details map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components[component] = ComponentStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		LastCheck: time.Now(),
	}
}

// CheckHealth runs every registered check and returns the resulting status
func (m *MonitoringService) CheckHealth(ctx context.Context) *HealthStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		check := checks[name]
		if err := check.Check(ctx); err != nil {
			status := StatusDegraded
			if check.Critical {
				status = StatusCritical
			}
			m.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			m.UpdateComponentStatus(name, status, err.Error(), nil)
			continue
		}
		m.UpdateComponentStatus(name, StatusHealthy, "ok", nil)
	}

	return m.GetHealthStatus()
}

// GetHealthStatus returns the last known health without running checks
func (m *MonitoringService) GetHealthStatus() *HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	status := &HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  now,
		Uptime:     now.Sub(m.startedAt).Round(time.Second).String(),
		Components: make(map[string]ComponentStatus, len(m.components)),
		LastCheck:  now,
	}

	for name, component := range m.components {
		status.Components[name] = component
		if component.Status == StatusCritical {
			status.Status = StatusCritical
		} else if component.Status == StatusDegraded && status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

// HandleHealthCheck is the liveness endpoint
func (m *MonitoringService) HandleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    StatusHealthy,
		"service":   "deacon-insights",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleDetailedHealth runs the checks; critical failures answer 503
func (m *MonitoringService) HandleDetailedHealth(c *gin.Context) {
	health := m.CheckHealth(c.Request.Context())

	statusCode := http.StatusOK
	if health.Status == StatusCritical {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// HandleMetrics serves the prometheus exposition format
func (m *MonitoringService) HandleMetrics(c *gin.Context) {
	promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}
