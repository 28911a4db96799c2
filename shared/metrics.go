package shared

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	rpcAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isir",
		Name:      "rpc_attempts_total",
		Help:      "Registry call attempts by operation and outcome",
	}, []string{"operation", "outcome"})

	scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "isir",
		Name:      "scan_duration_seconds",
		Help:      "Time spent scanning the registry for auction notices",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"outcome"})

	scanEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "isir",
		Name:      "scan_events_total",
		Help:      "Auction notices returned by completed scans",
	})

	documentFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isir",
		Name:      "document_fetch_total",
		Help:      "Document downloads by outcome",
	}, []string{"outcome"})
)

// RegisterPrometheusCollectors registers the tracker's collectors on reg.
func RegisterPrometheusCollectors(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{rpcAttempts, scanDuration, scanEvents, documentFetches} {
		if err := reg.Register(c); err != nil {
			if _, already := err.(prometheus.AlreadyRegisteredError); already {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordRPCAttempt counts one registry call attempt.
func RecordRPCAttempt(operation, outcome string) {
	rpcAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordScan observes a finished scan.
func RecordScan(outcome string, duration time.Duration, events int) {
	scanDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if events > 0 {
		scanEvents.Add(float64(events))
	}
}

// RecordDocumentFetch counts one document download.
func RecordDocumentFetch(outcome string) {
	documentFetches.WithLabelValues(outcome).Inc()
}

// ServiceMetrics tracks performance and success metrics for services
type ServiceMetrics struct {
	ServiceName           string                 `json:"service_name"`
	TotalRequests         int64                  `json:"total_requests"`
	SuccessfulRequests    int64                  `json:"successful_requests"`
	FailedRequests        int64                  `json:"failed_requests"`
	TotalProcessingTime   time.Duration          `json:"total_processing_time"`
	AverageProcessingTime time.Duration          `json:"average_processing_time"`
	LastUpdated           time.Time              `json:"last_updated"`
	CustomMetrics         map[string]interface{} `json:"custom_metrics"`
	PerformanceMetrics    *PerformanceMetrics    `json:"performance_metrics"`
	mutex                 sync.RWMutex
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		ServiceName:        serviceName,
		LastUpdated:        time.Now(),
		CustomMetrics:      make(map[string]interface{}),
		PerformanceMetrics: NewPerformanceMetrics(),
	}
}

// RecordRequest records a request with its success status and processing time
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRequests++
	m.TotalProcessingTime += processingTime
	m.AverageProcessingTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalRequests)

	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}

	m.LastUpdated = time.Now()
	m.PerformanceMetrics.RecordProcessingTime(processingTime)
}

// AddCustomCounter adds delta to a custom counter metric
func (m *ServiceMetrics) AddCustomCounter(key string, delta int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	counter, _ := m.CustomMetrics[key].(int64)
	m.CustomMetrics[key] = counter + delta
	m.LastUpdated = time.Now()
}

// Snapshot returns a copy of the counters suitable for JSON output
func (m *ServiceMetrics) Snapshot() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	custom := make(map[string]interface{}, len(m.CustomMetrics))
	for k, v := range m.CustomMetrics {
		custom[k] = v
	}
	perf := m.PerformanceMetrics.GetPerformanceSnapshot()
	successRate := 0.0
	if m.TotalRequests > 0 {
		successRate = float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0
	}

	return map[string]interface{}{
		"service_name":            m.ServiceName,
		"total_requests":          m.TotalRequests,
		"successful_requests":     m.SuccessfulRequests,
		"failed_requests":         m.FailedRequests,
		"success_rate":            successRate,
		"average_processing_time": m.AverageProcessingTime.String(),
		"p95_processing_time":     perf.P95ProcessingTime.String(),
		"last_updated":            m.LastUpdated,
		"custom_metrics":          custom,
	}
}

// LogSummary logs a comprehensive metrics summary
func (m *ServiceMetrics) LogSummary() {
	logrus.WithFields(logrus.Fields(m.Snapshot())).Info("Service metrics summary")
}

// PerformanceMetrics tracks detailed performance measurements
type PerformanceMetrics struct {
	MinProcessingTime time.Duration `json:"min_processing_time"`
	MaxProcessingTime time.Duration `json:"max_processing_time"`
	P95ProcessingTime time.Duration `json:"p95_processing_time"`
	P99ProcessingTime time.Duration `json:"p99_processing_time"`
	mutex             sync.RWMutex
	processingTimes   []time.Duration
}

// NewPerformanceMetrics creates a new performance metrics tracker
func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{
		processingTimes: make([]time.Duration, 0, 256),
	}
}

// RecordProcessingTime records a processing time and updates performance metrics
func (pm *PerformanceMetrics) RecordProcessingTime(duration time.Duration) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pm.MinProcessingTime == 0 || duration < pm.MinProcessingTime {
		pm.MinProcessingTime = duration
	}
	if duration > pm.MaxProcessingTime {
		pm.MaxProcessingTime = duration
	}

	// keep the last 1000 samples
	if len(pm.processingTimes) >= 1000 {
		pm.processingTimes = pm.processingTimes[1:]
	}
	pm.processingTimes = append(pm.processingTimes, duration)

	times := make([]time.Duration, len(pm.processingTimes))
	copy(times, pm.processingTimes)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	pm.P95ProcessingTime = times[int(float64(len(times)-1)*0.95)]
	pm.P99ProcessingTime = times[int(float64(len(times)-1)*0.99)]
}

// GetPerformanceSnapshot returns a thread-safe snapshot of performance metrics
func (pm *PerformanceMetrics) GetPerformanceSnapshot() PerformanceMetrics {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	return PerformanceMetrics{
		MinProcessingTime: pm.MinProcessingTime,
		MaxProcessingTime: pm.MaxProcessingTime,
		P95ProcessingTime: pm.P95ProcessingTime,
		P99ProcessingTime: pm.P99ProcessingTime,
	}
}
