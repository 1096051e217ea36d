package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics collects counters for the query pipeline and the HTTP surface
type Metrics struct {
	// Upstream API metrics
	apiRequests     atomic.Int64
	apiErrors       atomic.Int64
	apiLatencySum   atomic.Int64
	apiLatencyCount atomic.Int64
	rowsDropped     atomic.Int64
	truncations     atomic.Int64

	// Refresh metrics
	refreshes         atomic.Int64
	refreshFailures   atomic.Int64
	featuresPublished atomic.Int64
	lastFeatureCount  atomic.Int64

	// Session metrics
	activeSessions atomic.Int64
	totalSessions  atomic.Int64

	// HTTP metrics
	httpRequests atomic.Int64
	httpErrors   atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// API metrics methods

func (m *Metrics) IncrementAPIRequests() {
	m.apiRequests.Add(1)
}

func (m *Metrics) IncrementAPIErrors() {
	m.apiErrors.Add(1)
}

func (m *Metrics) RecordAPILatency(latencyMs int64) {
	m.apiLatencySum.Add(latencyMs)
	m.apiLatencyCount.Add(1)
}

func (m *Metrics) AddRowsDropped(n int) {
	m.rowsDropped.Add(int64(n))
}

func (m *Metrics) IncrementTruncations() {
	m.truncations.Add(1)
}

func (m *Metrics) GetAPIRequests() int64 {
	return m.apiRequests.Load()
}

func (m *Metrics) GetAPIErrors() int64 {
	return m.apiErrors.Load()
}

func (m *Metrics) GetRowsDropped() int64 {
	return m.rowsDropped.Load()
}

func (m *Metrics) GetAPIAverageLatency() float64 {
	count := m.apiLatencyCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.apiLatencySum.Load()) / float64(count)
}

// Refresh metrics methods

// RecordRefresh counts one published frame and how many features it carried.
func (m *Metrics) RecordRefresh(features int, failed bool) {
	m.refreshes.Add(1)
	if failed {
		m.refreshFailures.Add(1)
	}
	m.featuresPublished.Add(int64(features))
	m.lastFeatureCount.Store(int64(features))
}

func (m *Metrics) GetRefreshes() int64 {
	return m.refreshes.Load()
}

func (m *Metrics) GetRefreshFailures() int64 {
	return m.refreshFailures.Load()
}

func (m *Metrics) GetFeaturesPublished() int64 {
	return m.featuresPublished.Load()
}

// Session metrics methods

func (m *Metrics) SessionOpened() {
	m.activeSessions.Add(1)
	m.totalSessions.Add(1)
}

func (m *Metrics) SessionClosed() {
	m.activeSessions.Add(-1)
}

func (m *Metrics) GetActiveSessions() int64 {
	return m.activeSessions.Load()
}

// HTTP metrics methods

func (m *Metrics) IncrementHTTPRequests() {
	m.httpRequests.Add(1)
}

func (m *Metrics) IncrementHTTPErrors() {
	m.httpErrors.Add(1)
}

func (m *Metrics) GetHTTPRequests() int64 {
	return m.httpRequests.Load()
}

func (m *Metrics) GetHTTPErrors() int64 {
	return m.httpErrors.Load()
}

func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.startTime)
}

// Snapshot represents a point-in-time snapshot of all metrics
type Snapshot struct {
	APIRequests   int64   `json:"api_requests"`
	APIErrors     int64   `json:"api_errors"`
	APIAvgLatency float64 `json:"api_avg_latency_ms"`
	RowsDropped   int64   `json:"rows_dropped"`
	Truncations   int64   `json:"truncations"`

	Refreshes         int64 `json:"refreshes"`
	RefreshFailures   int64 `json:"refresh_failures"`
	FeaturesPublished int64 `json:"features_published"`
	LastFeatureCount  int64 `json:"last_feature_count"`

	ActiveSessions int64 `json:"active_sessions"`
	TotalSessions  int64 `json:"total_sessions"`

	HTTPRequests int64 `json:"http_requests"`
	HTTPErrors   int64 `json:"http_errors"`

	UptimeSeconds int64 `json:"uptime_seconds"`
	Timestamp     int64 `json:"timestamp"`
}

// GetSnapshot returns a snapshot of all current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	return &Snapshot{
		APIRequests:       m.GetAPIRequests(),
		APIErrors:         m.GetAPIErrors(),
		APIAvgLatency:     m.GetAPIAverageLatency(),
		RowsDropped:       m.GetRowsDropped(),
		Truncations:       m.truncations.Load(),
		Refreshes:         m.GetRefreshes(),
		RefreshFailures:   m.GetRefreshFailures(),
		FeaturesPublished: m.GetFeaturesPublished(),
		LastFeatureCount:  m.lastFeatureCount.Load(),
		ActiveSessions:    m.GetActiveSessions(),
		TotalSessions:     m.totalSessions.Load(),
		HTTPRequests:      m.GetHTTPRequests(),
		HTTPErrors:        m.GetHTTPErrors(),
		UptimeSeconds:     int64(m.GetUptime().Seconds()),
		Timestamp:         time.Now().Unix(),
	}
}
