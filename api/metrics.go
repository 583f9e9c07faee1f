package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertAuthFailureSpike AlertType = "auth_failure_spike"
	AlertLookupMissSpike  AlertType = "lookup_miss_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	// Sliding window for rejected credentials.
	authFailures  []time.Time
	authWindow    time.Duration
	authThreshold int

	// Sliding window for token requests hitting unknown accounts.
	lookupMisses  []time.Time
	missWindow    time.Duration
	missThreshold int

	alertFn AlertFunc
}

const (
	defaultAuthFailureWindow    = 1 * time.Minute
	defaultAuthFailureThreshold = 50
	defaultLookupMissWindow     = 5 * time.Minute
	defaultLookupMissThreshold  = 100
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		authWindow:    defaultAuthFailureWindow,
		authThreshold: defaultAuthFailureThreshold,
		missWindow:    defaultLookupMissWindow,
		missThreshold: defaultLookupMissThreshold,
		alertFn:       alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditAuthFailed:
		m.recordAuthFailure()
	case AuditAssignmentMissing:
		m.recordLookupMiss()
	}
}

func (m *metricsCollector) recordAuthFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.authFailures = append(m.authFailures, now)
	m.authFailures = trimWindow(m.authFailures, now, m.authWindow)

	if len(m.authFailures) >= m.authThreshold {
		m.alertFn(AlertEvent{
			Type:      AlertAuthFailureSpike,
			Message:   "credential rejection rate exceeds threshold",
			Count:     len(m.authFailures),
			Threshold: m.authThreshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		m.authFailures = m.authFailures[:0]
	}
}

func (m *metricsCollector) recordLookupMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.lookupMisses = append(m.lookupMisses, now)
	m.lookupMisses = trimWindow(m.lookupMisses, now, m.missWindow)

	if len(m.lookupMisses) >= m.missThreshold {
		m.alertFn(AlertEvent{
			Type:      AlertLookupMissSpike,
			Message:   "unknown account rate exceeds threshold",
			Count:     len(m.lookupMisses),
			Threshold: m.missThreshold,
			Timestamp: now,
		})
		m.lookupMisses = m.lookupMisses[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
