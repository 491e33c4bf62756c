package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertCSRFRejectionSpike AlertType = "csrf_rejection_spike"
	AlertRateLimitSpike     AlertType = "rate_limit_spike"
	AlertCounterStoreDown   AlertType = "counter_store_down"
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

func chainAlerts(fns ...AlertFunc) AlertFunc {
	return func(e AlertEvent) {
		for _, fn := range fns {
			if fn != nil {
				fn(e)
			}
		}
	}
}

// spikeWindow is a sliding window counter that fires once per spike.
type spikeWindow struct {
	alert     AlertType
	message   string
	window    time.Duration
	threshold int
	times     []time.Time
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu      sync.Mutex
	windows map[AuditEvent]*spikeWindow
	now     func() time.Time
	alertFn AlertFunc
}

const (
	defaultCSRFRejectionWindow    = 1 * time.Minute
	defaultCSRFRejectionThreshold = 50
	defaultRateLimitWindow        = 1 * time.Minute
	defaultRateLimitThreshold     = 200
	defaultFailOpenWindow         = 5 * time.Minute
	defaultFailOpenThreshold      = 10
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		windows: map[AuditEvent]*spikeWindow{
			AuditCSRFRejected: {
				alert:     AlertCSRFRejectionSpike,
				message:   "CSRF rejection rate exceeds threshold",
				window:    defaultCSRFRejectionWindow,
				threshold: defaultCSRFRejectionThreshold,
			},
			AuditRateLimited: {
				alert:     AlertRateLimitSpike,
				message:   "rate-limited request rate exceeds threshold",
				window:    defaultRateLimitWindow,
				threshold: defaultRateLimitThreshold,
			},
			AuditRateLimitFailOpen: {
				alert:     AlertCounterStoreDown,
				message:   "rate-limit counter store is failing; requests are unlimited",
				window:    defaultFailOpenWindow,
				threshold: defaultFailOpenThreshold,
			},
		},
		now:     time.Now,
		alertFn: alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[event]
	if !ok {
		return
	}
	now := m.now()
	w.times = append(w.times, now)
	w.times = trimWindow(w.times, now, w.window)

	if len(w.times) >= w.threshold {
		m.alertFn(AlertEvent{
			Type:      w.alert,
			Message:   w.message,
			Count:     len(w.times),
			Threshold: w.threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		w.times = w.times[:0]
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
