package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gohome_rate_limit_last_status_code",
			Help: "Last HTTP status code returned by the provider",
		},
		[]string{"provider"},
	)
	responsesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_provider_responses_total",
			Help: "Provider responses by HTTP status code",
		},
		[]string{"provider", "code"},
	)
	throttledCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_rate_limit_throttled_total",
			Help: "Responses where the provider signalled throttling (429 or 503)",
		},
		[]string{"provider"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gohome_rate_limit_retry_after_seconds",
			Help: "Pause requested by the last provider Retry-After header",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors exposes the shared provider response collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		lastStatusGauge,
		responsesCounter,
		throttledCounter,
		retryAfterGauge,
	}
}
