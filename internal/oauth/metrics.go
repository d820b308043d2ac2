package oauth

import "github.com/prometheus/client_golang/prometheus"

var (
	exchangeSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_oauth_exchange_success_total",
			Help: "Successful OAuth token exchanges",
		},
		[]string{"provider"},
	)
	exchangeFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_oauth_exchange_failure_total",
			Help: "Failed OAuth token exchanges",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gohome_oauth_token_valid",
			Help: "OAuth access token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the shared OAuth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		exchangeSuccess,
		exchangeFailure,
		tokenValid,
	}
}

// MarkTokenRejected flags the provider token as invalid, e.g. after a 401.
func MarkTokenRejected(provider string) {
	tokenValid.WithLabelValues(provider).Set(0)
}
