package token

import "github.com/prometheus/client_golang/prometheus"

var (
	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Tokens issued, by kind.",
		},
		[]string{"kind"},
	)

	tokensRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_revoked_total",
			Help: "Tokens revoked, by kind.",
		},
		[]string{"kind"},
	)

	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validation_failures_total",
			Help: "Rejected token validations, by kind and reason.",
		},
		[]string{"kind", "reason"},
	)
)

// RegisterMetrics adds the token counters to reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(tokensIssued, tokensRevoked, validationFailures)
}
