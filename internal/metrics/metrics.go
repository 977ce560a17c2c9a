// Package metrics exposes token issuance and access decision counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts token endpoint and protected resource outcomes.
type Recorder struct {
	registry *prometheus.Registry
	issued   *prometheus.CounterVec
	rejected *prometheus.CounterVec
	access   *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jwtauth",
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued, by client.",
		}, []string{"client"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jwtauth",
			Name:      "token_requests_rejected_total",
			Help:      "Token requests rejected, by OAuth2 error code.",
		}, []string{"error"}),
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jwtauth",
			Name:      "access_decisions_total",
			Help:      "Protected resource access decisions, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.issued, r.rejected, r.access)
	return r
}

func (r *Recorder) TokenIssued(clientID string) {
	r.issued.WithLabelValues(clientID).Inc()
}

func (r *Recorder) TokenRejected(code string) {
	r.rejected.WithLabelValues(code).Inc()
}

// Access records "allowed" or the error code of a denial.
func (r *Recorder) Access(result string) {
	r.access.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
