// Package metrics registers the Prometheus collectors exposed by the wallet
// core on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the HTTP layer touches.
type Metrics struct {
	WalletsCreated   *prometheus.CounterVec
	PixTransfers     *prometheus.CounterVec
	PixWebhooks      *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers all collectors against reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WalletsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_created_total",
			Help: "Number of wallets created, labeled by outcome.",
		}, []string{"outcome"}),

		PixTransfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pix_transfer_total",
			Help: "Number of Pix transfer initiations, labeled by outcome.",
		}, []string{"outcome"}),

		PixWebhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pix_webhook_total",
			Help: "Number of Pix webhook deliveries processed, labeled by event type and outcome.",
		}, []string{"event_type", "outcome"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP handler latency in seconds, labeled by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status_class"}),
	}
}
