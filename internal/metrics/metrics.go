// Package metrics is used to register and expose metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "authgate"

// Webhook results.
const (
	ResultAuthenticated = "authenticated"
	ResultDenied        = "denied"
	ResultError         = "error"
)

var (
	WebhookRequestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: defaultNamespace + "_webhook_requests_total",
			Help: "Auth hook calls by method and result",
		},
		[]string{"method", "result"},
	)

	WebhookDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    defaultNamespace + "_webhook_request_duration_seconds",
			Help:    "Auth hook call latency by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	AuthorizeDecisionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: defaultNamespace + "_command_authorize_total",
			Help: "Command authorization decisions by command and outcome",
		},
		[]string{"command", "allowed"},
	)

	MetadataResolutionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: defaultNamespace + "_metadata_resolutions_total",
			Help: "Metadata load and permission resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	ResolvedCommandsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: defaultNamespace + "_resolved_commands",
			Help: "Commands in the currently served permission table",
		},
	)

	CustomCollectors = []prometheus.Collector{
		WebhookRequestsCounter,
		WebhookDurationHistogram,
		AuthorizeDecisionsCounter,
		MetadataResolutionsCounter,
		ResolvedCommandsGauge,
	}
)

type Metrics struct {
	registerer prometheus.Registerer
}

// NewMetrics returns a Metrics registering on the given registerer,
// or on the default one when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{registerer: registerer}
}

func (m *Metrics) RegisterCustomMetrics() error {
	for _, metric := range CustomCollectors {
		if err := m.registerer.Register(metric); err != nil {
			return err
		}
	}
	return nil
}
