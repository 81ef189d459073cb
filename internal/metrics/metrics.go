// Package metrics holds the Prometheus collectors shared by the wizard,
// the reference data loaders, the slip assembler and the lab API client.
//
// All collectors are registered with the default registry on import and
// exposed by internal/infra/http under /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipbot_wizard_transitions_total",
			Help: "Wizard step transitions",
		},
		[]string{"from", "to"},
	)

	LoaderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipbot_loader_requests_total",
			Help: "Reference data loader requests by outcome (ok, error, stale)",
		},
		[]string{"loader", "outcome"},
	)

	Assembly = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipbot_assembly_total",
			Help: "Slip assembly attempts by outcome",
		},
		[]string{"outcome"},
	)

	LabAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slipbot_labapi_request_duration_seconds",
			Help:    "Lab API request latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	ActiveWizards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slipbot_active_wizards",
			Help: "Wizard sessions currently held in memory",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slipbot_http_requests_total",
			Help: "Read API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(WizardTransitions)
	prometheus.MustRegister(LoaderRequests)
	prometheus.MustRegister(Assembly)
	prometheus.MustRegister(LabAPIDuration)
	prometheus.MustRegister(ActiveWizards)
	prometheus.MustRegister(HTTPRequests)
}
