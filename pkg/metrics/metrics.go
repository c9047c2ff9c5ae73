package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracing metrics
	RaysTraced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_rays_traced_total",
			Help: "Total number of rays handed to adapters",
		},
	)

	RaysEscaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_rays_escaped_total",
			Help: "Total number of rays that left the scene without a hit",
		},
	)

	ShadowContributions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_shadow_contributions_total",
			Help: "Total number of shadow rays that reached their light",
		},
	)

	SelectionRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_selection_rounds_total",
			Help: "Total number of queue selection rounds",
		},
	)

	// Transfer metrics
	RaysSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_rays_sent_total",
			Help: "Total number of rays shipped to peers by destination rank",
		},
		[]string{"dst"},
	)

	RaysReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_rays_received_total",
			Help: "Total number of rays received from peers",
		},
	)

	PendingRays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_pending_rays",
			Help: "Rays sent to peers and not yet acknowledged",
		},
	)

	// Termination metrics
	VoteRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_vote_rounds_total",
			Help: "Total number of termination vote rounds by outcome",
		},
		[]string{"outcome"},
	)

	// Frame metrics
	FrameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_frame_duration_seconds",
			Help:    "Wall time per frame in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AdapterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_adapter_duration_seconds",
			Help:    "Time spent inside adapter trace calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RaysTraced)
	prometheus.MustRegister(RaysEscaped)
	prometheus.MustRegister(ShadowContributions)
	prometheus.MustRegister(SelectionRounds)
	prometheus.MustRegister(RaysSent)
	prometheus.MustRegister(RaysReceived)
	prometheus.MustRegister(PendingRays)
	prometheus.MustRegister(VoteRounds)
	prometheus.MustRegister(FrameDuration)
	prometheus.MustRegister(AdapterDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
