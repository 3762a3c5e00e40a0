package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every crossway collector plus the Go runtime and process collectors.
var Registry = prometheus.NewRegistry()

var (
	// DaemonState is 1 for the daemon's current state and 0 for the others.
	DaemonState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossway_daemon_state",
			Help: "Current client daemon state (1 for the active state).",
		},
		[]string{"state"},
	)

	// AccessGrantedTotal counts granted crossings per coordination mode.
	AccessGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossway_access_granted_total",
			Help: "Total number of intersection access grants obtained.",
		},
		[]string{"mode"}, // adhoc / centralized
	)

	// AccessWaitSeconds observes the time from the access request to the grant.
	AccessWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crossway_access_wait_seconds",
			Help:    "Time between requesting access and obtaining it.",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 7.5, 10, 15, 30, 60},
		},
		[]string{"mode"},
	)

	// BeaconsTotal counts beacons by direction.
	BeaconsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossway_beacons_total",
			Help: "Beacons sent, received and dropped.",
		},
		[]string{"direction"}, // sent / received / dropped
	)

	// Neighbors is the size of the neighbor table after the last sweep.
	Neighbors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossway_neighbors",
			Help: "Number of live entries in the neighbor table.",
		},
	)

	// NeighborEvictionsTotal counts neighbors dropped for silence.
	NeighborEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crossway_neighbor_evictions_total",
			Help: "Neighbors evicted after missing too many beacons.",
		},
	)

	// RequestSendsTotal counts centralized access request sends.
	RequestSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossway_request_sends_total",
			Help: "Access request sends to the arbiter.",
		},
		[]string{"kind", "status"}, // kind: initial/retry, status: success/failed
	)

	// ArbiterOccupancy is the number of vehicles the arbiter believes are inside.
	ArbiterOccupancy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossway_arbiter_occupancy",
			Help: "Vehicles currently granted and not yet exited.",
		},
	)

	// ArbiterQueueLength is the number of vehicles waiting for a grant.
	ArbiterQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossway_arbiter_queue_length",
			Help: "Vehicles waiting for an arbiter grant.",
		},
	)

	// ArbiterOccupancySeconds observes grant-to-exit time per vehicle.
	ArbiterOccupancySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crossway_arbiter_occupancy_seconds",
			Help:    "Time between an arbiter grant and the vehicle's exit.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		DaemonState,
		AccessGrantedTotal,
		AccessWaitSeconds,
		BeaconsTotal,
		Neighbors,
		NeighborEvictionsTotal,
		RequestSendsTotal,
		ArbiterOccupancy,
		ArbiterQueueLength,
		ArbiterOccupancySeconds,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
