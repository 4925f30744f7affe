// Package metrics declares the Prometheus instruments shared across the
// simulator and the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_messages_total",
			Help: "AIS messages seen by the ingestion pipeline, by outcome (valid, invalid, malformed, duplicate)",
		},
		[]string{"outcome"},
	)

	IngestConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ais_ingest_connection_state",
			Help: "Ingestion client state: 0 disconnected, 1 connecting, 2 connected",
		},
	)

	IngestReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ais_ingest_reconnects_total",
			Help: "Times the ingestion client dropped its connection and backed off",
		},
	)

	// Persistence

	BufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ais_buffer_depth",
			Help: "Records waiting in the persistence buffer",
		},
	)

	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_flushes_total",
			Help: "Persistence buffer flush attempts, by result (ok, error)",
		},
		[]string{"result"},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ais_flush_duration_seconds",
			Help:    "Time spent writing one buffer batch to storage",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// Simulator and bus

	SimulatorTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ais_simulator_ticks_total",
			Help: "Simulation ticks executed",
		},
	)

	SimulatorActiveVessels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ais_simulator_active_vessels",
			Help: "Simulated vessels that have not yet completed their route",
		},
	)

	BusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ais_bus_subscribers",
			Help: "Connected message bus subscribers",
		},
	)

	BusBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ais_bus_broadcasts_total",
			Help: "Messages broadcast on the bus",
		},
	)

	BusDroppedSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ais_bus_dropped_subscribers_total",
			Help: "Subscribers removed after a failed delivery",
		},
	)

	// Live picture

	TrackedVessels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ais_tracked_vessels",
			Help: "Vessels held in the in-memory live picture",
		},
	)
)
