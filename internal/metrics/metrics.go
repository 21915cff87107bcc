// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceivedTotal counts packets appended to a stream history
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_packets_received_total",
			Help: "Total number of packets appended to the stream history",
		},
		[]string{"stream", "mode"},
	)

	// PacketsEvictedTotal counts packets pushed out of a full history
	PacketsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_packets_evicted_total",
			Help: "Total number of packets evicted from the stream history",
		},
		[]string{"stream", "mode"},
	)

	// FramesDeliveredTotal counts frames handed to the caller
	FramesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_frames_delivered_total",
			Help: "Total number of frames delivered to the caller",
		},
		[]string{"stream"},
	)

	// SelectionsTotal counts selection outcomes by policy and status
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_selections_total",
			Help: "Total number of frame selections by outcome",
		},
		[]string{"stream", "policy", "status"},
	)

	// BufferOccupancy tracks how many packets the history currently holds
	BufferOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framestream_buffer_occupancy",
			Help: "Number of packets currently retained in the stream history",
		},
		[]string{"stream"},
	)

	// TickLatencySeconds measures the duration of one tick
	TickLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framestream_tick_latency_seconds",
			Help:    "Duration of one stream tick in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1us to ~1s
		},
		[]string{"stream"},
	)

	// StreamStatus tracks the current stream state
	StreamStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framestream_stream_status",
			Help: "Current status of streams (0=closed, 1=open, 2=lost)",
		},
		[]string{"stream"},
	)

	// MetadataErrorsTotal counts metadata reporter failures
	MetadataErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framestream_metadata_errors_total",
			Help: "Total number of metadata records that could not be reported",
		},
		[]string{"stream", "reporter"},
	)
)

// StreamStatusValue represents stream status as a numeric value for Prometheus gauge
const (
	StreamStatusClosed = 0
	StreamStatusOpen   = 1
	StreamStatusLost   = 2
)
