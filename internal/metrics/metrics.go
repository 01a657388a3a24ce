// Package metrics exposes Prometheus instrumentation for the translation
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for voxbridge.
type Metrics struct {
	// Capture / outbound metrics
	ChunksSent      prometheus.Counter
	BytesSent       prometheus.Counter
	OutboundDropped prometheus.Counter

	// Inbound metrics
	ChunksReceived prometheus.Counter
	BytesReceived  prometheus.Counter
	DecodeFailures prometheus.Counter

	// Playback metrics
	ActiveSegments prometheus.Gauge
	Interruptions  prometheus.Counter

	// Session metrics
	SessionState    prometheus.Gauge
	TranscriptItems *prometheus.CounterVec
}

// New creates and registers all voxbridge metrics on reg. Pass nil to use
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_chunks_sent_total",
			Help: "Total number of audio chunks sent to the live session",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_bytes_sent_total",
			Help: "Total PCM bytes sent to the live session",
		}),
		OutboundDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_outbound_dropped_total",
			Help: "Outbound chunks dropped because the send queue was full",
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_chunks_received_total",
			Help: "Total number of audio chunks received from the live session",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_bytes_received_total",
			Help: "Total PCM bytes received from the live session",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_decode_failures_total",
			Help: "Inbound audio chunks dropped due to decode errors",
		}),
		ActiveSegments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxbridge_playback_active_segments",
			Help: "Audio segments currently scheduled or playing",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_interruptions_total",
			Help: "Barge-in interruptions signaled by the remote session",
		}),
		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxbridge_session_state",
			Help: "Connection state (0=disconnected 1=connecting 2=connected 3=error)",
		}),
		TranscriptItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxbridge_transcript_items_total",
			Help: "Transcript items appended, by sender",
		}, []string{"sender"}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr. It returns the
// server so the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
