// Package telemetry holds the Prometheus collectors and tracing setup.
package telemetry

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	NodeReconnects      *prometheus.CounterVec
	NodeMessages        *prometheus.CounterVec
	NodeBuffered        *prometheus.GaugeVec
	NodeConnected       *prometheus.GaugeVec
	NodeLoad            *prometheus.GaugeVec
	Players             prometheus.Gauge
	TrackEvents         *prometheus.CounterVec
	VoiceUpdates        *prometheus.CounterVec
	FetchDuration       prometheus.Observer
	FetchFailures       prometheus.Counter
	FetchFailuresByCode *prometheus.CounterVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		NodeReconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorilink_node_reconnects_total", Help: "Reconnect attempts per node"}, []string{"node"})
		NodeMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorilink_node_messages_total", Help: "Inbound node messages by op"}, []string{"node", "op"})
		NodeBuffered = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "gorilink_node_buffered_commands", Help: "Commands waiting for the node to connect"}, []string{"node"})
		NodeConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "gorilink_node_connected", Help: "Node connected=1 disconnected=0"}, []string{"node"})
		NodeLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "gorilink_node_load", Help: "Last reported system load per core, percent"}, []string{"node"})
		Players = promauto.NewGauge(prometheus.GaugeOpts{Name: "gorilink_players", Help: "Active players"})
		TrackEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorilink_track_events_total", Help: "Player events by type"}, []string{"type"})
		VoiceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorilink_voice_updates_total", Help: "voiceUpdate commands sent per node"}, []string{"node"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "gorilink_track_fetch_duration_seconds", Help: "Track load request duration seconds", Buckets: prometheus.DefBuckets})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "gorilink_track_fetch_failures_total", Help: "Failed track load requests"})
		FetchFailuresByCode = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gorilink_track_fetch_failures_by_status_total", Help: "Failed track load requests by HTTP status"}, []string{"status"})
	})
}

func SetNodeConnected(node string, connected bool) {
	if NodeConnected == nil {
		return
	}
	if connected {
		NodeConnected.WithLabelValues(node).Set(1)
	} else {
		NodeConnected.WithLabelValues(node).Set(0)
	}
}

func IncNodeReconnect(node string) {
	if NodeReconnects != nil {
		NodeReconnects.WithLabelValues(node).Inc()
	}
}

func IncNodeMessage(node, op string) {
	if NodeMessages != nil {
		NodeMessages.WithLabelValues(node, op).Inc()
	}
}

func SetNodeBuffered(node string, n int) {
	if NodeBuffered != nil {
		NodeBuffered.WithLabelValues(node).Set(float64(n))
	}
}

func SetNodeLoad(node string, load float64) {
	if NodeLoad != nil {
		NodeLoad.WithLabelValues(node).Set(load)
	}
}

func SetPlayers(n int) {
	if Players != nil {
		Players.Set(float64(n))
	}
}

func IncTrackEvent(eventType string) {
	if TrackEvents != nil {
		TrackEvents.WithLabelValues(eventType).Inc()
	}
}

func IncVoiceUpdate(node string) {
	if VoiceUpdates != nil {
		VoiceUpdates.WithLabelValues(node).Inc()
	}
}

// ObserveFetch records one track load. status is the HTTP status, 0 when no response arrived.
func ObserveFetch(d time.Duration, status int, failed bool) {
	if FetchDuration != nil {
		FetchDuration.Observe(d.Seconds())
	}
	if !failed {
		return
	}
	if FetchFailures != nil {
		FetchFailures.Inc()
	}
	if FetchFailuresByCode != nil {
		FetchFailuresByCode.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
