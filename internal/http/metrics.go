package http

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	ScansTotal            *prometheus.CounterVec
	LinksTotal            *prometheus.CounterVec
	PlaybackCommandsTotal *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	MusicBrainzBackoff    prometheus.Gauge
	QueuePending          prometheus.Gauge
	CatalogSize           prometheus.Gauge
}

// NewMetrics builds the metric set on its own registry so multiple servers
// (and tests) never collide on the global one.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discobase_scans_total",
				Help: "Total number of barcode scans submitted",
			},
			[]string{"status"},
		),
		LinksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discobase_links_total",
				Help: "Total number of album link resolutions",
			},
			[]string{"confidence"},
		),
		PlaybackCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discobase_playback_commands_total",
				Help: "Total number of playback commands dispatched",
			},
			[]string{"command", "status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discobase_errors_total",
				Help: "Total number of errors by component",
			},
			[]string{"component"},
		),
		MusicBrainzBackoff: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "discobase_musicbrainz_backoff_seconds",
				Help: "Current adaptive delay between MusicBrainz requests",
			},
		),
		QueuePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "discobase_queue_pending",
				Help: "Number of barcodes waiting in the scan queue",
			},
		),
		CatalogSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "discobase_catalog_size",
				Help: "Number of albums in the catalog",
			},
		),
	}

	m.registry.MustRegister(
		m.ScansTotal,
		m.LinksTotal,
		m.PlaybackCommandsTotal,
		m.ErrorsTotal,
		m.MusicBrainzBackoff,
		m.QueuePending,
		m.CatalogSize,
	)
	return m
}

func (m *Metrics) RecordScan(status string) {
	m.ScansTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordLink(confidence string) {
	m.LinksTotal.WithLabelValues(confidence).Inc()
}

func (m *Metrics) RecordPlaybackCommand(command, status string) {
	m.PlaybackCommandsTotal.WithLabelValues(command, status).Inc()
}

func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}
