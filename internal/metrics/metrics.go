package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection state
	RecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spielpendium_records_total",
		Help: "Number of records in the most recently saved or loaded collection.",
	})

	// Archive codec
	ArchiveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spielpendium_archive_duration_seconds",
		Help:    "Duration of archive encode/decode operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ArchiveOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spielpendium_archive_operations_total",
		Help: "Archive operations by outcome.",
	}, []string{"op", "outcome"}) // outcome: ok, corrupt_archive, not_found, validation, error

	// Catalog import
	CatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spielpendium_catalog_requests_total",
		Help: "Catalog API requests by outcome.",
	}, []string{"outcome"}) // outcome: ok, cached, generating, timeout, transient_network

	ImportItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spielpendium_import_items_total",
		Help: "Catalog items processed during imports.",
	}, []string{"status"}) // status: imported, skipped

	ImagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spielpendium_images_fetched_total",
		Help: "Images fetched during imports.",
	}, []string{"status"}) // status: ok, failed, placeholder
)

// ObserveArchive records the duration and outcome of an archive operation.
func ObserveArchive(op, outcome string, start time.Time) {
	ArchiveDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	ArchiveOps.WithLabelValues(op, outcome).Inc()
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
