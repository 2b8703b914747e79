package uploader

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricShardsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidshub_uploader_shards_generated_total",
			Help: "Number of shards generated",
		},
		[]string{"dataset"},
	)
	metricShardsLastTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bidshub_uploader_shards_generated_last_unix_seconds",
			Help: "UNIX timestamp of last generated shard",
		},
		[]string{"dataset"},
	)
	metricShardsLastSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bidshub_uploader_shards_generated_last_size_bytes",
			Help: "Size of last generated shard in bytes",
		},
		[]string{"dataset"},
	)
	metricStoreFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidshub_uploader_store_failed_attempts_total",
			Help: "Number of failed store attempts",
		},
		[]string{"dataset"},
	)
	metricStoreFailedPermanently = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidshub_uploader_store_failed_permanently_total",
			Help: "Number of permanent store failures",
		},
		[]string{"dataset"},
	)
	metricStoreCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidshub_uploader_store_calls_total",
			Help: "Number of blob store calls",
		},
	)
	metricStoreBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidshub_uploader_store_bytes_total",
			Help: "Number of bytes stored successfully",
		},
	)
)

func init() {
	prometheus.MustRegister(metricShardsGenerated)
	prometheus.MustRegister(metricShardsLastTimestamp)
	prometheus.MustRegister(metricShardsLastSize)
	prometheus.MustRegister(metricStoreFailed)
	prometheus.MustRegister(metricStoreFailedPermanently)
	prometheus.MustRegister(metricStoreCalls)
	prometheus.MustRegister(metricStoreBytes)
}
