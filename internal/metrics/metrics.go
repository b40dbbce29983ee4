package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "musicbot"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "route"})

	ScraperRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scraper_requests_total",
		Help:      "Page fetches by kind (top, search) and result status.",
	}, []string{"kind", "status"})

	ScraperRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scraper_request_duration_seconds",
		Help:      "Duration of a page fetch including retries.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45},
	}, []string{"kind"})

	ScraperRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scraper_retries_total",
		Help:      "Page fetch attempts that were retried.",
	})

	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Audio deliveries by result status.",
	}, []string{"status"})

	DownloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_bytes_total",
		Help:      "Audio bytes streamed from the source site.",
	})

	DownloadQueueActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "download_queue_active",
		Help:      "Download slots currently in use.",
	})

	DownloadQueueWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "download_queue_waiting",
		Help:      "Downloads waiting for a free slot.",
	})

	DownloadQueueWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_queue_wait_seconds",
		Help:      "Time spent waiting for a download slot.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	SearchStoreEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_store_entries",
		Help:      "Search results currently held in memory.",
	})

	SearchStoreEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_store_evictions_total",
		Help:      "Expired search results removed, by reason.",
	}, []string{"reason"})

	AudioCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_cache_hits_total",
		Help:      "Deliveries served from a cached Telegram file_id.",
	})

	AudioCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_cache_misses_total",
		Help:      "Deliveries that had to stream the audio.",
	})

	BotUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bot_updates_total",
		Help:      "Telegram updates by type.",
	}, []string{"type"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScraperRequestsTotal,
		ScraperRequestDuration,
		ScraperRetriesTotal,
		DownloadsTotal,
		DownloadBytesTotal,
		DownloadQueueActive,
		DownloadQueueWaiting,
		DownloadQueueWait,
		SearchStoreEntries,
		SearchStoreEvictionsTotal,
		AudioCacheHitsTotal,
		AudioCacheMissesTotal,
		BotUpdatesTotal,
	)
}
