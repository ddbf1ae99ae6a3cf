package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "Total number of pages successfully fetched",
	})
	PagesIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_indexed_total",
		Help: "Pages merged into the index (the crawl counter)",
	})
	BytesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_bytes_fetched_total",
		Help: "Total bytes downloaded",
	})
	FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_fetch_errors_total",
		Help: "Page fetches that failed after all retries",
	})
	RobotsDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_robots_denied_total",
		Help: "URLs discarded by the politeness checker",
	})
	NoindexSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_noindex_skipped_total",
		Help: "Fetched pages dropped because they carry a noindex marker",
	})
	BodiesTruncated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_bodies_truncated_total",
		Help: "Page bodies cut at the size cap",
	})
	DuplicateClaims = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_duplicate_claims_total",
		Help: "Popped URLs that were already visited",
	})
	FrontierSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_frontier_size",
		Help: "URLs waiting in the frontier",
	})
)

func init() {
	prometheus.MustRegister(
		PagesFetched,
		PagesIndexed,
		BytesFetched,
		FetchErrors,
		RobotsDenied,
		NoindexSkipped,
		DuplicateClaims,
		BodiesTruncated,
		FrontierSize,
	)
}
