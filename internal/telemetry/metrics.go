// Package telemetry provides application-level observability for the storefront.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<AB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Loader download and download token counters
//   - License key redemption counters
//   - Entitlement decision counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/products/:name)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening, or use an exported var directly:
//
//	telemetry.LoaderDownloadsTotal.WithLabelValues(productName).Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL, to prevent
// unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Download and redemption metrics.
//
// LoaderDownloadsTotal is a CounterVec with label {product} incremented once per
// consumed download token, i.e. per actual binary fetch.
//
// DownloadTokensIssuedTotal is a CounterVec with labels {product, reused}. The
// reused label distinguishes freshly minted tokens from live tokens handed back
// a second time, which is useful when diagnosing clients stuck in retry loops.
//
// KeyRedemptionsTotal is a CounterVec with labels {product, result}. The result
// label is one of "ok", "used", "expired", "not_found".
//
// Example PromQL queries:
//   - Downloads by product:       sum by (product) (rate(loader_downloads_total[1h]))
//   - Redemption failure ratio:   sum(rate(key_redemptions_total{result!="ok"}[1h])) / sum(rate(key_redemptions_total[1h]))
var (
	LoaderDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_downloads_total",
			Help: "Total number of loader binary downloads, by product.",
		},
		[]string{"product"},
	)

	DownloadTokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "download_tokens_issued_total",
			Help: "Total number of download tokens handed to clients, by product and whether an existing live token was reused.",
		},
		[]string{"product", "reused"},
	)

	KeyRedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_redemptions_total",
			Help: "Total number of license key redemption attempts, by product and result.",
		},
		[]string{"product", "result"},
	)
)

// EntitlementDecisionsTotal is a CounterVec with labels {reason, allowed}
// incremented once per entitlement resolution. Sudden growth of a single denial
// reason (e.g. FROZEN) usually means a product flag was flipped.
//
// Example PromQL queries:
//   - Denials by reason:  sum by (reason) (rate(entitlement_decisions_total{allowed="false"}[15m]))
var EntitlementDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Total number of entitlement decisions, by reason and outcome.",
	},
	[]string{"reason", "allowed"},
)

// ExpiredTokensSweptTotal is a plain Counter incremented by the token sweeper
// job with the number of expired download tokens it removed.
var ExpiredTokensSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "expired_tokens_swept_total",
		Help: "Total number of expired download tokens removed by the sweeper job.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <AB_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
