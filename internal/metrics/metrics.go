package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_cache_lookups_total",
		Help: "Cache policy decisions by result (hit, miss, forced)",
	}, []string{"result"})
	UpstreamFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialmetrics_upstream_fetches_total",
		Help: "Upstream profile fetches actually issued",
	})
	SharedFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialmetrics_shared_fetches_total",
		Help: "Requests that joined an in-flight fetch instead of issuing their own",
	})
	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_fetch_errors_total",
		Help: "Failed fetch-aggregate-write cycles by error kind",
	}, []string{"kind"})
	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "socialmetrics_fetch_duration_seconds",
		Help:    "Duration of fetch-aggregate-write cycles",
		Buckets: prometheus.DefBuckets,
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_api_retries_total",
		Help: "Total upstream API retry attempts",
	}, []string{"endpoint"})
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_store_errors_total",
		Help: "Snapshot store failures by operation",
	}, []string{"op"})
	RefreshRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialmetrics_refresh_runs_total",
		Help: "Tracked-profile refresh runs",
	})
	RefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialmetrics_refresh_errors_total",
		Help: "Tracked profiles that failed to refresh",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"cmd"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialmetrics_command_errors_total",
		Help: "CLI command failures",
	}, []string{"cmd"})
)

func init() {
	prometheus.MustRegister(CacheLookups, UpstreamFetches, SharedFetches, FetchErrors, FetchDuration,
		APIRetries, StoreErrors, RefreshRuns, RefreshErrors, CommandRuns, CommandErrors)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// StartServer starts a standalone metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveFetchDuration records a fetch cycle duration.
func ObserveFetchDuration(start time.Time) { FetchDuration.Observe(time.Since(start).Seconds()) }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncCacheLookup counts a cache decision.
func IncCacheLookup(result string) { CacheLookups.WithLabelValues(result).Inc() }

// IncFetchError counts a failed fetch cycle.
func IncFetchError(kind string) { FetchErrors.WithLabelValues(kind).Inc() }

// IncStoreError counts a store failure.
func IncStoreError(op string) { StoreErrors.WithLabelValues(op).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
