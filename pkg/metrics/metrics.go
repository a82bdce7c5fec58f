// Package metrics provides Prometheus metrics for the publisher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceUpdatesTotal is a counter of the total number of cached price updates.
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of price updates received from sources",
		},
		[]string{"source", "symbol"},
	)

	// SourceFetchErrorsTotal counts polls that failed after all retries.
	SourceFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of failed source polls",
		},
		[]string{"source"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "type"},
	)

	// SourceLastUpdate is a gauge of the last update timestamp from sources.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last update from source",
		},
		[]string{"source"},
	)

	// PriceAggregationDuration is a histogram of price mixing duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: []float64{.00001, .0001, .001, .01, .1},
		},
		[]string{"method"},
	)

	// HTTPRequestsTotal is a counter of status API requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of status API latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// MixedPrice is the last mixed price per symbol, before exponent scaling.
	MixedPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mixed_price",
			Help: "Last mixed price for a symbol",
		},
		[]string{"symbol"},
	)

	// PublishTotal counts update_price attempts by outcome.
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_total",
			Help: "Total number of price publish attempts",
		},
		[]string{"symbol", "status"},
	)

	// RPCRequestsTotal counts JSON-RPC requests by method and outcome.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of JSON-RPC requests sent to the agent",
		},
		[]string{"method", "status"},
	)

	// RPCReconnectsTotal counts connection attempts after the first.
	RPCReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpc_reconnects_total",
			Help: "Total number of agent reconnection attempts",
		},
	)

	// RPCConnected is 1 while the agent session is connected.
	RPCConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpc_connected",
			Help: "Agent session connection state (1=connected, 0=disconnected)",
		},
	)

	// SubscriptionsActive is the number of price schedule subscriptions in the current session.
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Number of active price schedule subscriptions",
		},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	prometheus.MustRegister(
		PriceUpdatesTotal,
		SourceFetchErrorsTotal,
		SourceHealth,
		SourceLastUpdate,
		PriceAggregationDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MixedPrice,
		PublishTotal,
		RPCRequestsTotal,
		RPCReconnectsTotal,
		RPCConnected,
		SubscriptionsActive,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceUpdate records a price update from a source.
func RecordSourceUpdate(source, symbol string) {
	PriceUpdatesTotal.WithLabelValues(source, symbol).Inc()
	SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, sourceType string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, sourceType).Set(val)
}

// RecordFetchError records a poll that failed after retries.
func RecordFetchError(source string) {
	SourceFetchErrorsTotal.WithLabelValues(source).Inc()
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records a status API request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordMixedPrice stores the latest mixed price for a symbol.
func RecordMixedPrice(symbol string, price float64) {
	MixedPrice.WithLabelValues(symbol).Set(price)
}

// RecordPublish records an update_price attempt.
func RecordPublish(symbol, status string) {
	PublishTotal.WithLabelValues(symbol, status).Inc()
}

// RecordRPCRequest records a JSON-RPC request outcome.
func RecordRPCRequest(method, status string) {
	RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordReconnect records a reconnection attempt.
func RecordReconnect() {
	RPCReconnectsTotal.Inc()
}

// RecordConnected records the session connection state.
func RecordConnected(connected bool) {
	if connected {
		RPCConnected.Set(1)
		return
	}
	RPCConnected.Set(0)
}

// RecordSubscriptions records the size of the current subscription map.
func RecordSubscriptions(n int) {
	SubscriptionsActive.Set(float64(n))
}
