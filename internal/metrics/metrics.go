// Package metrics holds the Prometheus instrumentation. Observe helpers are
// no-ops until Init has run, so packages can call them from tests freely.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricPrefix = "botwatch_"

const (
	ResultUp    = "up"
	ResultDown  = "down"
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	registerOnce sync.Once

	checksTotal      *prometheus.CounterVec
	checkLatency     *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	notifyTotal      *prometheus.CounterVec
	keepaliveTotal   *prometheus.CounterVec
	gatewayReconnect prometheus.Counter
	targetUp         prometheus.Gauge
	httpRequests     *prometheus.CounterVec
)

// Init registers collectors on the default registry. db, when non-nil, backs
// a gauge with the number of stored check records.
func Init(db *sql.DB, log *zap.Logger) {
	registerOnce.Do(func() {
		checksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "checks_total",
				Help: "Completed probe cycles by result and cause",
			},
			[]string{"result", "cause"},
		)
		checkLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "check_duration_seconds",
				Help:    "Probe cycle duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"result"},
		)
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Status transitions by kind",
			},
			[]string{"kind"},
		)
		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Owner notifications by result",
			},
			[]string{"result"},
		)
		keepaliveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "keepalive_pings_total",
				Help: "Keepalive pings by result",
			},
			[]string{"result"},
		)
		gatewayReconnect = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_reconnects_total",
				Help: "Chat relay reconnect attempts",
			},
		)
		targetUp = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "target_up",
				Help: "1 when the monitored bot answered the last probe, 0 when not, -1 when unknown",
			},
		)
		targetUp.Set(-1)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "code"},
		)

		prometheus.MustRegister(
			checksTotal,
			checkLatency,
			transitionsTotal,
			notifyTotal,
			keepaliveTotal,
			gatewayReconnect,
			targetUp,
			httpRequests,
		)

		if db != nil {
			registerDBMetrics(db, log)
		}
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveCheck(up bool, cause string, d time.Duration) {
	result := ResultDown
	if up {
		result = ResultUp
	}
	if cause == "" {
		cause = "none"
	}
	if checksTotal != nil {
		checksTotal.WithLabelValues(result, cause).Inc()
	}
	if checkLatency != nil {
		checkLatency.WithLabelValues(result).Observe(d.Seconds())
	}
	if targetUp != nil {
		if up {
			targetUp.Set(1)
		} else {
			targetUp.Set(0)
		}
	}
}

func IncTransition(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(kind).Inc()
	}
}

func IncNotify(result string) {
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}

func IncKeepalive(result string) {
	if keepaliveTotal != nil {
		keepaliveTotal.WithLabelValues(result).Inc()
	}
}

func IncGatewayReconnect() {
	if gatewayReconnect != nil {
		gatewayReconnect.Inc()
	}
}

func IncHTTPRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}
