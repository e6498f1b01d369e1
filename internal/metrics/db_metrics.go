package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func registerDBMetrics(db *sql.DB, log *zap.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "stored_checks",
			Help: "Check records currently stored",
		},
		func() float64 {
			return queryCount(db, log, "SELECT COUNT(*) FROM checks")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "open_incidents",
			Help: "Incidents without an end timestamp",
		},
		func() float64 {
			return queryCount(db, log, "SELECT COUNT(*) FROM incidents WHERE end_ts IS NULL")
		},
	))
}

func queryCount(db *sql.DB, log *zap.Logger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if log != nil {
			log.Warn("metrics_query_failed", zap.String("query", query), zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
