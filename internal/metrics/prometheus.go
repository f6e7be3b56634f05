package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/pkg/logger"
)

var (
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recon_operation_duration_seconds",
			Help:    "Reconciliation, delta and ingestion operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	OperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_operation_total",
			Help: "Total operations by outcome",
		},
		[]string{"operation", "status"},
	)

	RowsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_rows_ingested_total",
			Help: "Total rows stored by ingestion",
		},
		[]string{"source"},
	)

	SnapshotsPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_snapshots_purged_total",
			Help: "Total snapshots removed by retention or reset",
		},
		[]string{"source"},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recon_websocket_clients",
			Help: "Connected event stream clients",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(OperationDuration)
		prometheus.MustRegister(OperationTotal)
		prometheus.MustRegister(RowsIngested)
		prometheus.MustRegister(SnapshotsPurged)
		prometheus.MustRegister(WebsocketClients)
	})
}

// Observer records engine timings into the collectors above. It also
// satisfies the ingestion row and purge recorder.
type Observer struct{}

func (Observer) Observe(operation string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	OperationTotal.WithLabelValues(operation, status).Inc()

	logger.Debug("Operation finished",
		zap.String("operation", operation),
		zap.Duration("elapsed", elapsed),
		zap.String("status", status),
	)
}

func (Observer) RowsIngested(source models.Source, n int) {
	RowsIngested.WithLabelValues(string(source)).Add(float64(n))
}

func (Observer) SnapshotsPurged(source models.Source, n int) {
	if n > 0 {
		SnapshotsPurged.WithLabelValues(string(source)).Add(float64(n))
	}
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
