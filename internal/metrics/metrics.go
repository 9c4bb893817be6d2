// Package metrics wires up the OpenTelemetry meter provider backed by
// a Prometheus exporter and exposes it on /metrics, mirroring the
// operational endpoints the teacher registers alongside its gRPC
// handlers (internal/cmd/server/handler.go's registerOpsHandlers).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Install creates a Prometheus-backed MeterProvider, sets it as the
// global provider, and registers the scrape handler on mux at
// /metrics. Panel and node processes both call this at startup so
// that per-tunnel counters recorded via otel.Meter reach the same
// exporter regardless of which binary records them.
func Install(mux *http.ServeMux) error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux.Handle("GET /metrics", promhttp.Handler())
	return nil
}
