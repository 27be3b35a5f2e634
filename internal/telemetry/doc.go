// Package telemetry обеспечивает наблюдаемость планировщика.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (scans, ring, triggers)
//   - http.go    — /healthz и /metrics
//
// Метрики экспортируются на /metrics endpoint процесса scheduler.
package telemetry
