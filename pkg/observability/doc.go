// Package observability provides the operational surface of the platform:
// structured JSON logging, Prometheus metrics, OpenTelemetry tracing, health
// probes, and coordinated graceful shutdown.
//
// Every long-lived component receives a *Logger at construction time rather
// than using a package-level default, so tests can capture output and the
// request pipeline can enrich log lines with request-scoped fields.
package observability
