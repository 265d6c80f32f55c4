// Package observability builds the gateway's zap logger and its Prometheus
// metrics collector.
//
// Metrics are never registered globally: NewMetrics takes the registry it
// writes to and the collector is injected into every component that records
// counts. A nil *Metrics is valid and records nothing.
package observability
