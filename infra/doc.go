// Package infra contains technical adapters: the MQTT controller, the
// Prometheus and InfluxDB sinks, the Sentry monitor and the zerolog logger.
// These packages should depend only on the interfaces defined in the core
// packages.
package infra
