// Package telemetry provides the observability stack for mdrun: structured
// logging via zerolog, Prometheus metrics, and OpenTelemetry tracing.
//
// Logs always go to stderr. Stdout is the controller's event wire and must
// carry nothing but encoded envelopes and event text.
package telemetry
