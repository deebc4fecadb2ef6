// Package zap adapts go.uber.org/zap to the provenance log.Logger interface,
// correlating log entries with active OpenTelemetry spans.
package zap
