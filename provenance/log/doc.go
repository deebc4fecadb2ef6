// Package log defines the structured logging contract used across the
// provenance core, decoupled from any concrete backend. The zap package
// provides the production implementation.
package log
