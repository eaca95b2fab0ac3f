package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so lifecycle logs can be aggregated and queried.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Lifecycle
	KeyComponent = "component" // controller, bootstrap, persistence, server
	KeyNodeID    = "node_id"   // Generated node identity
	KeyPhase     = "phase"     // persistence, persistence-ready, full
	KeyState     = "state"     // Idle, Starting, Running, Stopping, Stopped
	KeyAction    = "action"    // Cleanup action name
	KeyIndex     = "index"     // Position of a cleanup action in the registry
	KeyCount     = "count"

	// Server
	KeyAddress   = "address"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyRequestID = "request_id"

	// Storage
	KeyDir       = "dir"
	KeyInMemory  = "in_memory"
	KeyBootCount = "boot_count"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns a slog.Attr for an error. A nil error yields an empty attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Phase returns a slog.Attr for a bootstrap phase.
func Phase(phase string) slog.Attr {
	return slog.String(KeyPhase, phase)
}

// Action returns a slog.Attr for a cleanup action name.
func Action(name string) slog.Attr {
	return slog.String(KeyAction, name)
}

// DurationMs returns a slog.Attr with the elapsed milliseconds since start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}
