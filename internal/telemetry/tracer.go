package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for lifecycle spans.
const (
	AttrNodeID   = "embedded.node_id"
	AttrPhase    = "embedded.phase"
	AttrState    = "embedded.state"
	AttrAction   = "embedded.action"
	AttrActions  = "embedded.actions"
	AttrEmbedded = "embedded.enabled"
)

// Span names.
const (
	SpanStart     = "embedded.start"
	SpanStop      = "embedded.stop"
	SpanBootstrap = "embedded.bootstrap"
	SpanPhase     = "embedded.bootstrap.phase"
	SpanCleanup   = "embedded.cleanup"
)

// NodeID returns an attribute for the node identity
func NodeID(id string) attribute.KeyValue {
	return attribute.String(AttrNodeID, id)
}

// Phase returns an attribute for a bootstrap phase
func Phase(phase string) attribute.KeyValue {
	return attribute.String(AttrPhase, phase)
}

// State returns an attribute for a lifecycle state
func State(state string) attribute.KeyValue {
	return attribute.String(AttrState, state)
}

// Action returns an attribute for a cleanup action name
func Action(name string) attribute.KeyValue {
	return attribute.String(AttrAction, name)
}

// Actions returns an attribute for the number of cleanup actions
func Actions(n int) attribute.KeyValue {
	return attribute.Int(AttrActions, n)
}

// StartPhaseSpan starts a span for one bootstrap phase.
func StartPhaseSpan(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Phase(phase)}, attrs...)
	return StartSpan(ctx, SpanPhase, trace.WithAttributes(all...))
}

// StartCleanupSpan starts a span for one cleanup action.
func StartCleanupSpan(ctx context.Context, action string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanCleanup, trace.WithAttributes(Action(action)))
}
