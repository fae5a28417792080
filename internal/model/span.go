// Package model defines the core domain types for Arisu.
//
// Types correspond directly to database tables and wire payloads. Spans are
// the raw ingested representation; executions, messages, tool invocations and
// template usages are derived from them. Strong typing (enums, time.Time,
// pointers for optional fields) is preferred over interface{} wherever the
// attribute model allows it.
package model

import (
	"fmt"
	"time"
)

// SpanKind represents the OTEL span kind.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = "unspecified"
	SpanKindInternal    SpanKind = "internal"
	SpanKindServer      SpanKind = "server"
	SpanKindClient      SpanKind = "client"
	SpanKindProducer    SpanKind = "producer"
	SpanKindConsumer    SpanKind = "consumer"
)

// StatusCode represents the OTEL span status.
type StatusCode string

const (
	StatusUnset StatusCode = "unset"
	StatusOK    StatusCode = "ok"
	StatusError StatusCode = "error"
)

// SpanEvent is a timestamped event attached to a span.
type SpanEvent struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Span is the canonical in-memory representation of one ingested span,
// produced by the decoder regardless of the wire encoding. Immutable once
// decoded.
type Span struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  *string        `json:"parent_span_id,omitempty"`
	Name          string         `json:"span_name"`
	Kind          SpanKind       `json:"span_kind"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []SpanEvent    `json:"events,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	StatusCode    StatusCode     `json:"status_code"`
	StatusMessage string         `json:"status_message,omitempty"`
}

// Duration returns the span duration. Zero if the end precedes the start.
func (s Span) Duration() time.Duration {
	if s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Validate checks the structural invariants a canonical span must hold.
// The decoder clears a self-referential parent id before Validate runs, so
// hitting that case here means a caller constructed the span by hand.
func (s Span) Validate() error {
	if s.TraceID == "" {
		return fmt.Errorf("model: span missing trace_id")
	}
	if s.SpanID == "" {
		return fmt.Errorf("model: span missing span_id")
	}
	if s.ParentSpanID != nil && *s.ParentSpanID == s.SpanID {
		return fmt.Errorf("model: span %s is its own parent", s.SpanID)
	}
	if s.EndTime.Before(s.StartTime) {
		return fmt.Errorf("model: span %s ends before it starts", s.SpanID)
	}
	return nil
}
