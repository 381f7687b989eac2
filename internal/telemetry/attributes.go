// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Session attributes
	SessionIDKey     = "session.id"
	SessionTableKey  = "session.table_id"
	SessionStatusKey = "session.status"

	// Event attributes
	EventTopicKey    = "event.topic"
	EventSequenceKey = "event.sequence"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session-related span attributes.
func SessionAttributes(id, tableID, status string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if tableID != "" {
		attrs = append(attrs, attribute.String(SessionTableKey, tableID))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(SessionStatusKey, status))
	}
	return attrs
}

// EventAttributes creates event-related span attributes.
func EventAttributes(topic string, sequence uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EventTopicKey, topic),
		attribute.Int64(EventSequenceKey, int64(sequence)), // #nosec G115 -- sequences stay far below int64 max
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
