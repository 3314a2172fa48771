package otelhelper

import (
	"github.com/dukex/dataflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ErrorKindKey = "dataflow.error.kind"

	errorEvent = "error_occurred"
)

// SetError marks span as failed and records err on it.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent(errorEvent, trace.WithAttributes(attrs...))
}

// SetNodeError marks the span of nodeID as failed with its execution error.
// The error kind and the node that raised it are set on the span itself.
func SetNodeError(span trace.Span, nodeID string, execErr *models.ExecutionError) {
	attrs := []attribute.KeyValue{
		attribute.String(NodeIDKey, nodeID),
		attribute.String(ErrorKindKey, string(execErr.Kind)),
		attribute.String(RaisedByKey, execErr.RaisedBy),
	}

	span.SetAttributes(attrs[1:]...)
	SetError(span, execErr, attrs...)
}
