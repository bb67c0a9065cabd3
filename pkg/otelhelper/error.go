package otelhelper

import (
	"github.com/flowforge/flowforge/pkg/failures"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ErrorKindKey      = "flowforge.error.kind"
	ErrorRetryableKey = "flowforge.error.retryable"
)

// SetError marks span failed and records err with its failure kind, so traces can be
// filtered by the same taxonomy the queue uses for retries.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	kind := failures.KindOf(err)
	if kind == "" {
		kind = "unclassified"
	}

	attrs = append(attrs,
		attribute.String(ErrorKindKey, string(kind)),
		attribute.Bool(ErrorRetryableKey, failures.IsRetryable(err)),
	)

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
