// Package rtrace narrows the OpenTelemetry tracing API
// to what regka uses, so that other packages only reference rtrace.
package rtrace

import (
	"fmt"

	otelattr "go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	otpnoop "go.opentelemetry.io/otel/trace/noop"
)

type TracerProvider = oteltrace.TracerProvider

type Tracer = oteltrace.Tracer

type Span = oteltrace.Span

type KeyValueAttr = otelattr.KeyValue

// TracerName is the instrumentation name passed to [TracerProvider.Tracer].
const TracerName = "github.com/gordian-engine/regka"

// NopTracerProvider returns the otel no-op tracer provider.
// This is intended to use as a fallback when a nil tracer provider is given.
func NopTracerProvider() TracerProvider {
	return otpnoop.NewTracerProvider()
}

// WithAttributes is an alias to [oteltrace.WithAttributes]
// to allow consumers to only reference the rtrace package.
func WithAttributes(attrs ...KeyValueAttr) oteltrace.SpanStartEventOption {
	return oteltrace.WithAttributes(attrs...)
}

// HexAttr returns an attribute holding fmt.Sprintf("%x", val).
func HexAttr(key string, val any) KeyValueAttr {
	return otelattr.Stringer(key, hexStringer{val: val})
}

type hexStringer struct {
	val any
}

func (h hexStringer) String() string {
	return fmt.Sprintf("%x", h.val)
}

// SpanError sets the given span to error status,
// with detail from err.Error().
func SpanError(span Span, err error) {
	span.SetStatus(otelcodes.Error, err.Error())
}

// ParticipantAttr returns an integer attribute for a participant ID.
func ParticipantAttr(key string, id uint32) KeyValueAttr {
	return otelattr.Int64(key, int64(id))
}

// CountAttr returns an integer attribute for a count.
func CountAttr(key string, n uint) KeyValueAttr {
	return otelattr.Int64(key, int64(n))
}

// BoolAttr is an alias to [otelattr.Bool].
func BoolAttr(key string, v bool) KeyValueAttr {
	return otelattr.Bool(key, v)
}

// StringAttr is an alias to [otelattr.String].
func StringAttr(key, v string) KeyValueAttr {
	return otelattr.String(key, v)
}
