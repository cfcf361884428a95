package telemetry

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type headerCarrier []kafka.Header

func (c headerCarrier) Get(key string) string {
	for i := len(c) - 1; i >= 0; i-- {
		if strings.EqualFold(c[i].Key, key) {
			return string(c[i].Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, header := range c {
		keys[i] = header.Key
	}
	return keys
}

func ActivityHeaders(ctx context.Context) []kafka.Header {
	var carrier headerCarrier
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	return carrier
}

// ActivityContext restores the publisher's trace context from headers. If
// the headers carry none, traceID (copied into the message body on publish)
// becomes the remote parent instead.
func ActivityContext(ctx context.Context, headers []kafka.Header, traceID string) context.Context {
	carrier := headerCarrier(headers)
	restored := otel.GetTextMapPropagator().Extract(ctx, &carrier)
	if trace.SpanContextFromContext(restored).IsValid() || traceID == "" {
		return restored
	}
	parsed, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		return restored
	}
	var spanID trace.SpanID
	if _, err := rand.Read(spanID[:]); err != nil {
		return restored
	}
	return trace.ContextWithRemoteSpanContext(restored, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    parsed,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}
