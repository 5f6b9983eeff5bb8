// Package tracing provides helpers for carrying an opentracing span
// context across the worker-host protocol boundary as an opaque byte
// string.
package tracing

import (
	"bytes"
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"
)

// InitGlobalTracer installs a Jaeger tracer as the process-wide
// opentracing.GlobalTracer, reporting spans for serviceName to an
// agent at agentHostPort (empty uses the Jaeger client's default,
// localhost:6831). Every span is sampled; batching work is local and
// low-volume enough that head-based sampling would just lose the
// traces operators actually want.
//
// The returned io.Closer flushes buffered spans on shutdown.
func InitGlobalTracer(serviceName, agentHostPort string) (io.Closer, error) {
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:            false,
			LocalAgentHostPort:  agentHostPort,
			BufferFlushInterval: 0,
		},
	}

	tracer, closer, err := cfg.NewTracer(jaegercfg.Metrics(jaegermetrics.NullFactory))
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

// SpanContextToBinary serializes a span context into a binary carrier
// suitable for the Message.SpanContext wire field.
func SpanContextToBinary(sc opentracing.SpanContext) ([]byte, error) {
	var buf bytes.Buffer
	if err := opentracing.GlobalTracer().Inject(sc, opentracing.Binary, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SpanContextFromBinary deserializes a span context previously produced
// by SpanContextToBinary.
func SpanContextFromBinary(data []byte) (opentracing.SpanContext, error) {
	return opentracing.GlobalTracer().Extract(opentracing.Binary, bytes.NewReader(data))
}

// StartSpanFromContext is a thin wrapper around
// opentracing.StartSpanFromContext, kept here so call sites depend on
// this package rather than importing opentracing directly.
func StartSpanFromContext(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, operationName)
}
