// Package telemetry bootstraps the OpenTelemetry tracer provider used
// to wrap the controller's expensive operations — the one-shot
// build_all_routes pass and per-pair route builds — in spans.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/chuyangliu/dcell/internal/config"
)

// Tracer is the tracer this controller uses for its own spans. It is
// replaced by InitTracer when tracing is enabled; otherwise spans are
// recorded by otel's built-in no-op provider.
var Tracer trace.Tracer = otel.Tracer("github.com/chuyangliu/dcell")

// InitTracer configures the global TracerProvider per cfg and returns a
// shutdown function to be deferred by the caller. If tracing is
// disabled, it returns a no-op shutdown function and leaves the global
// no-op TracerProvider in place.
func InitTracer(cfg config.TelemetryConfig, serviceName string) func(context.Context) error {
	if !cfg.Tracing.Enabled {
		log.Println("tracing disabled")
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		log.Fatalf("failed to create resource: %v", err)
	}

	var tp *sdktrace.TracerProvider
	switch cfg.Tracing.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatalf("failed to initialize stdout exporter: %v", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
	default:
		panic(fmt.Sprintf("unsupported exporter: %s", cfg.Tracing.Exporter))
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	Tracer = tp.Tracer("github.com/chuyangliu/dcell")

	return tp.Shutdown
}

// HostPairAttributes renders a (mac_src, mac_dst) pair as span
// attributes for a per-pair route-build span.
func HostPairAttributes(macSrc, macDst int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("dcell.mac_src", macSrc),
		attribute.Int("dcell.mac_dst", macDst),
	}
}
