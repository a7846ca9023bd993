/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package trace

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
)

var tracerProvider *sdktrace.TracerProvider

// InitTracer initializes the OpenTelemetry tracer for the named service from
// configuration. It is a no-op when tracing is disabled.
func InitTracer(serviceName string) error {
	if !config.IsTracingEnable() {
		return nil
	}
	endpoint := config.GetTracingOtlpEndpoint()
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	mode := config.GetTracingMode()
	samplingRatio := config.GetTracingSamplingRatio()
	klog.Infof("initializing tracer: service=%s, endpoint=%s, mode=%s, ratio=%.2f",
		serviceName, endpoint, mode, samplingRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC connection to %s: %w", endpoint, err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if mode == string(TraceModeAlways) {
		var sampler sdktrace.Sampler
		switch {
		case samplingRatio >= 1.0:
			sampler = sdktrace.AlwaysSample()
		case samplingRatio <= 0:
			sampler = sdktrace.NeverSample()
		default:
			sampler = sdktrace.TraceIDRatioBased(samplingRatio)
		}
		providerOpts = append(providerOpts,
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(exporter),
		)
	} else {
		providerOpts = append(providerOpts,
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithSpanProcessor(NewErrorOnlySpanProcessor(exporter, samplingRatio)),
		)
	}

	tracerProvider = sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	klog.Infof("tracer initialized: service=%s, endpoint=%s, mode=%s", serviceName, endpoint, mode)
	return nil
}

// CloseTracer closes the tracer and flushes all pending spans.
func CloseTracer() error {
	if tracerProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tracerProvider.Shutdown(ctx); err != nil {
		klog.Errorf("failed to shutdown tracer provider: %v", err)
		return err
	}
	return nil
}

// StartSpan creates a new span from context. If the context already carries
// a span, the new span is its child.
func StartSpan(ctx context.Context, operationName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("")
	return tracer.Start(ctx, operationName, opts...)
}

// FinishSpan ends a span.
func FinishSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// SetAttributes sets span attributes.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records an error on the active span and marks it failed.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() && err != nil {
		span.RecordError(err, opts...)
		span.SetStatus(codes.Error, err.Error())
	}
}

// GetTraceID gets the current trace ID.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
