/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package trace

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type TraceMode string

const (
	TraceModeErrorOnly TraceMode = "error_only"
	TraceModeAlways    TraceMode = "always"
)

type TraceOptions struct {
	Mode               TraceMode
	SamplingRatio      float64
	ErrorSamplingRatio float64
}

// DefaultTraceOptions returns error-only export with full error sampling.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		Mode:               TraceModeErrorOnly,
		SamplingRatio:      0.1,
		ErrorSamplingRatio: 1.0,
	}
}

type traceBuffer struct {
	spans    []sdktrace.ReadOnlySpan
	hasError bool
}

// ErrorOnlySpanProcessor buffers spans per trace and exports a trace only
// when at least one of its spans ended with an error status. Buffered spans
// of a clean trace are dropped when its root span ends.
type ErrorOnlySpanProcessor struct {
	exporter           sdktrace.SpanExporter
	errorSamplingRatio float64

	mu     sync.Mutex
	traces map[trace.TraceID]*traceBuffer
	rand   *rand.Rand
}

func NewErrorOnlySpanProcessor(exporter sdktrace.SpanExporter, errorSamplingRatio float64) *ErrorOnlySpanProcessor {
	if errorSamplingRatio < 0 || errorSamplingRatio > 1 {
		errorSamplingRatio = 1.0
	}
	return &ErrorOnlySpanProcessor{
		exporter:           exporter,
		errorSamplingRatio: errorSamplingRatio,
		traces:             make(map[trace.TraceID]*traceBuffer),
		rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *ErrorOnlySpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
}

func (p *ErrorOnlySpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	traceID := s.SpanContext().TraceID()

	p.mu.Lock()
	buf, ok := p.traces[traceID]
	if !ok {
		buf = &traceBuffer{}
		p.traces[traceID] = buf
	}
	buf.spans = append(buf.spans, s)
	if s.Status().Code == codes.Error {
		buf.hasError = true
	}
	// The root span ends last; its end decides the fate of the whole trace.
	isRoot := !s.Parent().IsValid() || s.Parent().IsRemote()
	if !isRoot {
		p.mu.Unlock()
		return
	}
	delete(p.traces, traceID)
	export := buf.hasError && p.rand.Float64() < p.errorSamplingRatio
	spans := buf.spans
	p.mu.Unlock()

	if export {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.exporter.ExportSpans(ctx, spans)
	}
}

func (p *ErrorOnlySpanProcessor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.traces = make(map[trace.TraceID]*traceBuffer)
	p.mu.Unlock()
	return p.exporter.Shutdown(ctx)
}

func (p *ErrorOnlySpanProcessor) ForceFlush(ctx context.Context) error {
	return nil
}
