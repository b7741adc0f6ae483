package runner

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// TracingListener records one span per run and a child span per component
// covering initialization up to result collection. Spans are tracked per
// job, so a listener should not observe concurrent runs of the same job.
type TracingListener struct {
	tracer trace.Tracer

	mu   sync.Mutex
	runs map[*job.AnalysisJob]*runSpans
}

type runSpans struct {
	ctx        context.Context
	span       trace.Span
	components map[job.ComponentJob]trace.Span
}

// NewTracingListener creates a tracing listener. A nil provider uses the
// global tracer provider.
func NewTracingListener(provider trace.TracerProvider) *TracingListener {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &TracingListener{
		tracer: provider.Tracer("datacleaner/runner"),
		runs:   make(map[*job.AnalysisJob]*runSpans),
	}
}

func (l *TracingListener) JobBegin(aj *job.AnalysisJob, m JobMetrics) {
	ctx, span := l.tracer.Start(context.Background(), "analysis.job",
		trace.WithAttributes(
			attribute.String("job.name", aj.Name()),
			attribute.String("run.id", m.RunID),
			attribute.String("datastore", aj.Datastore().Name()),
		))
	l.mu.Lock()
	l.runs[aj] = &runSpans{ctx: ctx, span: span, components: make(map[job.ComponentJob]trace.Span)}
	l.mu.Unlock()
}

func (l *TracingListener) JobSuccess(aj *job.AnalysisJob, m JobMetrics) {
	l.finish(aj, m, codes.Ok, "analysis job completed", nil)
}

func (l *TracingListener) JobFailed(aj *job.AnalysisJob, m JobMetrics, err error) {
	l.finish(aj, m, codes.Error, err.Error(), err)
}

// JobCancelled ends the run span. Events of rows still in flight are dropped.
func (l *TracingListener) JobCancelled(aj *job.AnalysisJob, m JobMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run, ok := l.runs[aj]; ok {
		run.span.AddEvent("cancelled", trace.WithAttributes(attribute.Int64("rows.processed", m.RowsProcessed)))
		run.span.SetStatus(codes.Error, "cancelled")
		l.endLocked(aj, run, m)
	}
}

func (l *TracingListener) RowProcessingBegin(aj *job.AnalysisJob, expectedRows int64) {
	l.event(aj, "rows.begin", attribute.Int64("rows.expected", expectedRows))
}

func (l *TracingListener) RowProcessingProgress(aj *job.AnalysisJob, rowsProcessed int64) {
	l.event(aj, "rows.progress", attribute.Int64("rows.processed", rowsProcessed))
}

func (l *TracingListener) RowProcessingSuccess(aj *job.AnalysisJob, rowsProcessed int64) {
	l.event(aj, "rows.success", attribute.Int64("rows.processed", rowsProcessed))
}

func (l *TracingListener) ComponentBegin(aj *job.AnalysisJob, cj job.ComponentJob) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[aj]
	if !ok {
		return
	}
	_, span := l.tracer.Start(run.ctx, "component."+string(cj.Kind()),
		trace.WithAttributes(
			attribute.String("component.name", cj.Name()),
			attribute.String("component.descriptor", cj.Descriptor().Name),
		))
	run.components[cj] = span
}

func (l *TracingListener) ComponentSuccess(aj *job.AnalysisJob, cj job.ComponentJob, r result.AnalyzerResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[aj]
	if !ok {
		return
	}
	if span, ok := run.components[cj]; ok {
		if r != nil {
			span.SetAttributes(attribute.String("result.kind", r.Kind()))
		}
		span.SetStatus(codes.Ok, "")
		span.End()
		delete(run.components, cj)
	}
}

func (l *TracingListener) ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, row data.InputRow, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[aj]
	if !ok {
		return
	}
	span, ok := run.components[cj]
	if !ok {
		span = run.span
	}
	var opts []trace.EventOption
	if row != nil {
		opts = append(opts, trace.WithAttributes(attribute.Int64("row.id", row.ID())))
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

func (l *TracingListener) ErrorUnknown(aj *job.AnalysisJob, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run, ok := l.runs[aj]; ok {
		run.span.RecordError(err)
	}
}

func (l *TracingListener) event(aj *job.AnalysisJob, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run, ok := l.runs[aj]; ok {
		run.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (l *TracingListener) finish(aj *job.AnalysisJob, m JobMetrics, code codes.Code, description string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[aj]
	if !ok {
		return
	}
	if err != nil {
		run.span.RecordError(err)
	}
	run.span.SetStatus(code, description)
	l.endLocked(aj, run, m)
}

func (l *TracingListener) endLocked(aj *job.AnalysisJob, run *runSpans, m JobMetrics) {
	for cj, span := range run.components {
		span.End()
		delete(run.components, cj)
	}
	run.span.SetAttributes(
		attribute.Int64("rows.processed", m.RowsProcessed),
		attribute.Int("errors", m.Errors),
	)
	run.span.End()
	delete(l.runs, aj)
}
