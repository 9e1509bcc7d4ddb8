package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the scope name for every memnet span and metric.
const instrumentationName = "github.com/memnet/memnet-go/pkg/core"

// telemetry holds the client's OpenTelemetry instruments. Without an
// installed SDK the global providers make every call a no-op.
type telemetry struct {
	tracer trace.Tracer

	memoriesAdded   metric.Int64Counter
	memoriesUpdated metric.Int64Counter
	rerankFallbacks metric.Int64Counter
	searchDuration  metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.memoriesAdded, err = m.Int64Counter("memnet.memories.added",
		metric.WithDescription("Memories inserted by Add."),
	); err != nil {
		return nil, err
	}
	if t.memoriesUpdated, err = m.Int64Counter("memnet.memories.updated",
		metric.WithDescription("Memories merged in place by Add."),
	); err != nil {
		return nil, err
	}
	if t.rerankFallbacks, err = m.Int64Counter("memnet.rerank.fallbacks",
		metric.WithDescription("Searches that kept the similarity order because reranking failed."),
	); err != nil {
		return nil, err
	}
	if t.searchDuration, err = m.Float64Histogram("memnet.search.duration",
		metric.WithDescription("Latency of Search including reranking."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// end records err on the span, if any, and ends it.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *telemetry) recordAdd(ctx context.Context, added, updated int) {
	if added > 0 {
		t.memoriesAdded.Add(ctx, int64(added))
	}
	if updated > 0 {
		t.memoriesUpdated.Add(ctx, int64(updated))
	}
}

func (t *telemetry) recordSearch(ctx context.Context, started time.Time, reranked bool) {
	t.searchDuration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(attribute.Bool("reranked", reranked)))
}

func scopeAttributes(prefix string, fields map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, attribute.String(prefix+k, v))
	}
	return attrs
}
