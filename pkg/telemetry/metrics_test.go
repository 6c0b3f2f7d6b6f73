package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(m metricdata.Metrics) int64 {
	s, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()

	m.RecordRun(ctx, "analyst", 20*time.Millisecond, nil)
	m.RecordRun(ctx, "analyst", 5*time.Millisecond, errors.New("x"))
	m.RecordTool(ctx, "days_between", time.Millisecond, true)
	m.RecordTokens(ctx, "gemini", 10, 4)
	m.RecordError(ctx, kerrors.New(kerrors.CodeTransient, "down", nil), "retrieval")
	m.RecordDegradation(ctx, "parallel", errors.New("branch failed"))
	m.RecordRetrieval(ctx, 3)

	got := collect(t, reader)
	tests := map[string]int64{
		"vxagent.agent.runs":         2,
		"vxagent.tool.calls":         1,
		"vxagent.llm.tokens":         14,
		"vxagent.errors.total":       1,
		"vxagent.degradations.total": 1,
	}
	for name, want := range tests {
		if v := sum(got[name]); v != want {
			t.Errorf("%s = %d, want %d", name, v, want)
		}
	}
	if _, ok := got["vxagent.retrieval.rows"]; !ok {
		t.Errorf("retrieval histogram not recorded")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, "a", time.Second, nil)
	m.RecordTool(ctx, "t", time.Second, false)
	m.RecordTokens(ctx, "m", 1, 1)
	m.RecordError(ctx, errors.New("x"), "c")
	m.RecordDegradation(ctx, "c", nil)
	m.RecordRetrieval(ctx, 1)
}
