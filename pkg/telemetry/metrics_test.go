package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func installManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetMetricsForTest()
	return reader
}

func TestRecordForward(t *testing.T) {
	reader := installManualReader(t)
	ctx := context.Background()

	RecordForward(ctx, ForwardMetrics{
		Service:  "shop",
		Status:   200,
		Latency:  150 * time.Millisecond,
		Sealed:   true,
		Verified: false,
	})

	metrics := collectMetrics(t, reader)

	forwards, ok := metrics["gateway.forwards_total"]
	if !ok {
		t.Fatal("missing gateway.forwards_total metric")
	}
	forwardData, ok := forwards.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for forwards metric")
	}
	if len(forwardData.DataPoints) != 1 {
		t.Fatalf("expected 1 datapoint, got %d", len(forwardData.DataPoints))
	}
	if forwardData.DataPoints[0].Value != 1 {
		t.Fatalf("expected forward count 1, got %d", forwardData.DataPoints[0].Value)
	}
	if value, ok := forwardData.DataPoints[0].Attributes.Value(attribute.Key("service.slug")); !ok || value.AsString() != "shop" {
		t.Fatalf("expected service.slug attribute to be shop, got %v", value)
	}

	latency, ok := metrics["gateway.forward.latency"]
	if !ok {
		t.Fatal("missing gateway.forward.latency metric")
	}
	latencyData, ok := latency.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type for latency metric")
	}
	if latencyData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected latency sum 150ms, got %v", latencyData.DataPoints[0].Sum)
	}

	failed, ok := metrics["gateway.seal.failed_total"]
	if !ok {
		t.Fatal("missing gateway.seal.failed_total metric")
	}
	if failed.Data.(metricdata.Sum[int64]).DataPoints[0].Value != 1 {
		t.Fatal("sealed-but-unverified forward should count as a failed seal")
	}
	if _, ok := metrics["gateway.seal.verified_total"]; ok {
		t.Fatal("unverified forward must not count as verified")
	}
}

func TestRecordForwardVerifiedSeal(t *testing.T) {
	reader := installManualReader(t)

	RecordForward(context.Background(), ForwardMetrics{
		Service:  "shop",
		Status:   200,
		Latency:  10 * time.Millisecond,
		Sealed:   true,
		Verified: true,
	})

	metrics := collectMetrics(t, reader)
	verified, ok := metrics["gateway.seal.verified_total"]
	if !ok {
		t.Fatal("missing gateway.seal.verified_total metric")
	}
	if verified.Data.(metricdata.Sum[int64]).DataPoints[0].Value != 1 {
		t.Fatal("expected verified seal count 1")
	}
}

func TestRecordProbeAndBlockedTarget(t *testing.T) {
	reader := installManualReader(t)
	ctx := context.Background()

	RecordProbeAttempt(ctx, "https://shop.example/.openseal/identity", true)
	RecordBlockedTarget(ctx, "169.254.169.254")

	metrics := collectMetrics(t, reader)

	probes, ok := metrics["gateway.probe.attempts_total"]
	if !ok {
		t.Fatal("missing gateway.probe.attempts_total metric")
	}
	probeData := probes.Data.(metricdata.Sum[int64])
	if value, ok := probeData.DataPoints[0].Attributes.Value(attribute.Key("probe.reachable")); !ok || !value.AsBool() {
		t.Fatal("expected probe.reachable=true attribute")
	}

	blocked, ok := metrics["gateway.ssrf.blocked_total"]
	if !ok {
		t.Fatal("missing gateway.ssrf.blocked_total metric")
	}
	if value, ok := blocked.Data.(metricdata.Sum[int64]).DataPoints[0].Attributes.Value(attribute.Key("target.host")); !ok || value.AsString() != "169.254.169.254" {
		t.Fatalf("expected target.host attribute, got %v", value)
	}
}
