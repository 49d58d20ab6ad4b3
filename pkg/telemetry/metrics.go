package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	forwardCounter       metric.Int64Counter
	forwardLatency       metric.Float64Histogram
	sealVerifiedCounter  metric.Int64Counter
	sealFailedCounter    metric.Int64Counter
	probeAttemptCounter  metric.Int64Counter
	blockedTargetCounter metric.Int64Counter
)

// ForwardMetrics captures the fields recorded for one proxied call.
type ForwardMetrics struct {
	Service  string
	Status   int
	Latency  time.Duration
	Sealed   bool
	Verified bool
}

// RecordForward emits the counters and histograms describing one forward.
func RecordForward(ctx context.Context, m ForwardMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.slug", m.Service),
		attribute.Int("http.status", m.Status),
	}

	forwardCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Latency > 0 {
		forwardLatency.Record(ctx, float64(m.Latency)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if m.Sealed {
		if m.Verified {
			sealVerifiedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		} else {
			sealFailedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
}

// RecordProbeAttempt counts one probe endpoint attempt and its outcome.
func RecordProbeAttempt(ctx context.Context, endpoint string, reachable bool) {
	if err := ensureMetrics(); err != nil {
		return
	}
	probeAttemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("probe.endpoint", endpoint),
		attribute.Bool("probe.reachable", reachable),
	))
}

// RecordBlockedTarget counts an outbound target refused by the SSRF policy.
func RecordBlockedTarget(ctx context.Context, host string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	blockedTargetCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target.host", host),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gateway.proxy")

		forwardCounter, metricsInitErr = meter.Int64Counter(
			"gateway.forwards_total",
			metric.WithDescription("Proxied upstream calls partitioned by service and status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		forwardLatency, metricsInitErr = meter.Float64Histogram(
			"gateway.forward.latency",
			metric.WithDescription("Upstream call latency excluding verification"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		sealVerifiedCounter, metricsInitErr = meter.Int64Counter(
			"gateway.seal.verified_total",
			metric.WithDescription("Responses whose OpenSeal verification succeeded"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		sealFailedCounter, metricsInitErr = meter.Int64Counter(
			"gateway.seal.failed_total",
			metric.WithDescription("Responses whose OpenSeal verification failed or was missing"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		probeAttemptCounter, metricsInitErr = meter.Int64Counter(
			"gateway.probe.attempts_total",
			metric.WithDescription("Probe endpoint attempts partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		blockedTargetCounter, metricsInitErr = meter.Int64Counter(
			"gateway.ssrf.blocked_total",
			metric.WithDescription("Outbound targets refused by the SSRF blocklist"),
			metric.WithUnit("{count}"),
		)
	})
	return metricsInitErr
}
