// Package reputation implements the gateway's side of the reputation feed:
// fire-and-forget latency reports keyed by service. Implementations never
// block the proxy path and swallow their own failures.
package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// LogReporter writes latency observations to the structured log. Used when
// no external feed is configured.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// ReportLatency implements domain.LatencyReporter.
func (r *LogReporter) ReportLatency(serviceName string, latencyMS int64) {
	r.logger.Debug("latency observation", "service", serviceName, "latency_ms", latencyMS)
}

// WebhookReporter POSTs latency observations to an external reputation feed.
type WebhookReporter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewWebhookReporter creates a WebhookReporter for the given endpoint.
func NewWebhookReporter(endpoint string, logger *slog.Logger) *WebhookReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookReporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

type latencyReport struct {
	Service   string `json:"service"`
	LatencyMS int64  `json:"latencyMs"`
	Timestamp int64  `json:"timestamp"`
}

// ReportLatency implements domain.LatencyReporter. Errors are logged and
// dropped; the feed is advisory.
func (r *WebhookReporter) ReportLatency(serviceName string, latencyMS int64) {
	payload, err := json.Marshal(latencyReport{
		Service:   serviceName,
		LatencyMS: latencyMS,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("reputation feed unreachable", "error", err)
		return
	}
	resp.Body.Close()
}
