package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/policy"
	"github.com/highstation/gateway/pkg/proxy"
	"github.com/highstation/gateway/pkg/resolver"
)

// HeaderRequestID carries the per-request correlation ID assigned by the
// data plane.
const HeaderRequestID = "X-Request-Id"

// HeaderTrustFlags carries the trust policy flags raised for the call.
const HeaderTrustFlags = "X-Highstation-Trust-Flags"

// DataHandler is the data plane entry point. It resolves the inbound request
// to a registered service, applies per-service rate limits, forwards the call
// and writes the verification-annotated result.
type DataHandler struct {
	resolver  *resolver.Resolver
	forwarder *proxy.Forwarder
	limiter   *governance.RateLimiter
	trust     *policy.TrustPolicy
	logger    *slog.Logger
}

// DataHandlerConfig holds configuration for creating a DataHandler.
type DataHandlerConfig struct {
	Resolver  *resolver.Resolver
	Forwarder *proxy.Forwarder
	Limiter   *governance.RateLimiter
	Trust     *policy.TrustPolicy
	Logger    *slog.Logger
}

// NewDataHandler constructs the data plane handler.
func NewDataHandler(cfg DataHandlerConfig) *DataHandler {
	if cfg.Resolver == nil || cfg.Forwarder == nil {
		panic("server: resolver and forwarder are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		resolver:  cfg.Resolver,
		forwarder: cfg.Forwarder,
		limiter:   cfg.Limiter,
		trust:     cfg.Trust,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler for the data plane.
func (h *DataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Wrap ResponseWriter to prevent superfluous WriteHeader calls
	w = &statusRecorder{ResponseWriter: w}

	ctx := r.Context()

	requestID := uuid.New().String()
	w.Header().Set(HeaderRequestID, requestID)

	h.logger.Debug("received data plane request",
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.Path,
		"request_id", requestID,
	)

	if r.URL.Path == "/health" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
		return
	}

	match, ok := h.resolver.Resolve(ctx, r.Host, r.URL.Path)
	if !ok {
		h.writeErrorResponse(ctx, w, http.StatusNotFound, "SERVICE_NOT_FOUND", "No service matches this request")
		return
	}
	svc := match.Service

	if h.limiter != nil && !h.limiter.Allow(svc.Slug) {
		h.logger.Warn("rate limit exceeded", "service", svc.Slug, "request_id", requestID)
		h.writeErrorResponse(ctx, w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded for this service")
		return
	}

	result, err := h.forwarder.Forward(ctx, r, svc, match.Path)
	if err != nil {
		h.logger.Error("forward failed",
			"service", svc.Slug,
			"request_id", requestID,
			"error", err,
		)
		h.writeErrorResponse(ctx, w, http.StatusBadGateway, "BAD_GATEWAY", "Failed to reach the upstream service")
		return
	}

	h.annotateTrust(ctx, w, svc, result)

	h.logger.Info("forwarded",
		"service", svc.Slug,
		"status", result.Status,
		"latency_ms", result.Telemetry.LatencyMS,
		"request_id", requestID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(responseStatus(result))
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("failed to encode proxy result", "error", err)
	}
}

// annotateTrust evaluates the trust policy and surfaces raised flags as a
// response header. Policy failures are logged and ignored: trust annotation
// never blocks a response.
func (h *DataHandler) annotateTrust(ctx context.Context, w http.ResponseWriter, svc *domain.Service, result *domain.ProxyResult) {
	if h.trust == nil {
		return
	}
	decision, err := h.trust.Evaluate(ctx, policy.InputFromResult(svc, result))
	if err != nil {
		h.logger.Warn("trust policy evaluation failed", "service", svc.Slug, "error", err)
		return
	}
	if len(decision.Flags) > 0 {
		w.Header().Set(HeaderTrustFlags, strings.Join(decision.Flags, ","))
	}
}

func responseStatus(result *domain.ProxyResult) int {
	if result.Status > 0 {
		return result.Status
	}
	return http.StatusOK
}

// writeErrorResponse writes the standard JSON error model.
func (h *DataHandler) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := domain.ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: traceIDFromContext(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

func traceIDFromContext(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			return sc.TraceID().String()
		}
	}
	return ""
}

// statusRecorder wraps http.ResponseWriter to prevent multiple WriteHeader calls.
type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.ResponseWriter.WriteHeader(code)
		r.wroteHeader = true
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker to allow connection takeover.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hijacker.Hijack()
}
