// Package proxy implements the integrity-verifying forwarder: it sanitizes
// and signs the outbound request, injects the OpenSeal challenge nonce,
// calls the upstream, and interprets the sealed response.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/openseal"
	"github.com/highstation/gateway/pkg/telemetry"
)

// Forwarder executes one end-to-end proxied call per Forward invocation.
// It is safe for concurrent use; forwards share nothing but the registry
// snapshot and the reputation feed.
type Forwarder struct {
	client   *http.Client
	verifier openseal.Verifier
	reporter domain.LatencyReporter
	timeouts governance.TimeoutConfig
	logger   *slog.Logger
}

// Config holds Forwarder construction options.
type Config struct {
	Verifier openseal.Verifier
	Reporter domain.LatencyReporter
	Timeouts governance.TimeoutConfig
	Logger   *slog.Logger
	// Client overrides the upstream HTTP client, used in tests.
	Client *http.Client
}

// NewForwarder creates a Forwarder.
func NewForwarder(cfg Config) *Forwarder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = openseal.NewNativeVerifier(logger)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}

	return &Forwarder{
		client:   client,
		verifier: verifier,
		reporter: cfg.Reporter,
		timeouts: cfg.Timeouts.Normalize(),
		logger:   logger,
	}
}

// Forward proxies one inbound request to the service's upstream and returns
// the interpreted, verification-annotated result. Transport failures return
// a hard error; verification failures never do: they come back as data on
// the ProxyResult.
func (f *Forwarder) Forward(ctx context.Context, req *http.Request, svc *domain.Service, residualPath string) (*domain.ProxyResult, error) {
	body, err := readBody(req)
	if err != nil {
		return nil, fmt.Errorf("read inbound body: %w", err)
	}

	headers := sanitizeHeaders(req.Header, svc.Slug)

	timestamp := time.Now().Unix()
	headers.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	if svc.SigningSecret != "" {
		headers.Set(HeaderSignature, signRequest(svc.SigningSecret, timestamp, req.Method, body))
	}

	// The challenge nonce is only issued when there is a committed root
	// hash to verify against.
	var wax string
	if svc.OpenSealRootHash != "" {
		wax, err = openseal.NewWax()
		if err != nil {
			return nil, err
		}
		headers.Set(openseal.HeaderWax, wax)
	}

	targetURL := buildTargetURL(svc.UpstreamURL, residualPath, req.URL.RawQuery)

	callCtx, cancel := f.timeouts.WithForwardBound(ctx)
	defer cancel()

	outbound, err := http.NewRequestWithContext(callCtx, req.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	outbound.Header = headers

	start := time.Now()
	resp, err := f.client.Do(outbound)
	if err != nil {
		f.logger.Warn("upstream call failed",
			"service", svc.Slug,
			"target", targetURL,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstreamUnreachable, err)
	}

	result := f.interpretResponse(ctx, resp, respBody, wax, svc.OpenSealRootHash)
	result.Status = resp.StatusCode
	result.Telemetry.LatencyMS = latency.Milliseconds()
	result.Telemetry.ResponseSizeBytes = len(respBody)
	result.Telemetry.ContentType = resp.Header.Get("Content-Type")

	telemetry.RecordForward(ctx, telemetry.ForwardMetrics{
		Service:  svc.Slug,
		Status:   resp.StatusCode,
		Latency:  latency,
		Verified: result.OpenSeal != nil && result.OpenSeal.Verified,
		Sealed:   result.OpenSeal != nil,
	})

	if f.reporter != nil {
		// Fire-and-forget: the reputation feed must never delay or fail
		// the proxied response.
		go f.reporter.ReportLatency(svc.Slug, latency.Milliseconds())
	}

	return result, nil
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// buildTargetURL joins the upstream base with the residual path and the
// original query string.
func buildTargetURL(upstreamURL, residualPath, rawQuery string) string {
	base := strings.TrimRight(upstreamURL, "/")
	if !strings.HasPrefix(residualPath, "/") {
		residualPath = "/" + residualPath
	}
	target := base + residualPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
