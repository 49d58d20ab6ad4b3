// Package probe performs pre-registration connection testing and
// domain-ownership verification against candidate upstreams. Every outbound
// call goes through the SSRF-safe resolver first and dials the pinned IP.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/netsafe"
	"github.com/highstation/gateway/pkg/openseal"
	"github.com/highstation/gateway/pkg/telemetry"
)

// maxPeekBytes bounds how much of a probe response body is read for the
// identity peek.
const maxPeekBytes = 64 * 1024

// Prober tests connectivity to candidate upstreams.
type Prober struct {
	resolver *netsafe.Resolver
	timeouts governance.TimeoutConfig
	logger   *slog.Logger
	// newClient builds the pinned HTTP client for one probe run,
	// overridable in tests.
	newClient func(pin *netsafe.Pinned, timeout time.Duration) *http.Client
}

// NewProber creates a Prober on top of the SSRF-safe resolver.
func NewProber(resolver *netsafe.Resolver, timeouts governance.TimeoutConfig, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		resolver:  resolver,
		timeouts:  timeouts.Normalize(),
		logger:    logger,
		newClient: netsafe.PinnedClient,
	}
}

// Probe attempts the candidate endpoints for target in priority order until
// one answers with a success status. testPath, when non-empty, is tried
// right after the standard identity endpoint. Latency is measured from the
// first attempt's start.
func (p *Prober) Probe(ctx context.Context, target, testPath string) (*domain.ProbeResult, error) {
	base, err := url.Parse(ensureScheme(target))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed target %q: %v", domain.ErrUnsafeTarget, target, err)
	}

	pin, err := p.resolver.ResolveSafe(ctx, base.String())
	if err != nil {
		telemetry.RecordBlockedTarget(ctx, base.Hostname())
		return nil, err
	}

	client := p.newClient(pin, p.timeouts.ProbeTimeout)
	start := time.Now()

	var lastStatus int
	for _, endpoint := range candidateEndpoints(base, testPath) {
		attemptCtx, cancel := p.timeouts.WithProbeBound(ctx)
		resp, err := doGet(attemptCtx, client, endpoint)
		cancel()
		if err != nil {
			telemetry.RecordProbeAttempt(ctx, endpoint, false)
			p.logger.Debug("probe attempt failed", "endpoint", endpoint, "error", err)
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxPeekBytes))
		resp.Body.Close()

		reachable := resp.StatusCode >= 200 && resp.StatusCode < 400
		telemetry.RecordProbeAttempt(ctx, endpoint, reachable)
		if !reachable {
			lastStatus = resp.StatusCode
			continue
		}

		return &domain.ProbeResult{
			Reachable:    true,
			Endpoint:     endpoint,
			Status:       resp.StatusCode,
			LatencyMS:    time.Since(start).Milliseconds(),
			IdentityHash: peekIdentity(resp.Header, body),
		}, nil
	}

	result := &domain.ProbeResult{
		Reachable: false,
		Status:    lastStatus,
		LatencyMS: time.Since(start).Milliseconds(),
		Message:   "no candidate endpoint answered",
	}
	return result, nil
}

// candidateEndpoints builds the fixed-priority probe list, deduplicated with
// order preserved.
func candidateEndpoints(base *url.URL, testPath string) []string {
	root := *base
	root.Path = ""
	root.RawQuery = ""

	candidates := []string{root.String() + openseal.IdentityPath}
	if testPath != "" {
		if !strings.HasPrefix(testPath, "/") {
			testPath = "/" + testPath
		}
		candidates = append(candidates, root.String()+testPath)
	}
	candidates = append(candidates,
		base.String(),
		root.String()+"/health",
		root.String()+"/api/health",
	)

	seen := make(map[string]bool, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		unique = append(unique, c)
	}
	return unique
}

func doGet(ctx context.Context, client *http.Client, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// peekIdentity looks for OpenSeal identity evidence in a successful probe
// response. Best-effort and informational only: nothing here verifies.
func peekIdentity(header http.Header, body []byte) string {
	if raw := header.Get(openseal.HeaderSeal); raw != "" {
		var seal openseal.Seal
		if err := json.Unmarshal([]byte(raw), &seal); err == nil && seal.AHash != "" {
			return seal.AHash
		}
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}

	if identity, ok := parsed["identity"].(map[string]any); ok {
		if h, ok := identity["a_hash"].(string); ok && h != "" {
			return h
		}
	}
	if seal, ok := parsed["openseal"].(map[string]any); ok {
		if h, ok := seal["a_hash"].(string); ok && h != "" {
			return h
		}
	}
	if h, ok := parsed["a_hash"].(string); ok && h != "" {
		return h
	}
	if h, ok := parsed["root_hash"].(string); ok && h != "" {
		return h
	}
	return ""
}

func ensureScheme(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return "http://" + target
}
