package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/netsafe"
	"github.com/highstation/gateway/pkg/openseal"
)

// testResolver allows loopback so probes can hit httptest servers, while
// still blocking the metadata range for negative tests.
func testResolver(t *testing.T) *netsafe.Resolver {
	t.Helper()
	r, err := netsafe.NewResolver(nil,
		netsafe.WithBlockedCIDRs([]string{"169.254.0.0/16", "10.0.0.0/8"}),
	)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func testProber(t *testing.T) *Prober {
	t.Helper()
	p := NewProber(testResolver(t), governance.TimeoutConfig{ProbeTimeout: 2 * time.Second}, nil)
	// httptest targets are loopback literals, so plain dialing is already
	// pinned; skip the per-pin transport.
	p.newClient = func(_ *netsafe.Pinned, timeout time.Duration) *http.Client {
		return &http.Client{Timeout: timeout}
	}
	return p
}

func TestCandidateEndpoints_OrderAndDedup(t *testing.T) {
	base, _ := url.Parse("http://svc.example:8080/health")

	got := candidateEndpoints(base, "/health")
	want := []string{
		"http://svc.example:8080" + openseal.IdentityPath,
		"http://svc.example:8080/health",
		"http://svc.example:8080/api/health",
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProbe_FallsBackThroughCandidates(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/health" {
			fmt.Fprint(w, `{"status":"ok"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := testProber(t).Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !result.Reachable {
		t.Fatalf("expected reachable, got %+v", result)
	}
	if result.Endpoint != server.URL+"/api/health" {
		t.Fatalf("wrong winning endpoint %s", result.Endpoint)
	}
	if len(paths) == 0 || paths[0] != openseal.IdentityPath {
		t.Fatalf("identity endpoint must be tried first, got %v", paths)
	}
	if result.LatencyMS < 0 {
		t.Fatalf("latency must be non-negative, got %d", result.LatencyMS)
	}
}

func TestProbe_IdentityPeekFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"identity": map[string]any{"a_hash": "abc123"},
		})
	}))
	defer server.Close()

	result, err := testProber(t).Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if result.IdentityHash != "abc123" {
		t.Fatalf("identity hash = %q", result.IdentityHash)
	}
}

func TestProbe_IdentityPeekFromHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seal, _ := json.Marshal(openseal.Seal{AHash: "fromheader", Signature: "s", PubKey: "p", BHash: "b"})
		w.Header().Set(openseal.HeaderSeal, string(seal))
		fmt.Fprint(w, "plain")
	}))
	defer server.Close()

	result, err := testProber(t).Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if result.IdentityHash != "fromheader" {
		t.Fatalf("identity hash = %q", result.IdentityHash)
	}
}

func TestProbe_AllCandidatesFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result, err := testProber(t).Probe(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if result.Reachable {
		t.Fatalf("expected unreachable, got %+v", result)
	}
	if result.Status != http.StatusBadGateway {
		t.Fatalf("expected last status recorded, got %d", result.Status)
	}
}

func TestProbe_BlockedTarget(t *testing.T) {
	p := testProber(t)
	_, err := p.Probe(context.Background(), "http://169.254.169.254/latest", "")
	if !errors.Is(err, domain.ErrUnsafeTarget) {
		t.Fatalf("expected ErrUnsafeTarget, got %v", err)
	}
}
