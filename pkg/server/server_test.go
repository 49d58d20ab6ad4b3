package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/registry"
	"github.com/highstation/gateway/pkg/resolver"

	proxypkg "github.com/highstation/gateway/pkg/proxy"
)

func seedRegistry(t *testing.T, upstreamURL string) *registry.MemoryStore {
	t.Helper()
	store := registry.NewMemoryStore()
	err := store.Put(&domain.Service{
		ID:          "svc-1",
		Slug:        "shop",
		UpstreamURL: upstreamURL,
		Status:      domain.StatusVerified,
	})
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	return store
}

func newDataHandler(t *testing.T, store *registry.MemoryStore, limiter *governance.RateLimiter) *DataHandler {
	t.Helper()
	return NewDataHandler(DataHandlerConfig{
		Resolver: resolver.New(store, []string{"highstation.dev", "localhost"}, nil),
		Forwarder: proxypkg.NewForwarder(proxypkg.Config{
			Client: &http.Client{},
		}),
		Limiter: limiter,
	})
}

func TestDataHandlerForwardsMatchedRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer upstream.Close()

	handler := newDataHandler(t, seedRegistry(t, upstream.URL), nil)

	req := httptest.NewRequest(http.MethodGet, "http://shop.highstation.dev/catalog", nil)
	req.Host = "shop.highstation.dev"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("expected a request ID header")
	}

	var result domain.ProxyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("result.Status = %d, want 200", result.Status)
	}
	if result.OpenSeal != nil {
		t.Error("no seal status expected without a committed root hash")
	}
}

func TestDataHandlerUnmatchedRequestIs404(t *testing.T) {
	handler := newDataHandler(t, registry.NewMemoryStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "http://unknown.highstation.dev/x", nil)
	req.Host = "unknown.highstation.dev"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp domain.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "SERVICE_NOT_FOUND" {
		t.Errorf("code = %q, want SERVICE_NOT_FOUND", resp.Code)
	}
}

func TestDataHandlerHealth(t *testing.T) {
	handler := newDataHandler(t, registry.NewMemoryStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDataHandlerDeadUpstreamIs502(t *testing.T) {
	handler := newDataHandler(t, seedRegistry(t, "http://127.0.0.1:1"), nil)

	req := httptest.NewRequest(http.MethodGet, "http://shop.highstation.dev/catalog", nil)
	req.Host = "shop.highstation.dev"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp domain.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "BAD_GATEWAY" {
		t.Errorf("code = %q, want BAD_GATEWAY", resp.Code)
	}
}

func TestDataHandlerRateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer upstream.Close()

	limiter := governance.NewRateLimiter(map[string]governance.RateLimitConfig{
		"shop": {RequestsPerSecond: 1, BurstSize: 1},
	})
	handler := newDataHandler(t, seedRegistry(t, upstream.URL), limiter)

	req := httptest.NewRequest(http.MethodGet, "http://shop.highstation.dev/catalog", nil)
	req.Host = "shop.highstation.dev"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first call status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d, want 429", rec.Code)
	}
}

func TestAdminHealthAndTokenFlow(t *testing.T) {
	admin := NewAdminHandler(AdminHandlerConfig{})

	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	body, _ := json.Marshal(map[string]string{"slug": "shop"})
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ownership/token", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, want 200", rec.Code)
	}
	var tokenResp ownershipTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tokenResp.Token == "" {
		t.Error("expected a non-empty token")
	}
	if tokenResp.TXTRecord != "highstation-verify="+tokenResp.Token {
		t.Errorf("unexpected TXT record %q", tokenResp.TXTRecord)
	}
}

func TestAdminVerifyWithoutTokenIsConflict(t *testing.T) {
	admin := NewAdminHandler(AdminHandlerConfig{})

	body, _ := json.Marshal(map[string]string{"slug": "shop", "domain": "shop.example"})
	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ownership/verify", bytes.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAdminProbeRequiresTarget(t *testing.T) {
	admin := NewAdminHandler(AdminHandlerConfig{})

	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/probe", bytes.NewReader([]byte(`{}`))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdminMetricsEndpoint(t *testing.T) {
	admin := NewAdminHandler(AdminHandlerConfig{})

	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
}
