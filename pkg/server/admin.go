package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/highstation/gateway/pkg/probe"
)

// AdminHandler serves the operator-facing API: health, connection probes,
// domain ownership verification, and Prometheus metrics.
type AdminHandler struct {
	prober    *probe.Prober
	ownership *probe.OwnershipVerifier
	logger    *slog.Logger

	mu     sync.Mutex
	tokens map[string]string // slug -> pending ownership token
}

// AdminHandlerConfig holds configuration for creating an AdminHandler.
type AdminHandlerConfig struct {
	Prober    *probe.Prober
	Ownership *probe.OwnershipVerifier
	Logger    *slog.Logger
}

// NewAdminHandler constructs the admin mux.
func NewAdminHandler(cfg AdminHandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &AdminHandler{
		prober:    cfg.Prober,
		ownership: cfg.Ownership,
		logger:    logger,
		tokens:    make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/probe", h.handleProbe)
	mux.HandleFunc("/api/ownership/token", h.handleOwnershipToken)
	mux.HandleFunc("/api/ownership/verify", h.handleOwnershipVerify)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type probeRequest struct {
	Target   string `json:"target"`
	TestPath string `json:"testPath,omitempty"`
}

func (h *AdminHandler) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAdminError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Use POST")
		return
	}
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeAdminError(w, http.StatusBadRequest, "BAD_REQUEST", "A target URL is required")
		return
	}

	result, err := h.prober.Probe(r.Context(), req.Target, req.TestPath)
	if err != nil {
		h.logger.Warn("probe rejected", "target", req.Target, "error", err)
		writeAdminError(w, http.StatusBadRequest, "UNSAFE_TARGET", "Target resolves to a blocked address")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ownershipTokenRequest struct {
	Slug string `json:"slug"`
}

type ownershipTokenResponse struct {
	Token         string `json:"token"`
	TXTRecord     string `json:"txtRecord"`
	WellKnownPath string `json:"wellKnownPath"`
}

// handleOwnershipToken issues a fresh verification token for a service. The
// owner publishes it at the well-known path or as a DNS TXT record, then
// calls the verify endpoint.
func (h *AdminHandler) handleOwnershipToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAdminError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Use POST")
		return
	}
	var req ownershipTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" {
		writeAdminError(w, http.StatusBadRequest, "BAD_REQUEST", "A service slug is required")
		return
	}

	token := uuid.New().String()
	h.mu.Lock()
	h.tokens[req.Slug] = token
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, ownershipTokenResponse{
		Token:         token,
		TXTRecord:     "highstation-verify=" + token,
		WellKnownPath: probe.WellKnownPath,
	})
}

type ownershipVerifyRequest struct {
	Slug   string `json:"slug"`
	Domain string `json:"domain"`
}

type ownershipVerifyResponse struct {
	Verified bool `json:"verified"`
}

func (h *AdminHandler) handleOwnershipVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAdminError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Use POST")
		return
	}
	var req ownershipVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Slug == "" || req.Domain == "" {
		writeAdminError(w, http.StatusBadRequest, "BAD_REQUEST", "A service slug and domain are required")
		return
	}

	h.mu.Lock()
	token, issued := h.tokens[req.Slug]
	h.mu.Unlock()
	if !issued {
		writeAdminError(w, http.StatusConflict, "NO_PENDING_TOKEN", "No verification token has been issued for this service")
		return
	}

	verified, err := h.ownership.Verify(r.Context(), req.Slug, req.Domain, token)
	if err != nil {
		h.logger.Error("ownership verification failed", "slug", req.Slug, "domain", req.Domain, "error", err)
		writeAdminError(w, http.StatusInternalServerError, "VERIFICATION_ERROR", "Ownership verification could not be completed")
		return
	}

	if verified {
		h.mu.Lock()
		delete(h.tokens, req.Slug)
		h.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, ownershipVerifyResponse{Verified: verified})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAdminError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
