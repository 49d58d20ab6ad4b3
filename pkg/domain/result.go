package domain

// VerificationResult is the outcome of one OpenSeal verification. It is
// produced once per forwarded call and never persisted.
type VerificationResult struct {
	Valid             bool   `json:"valid"`
	SignatureVerified bool   `json:"signatureVerified"`
	IdentityVerified  bool   `json:"identityVerified"`
	Message           string `json:"message"`
}

// Telemetry captures per-call measurements around the upstream exchange.
// LatencyMS covers the upstream call only, not verification.
type Telemetry struct {
	LatencyMS         int64  `json:"latencyMs"`
	ResponseSizeBytes int    `json:"responseSizeBytes"`
	ContentType       string `json:"contentType"`
	// IntegrityCheck means the body parsed as JSON. It is a structural
	// check, not a cryptographic one.
	IntegrityCheck bool `json:"integrityCheck"`
}

// SealStatus is the caller-facing summary of the OpenSeal outcome.
type SealStatus struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// ProxyResult is what one end-to-end forwarded call produces. Data is always
// populated when the upstream answered, regardless of verification outcome:
// verification is a trust signal, not an access gate.
type ProxyResult struct {
	Status    int         `json:"status"`
	Data      any         `json:"data"`
	Telemetry Telemetry   `json:"telemetry"`
	OpenSeal  *SealStatus `json:"openseal,omitempty"`
}

// ProbeResult reports the outcome of a connection test against a candidate
// upstream. Identity fields are a best-effort peek, not a verification.
type ProbeResult struct {
	Reachable    bool   `json:"reachable"`
	Endpoint     string `json:"endpoint,omitempty"`
	Status       int    `json:"status,omitempty"`
	LatencyMS    int64  `json:"latencyMs"`
	IdentityHash string `json:"identityHash,omitempty"`
	Message      string `json:"message,omitempty"`
}
