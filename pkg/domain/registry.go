package domain

import "context"

// ServiceRegistry is the read surface of the service registry the gateway
// consumes. Lookups return ErrServiceNotFound when no record matches; any
// other error is an infrastructure failure the caller may treat as no-match.
type ServiceRegistry interface {
	// GetByCustomDomain returns the service whose verified custom domain
	// exactly matches host (port already stripped by the caller).
	GetByCustomDomain(ctx context.Context, host string) (*Service, error)
	// GetBySlug returns the service with the given slug. verifiedOnly
	// restricts the lookup to services that passed ownership verification.
	GetBySlug(ctx context.Context, slug string, verifiedOnly bool) (*Service, error)
}

// ServiceVerifier is the single mutation the ownership flow needs: flipping a
// service from pending to verified once its ownership proof succeeds.
type ServiceVerifier interface {
	MarkVerified(ctx context.Context, slug string) error
}

// LatencyReporter receives per-call upstream latency observations. Reports
// are fire-and-forget: implementations must never block the proxy path and
// their failures must never surface to callers.
type LatencyReporter interface {
	ReportLatency(serviceName string, latencyMS int64)
}
