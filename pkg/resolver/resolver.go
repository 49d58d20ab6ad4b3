// Package resolver maps inbound requests to registered services. Resolution
// runs an ordered list of candidate strategies (internal-path passthrough,
// custom domain, managed subdomain, legacy gatekeeper path) and stops at the
// first match.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/highstation/gateway/pkg/domain"
)

// internalPrefixes are platform routes that must never resolve to a service.
var internalPrefixes = []string{"/api", "/mcp", "/health", "/debug"}

// legacyPrefix is the historical slug-addressed route.
const legacyPrefix = "/gatekeeper/"

// Match is a successful resolution: the service to forward to and the
// residual path to forward with.
type Match struct {
	Service *domain.Service
	// Path is the rewritten request path. Identical to the inbound path
	// except for legacy routes, where the gatekeeper prefix is stripped.
	Path string
}

// Resolver resolves Host headers and paths against the service registry.
type Resolver struct {
	registry    domain.ServiceRegistry
	rootDomains []string
	logger      *slog.Logger
}

// New creates a Resolver. rootDomains lists the platform's managed root
// domains (production plus any local-dev variant) checked for subdomain
// routing.
func New(registry domain.ServiceRegistry, rootDomains []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: registry, rootDomains: rootDomains, logger: logger}
}

type candidate func(ctx context.Context, host, path string) (*Match, bool)

// Resolve returns the first matching service for the request, or false when
// the request should pass through to other handlers. Registry failures
// degrade to no-match: a broken lookup must not take the pipeline down.
func (r *Resolver) Resolve(ctx context.Context, host, path string) (*Match, bool) {
	if isInternalPath(path) {
		return nil, false
	}

	for _, resolve := range []candidate{r.byCustomDomain, r.bySubdomain, r.byLegacyPath} {
		if match, ok := resolve(ctx, host, path); ok {
			return match, true
		}
	}
	return nil, false
}

func (r *Resolver) byCustomDomain(ctx context.Context, host, path string) (*Match, bool) {
	hostname := stripPort(host)
	if hostname == "" {
		return nil, false
	}

	svc, err := r.registry.GetByCustomDomain(ctx, hostname)
	if err != nil {
		if !errors.Is(err, domain.ErrServiceNotFound) {
			r.logger.Error("custom domain lookup failed", "host", hostname, "error", err)
		}
		return nil, false
	}
	return &Match{Service: svc, Path: path}, true
}

func (r *Resolver) bySubdomain(ctx context.Context, host, path string) (*Match, bool) {
	hostname := stripPort(host)

	var slug string
	for _, root := range r.rootDomains {
		if suffix := "." + root; strings.HasSuffix(hostname, suffix) {
			slug = strings.TrimSuffix(hostname, suffix)
			break
		}
	}
	// Only single-label subdomains route to services, and www is reserved.
	if slug == "" || slug == "www" || strings.Contains(slug, ".") {
		return nil, false
	}

	svc, err := r.registry.GetBySlug(ctx, slug, true)
	if err != nil {
		if !errors.Is(err, domain.ErrServiceNotFound) {
			r.logger.Error("subdomain lookup failed", "slug", slug, "error", err)
		}
		return nil, false
	}
	return &Match{Service: svc, Path: path}, true
}

// byLegacyPath matches /gatekeeper/<slug>/... regardless of verification
// status. The informational endpoints under the prefix stay with the
// platform's own handlers.
func (r *Resolver) byLegacyPath(ctx context.Context, _, path string) (*Match, bool) {
	if !strings.HasPrefix(path, legacyPrefix) {
		return nil, false
	}
	if path == "/gatekeeper/resource" || strings.Contains(path, "/info") {
		return nil, false
	}

	rest := strings.TrimPrefix(path, legacyPrefix)
	slug, residual, _ := strings.Cut(rest, "/")
	if slug == "" {
		return nil, false
	}

	svc, err := r.registry.GetBySlug(ctx, slug, false)
	if err != nil {
		if !errors.Is(err, domain.ErrServiceNotFound) {
			r.logger.Error("legacy path lookup failed", "slug", slug, "error", err)
		}
		return nil, false
	}

	forwardPath := "/" + residual
	return &Match{Service: svc, Path: forwardPath}, true
}

func isInternalPath(path string) bool {
	for _, prefix := range internalPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
