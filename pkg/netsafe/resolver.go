// Package netsafe resolves user-supplied targets to addresses that are safe
// for the gateway to dial. It rejects private, loopback, link-local,
// multicast, and cloud-metadata destinations, and pins the resolved IP so the
// check and the connection cannot diverge through DNS rebinding.
package netsafe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/highstation/gateway/pkg/domain"
)

// defaultBlockedCIDRs covers RFC1918, loopback, link-local (including the
// cloud metadata endpoint 169.254.169.254), CGNAT, multicast, and their IPv6
// equivalents. The blocklist is configurable but never empty.
var defaultBlockedCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
}

// Resolver performs SSRF-safe hostname resolution with IP pinning.
type Resolver struct {
	blocked      []*net.IPNet
	logger       *slog.Logger
	lookupIP     func(ctx context.Context, host string) ([]net.IP, error)
	dnsTimeout   time.Duration
	allowSchemes map[string]bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBlockedCIDRs replaces the default blocklist. An empty set is rejected
// at construction: the blocklist is a hard invariant of the resolver.
func WithBlockedCIDRs(cidrs []string) Option {
	return func(r *Resolver) {
		r.blocked = r.blocked[:0]
		for _, c := range cidrs {
			if _, ipnet, err := net.ParseCIDR(c); err == nil {
				r.blocked = append(r.blocked, ipnet)
			}
		}
	}
}

// WithLookup overrides DNS resolution, used in tests.
func WithLookup(fn func(ctx context.Context, host string) ([]net.IP, error)) Option {
	return func(r *Resolver) {
		r.lookupIP = fn
	}
}

// NewResolver builds a Resolver with the default blocklist and scheme policy.
func NewResolver(logger *slog.Logger, opts ...Option) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		logger:       logger,
		dnsTimeout:   5 * time.Second,
		allowSchemes: map[string]bool{"http": true, "https": true},
	}
	for _, c := range defaultBlockedCIDRs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("parse blocked CIDR %q: %w", c, err)
		}
		r.blocked = append(r.blocked, ipnet)
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(r.blocked) == 0 {
		return nil, fmt.Errorf("%w: blocklist must not be empty", domain.ErrConfigInvalid)
	}
	if r.lookupIP == nil {
		r.lookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		}
	}

	return r, nil
}

// Pinned is the outcome of a safe resolution: the hostname the caller asked
// for and the single IP all subsequent connections must dial.
type Pinned struct {
	Hostname string
	IP       net.IP
	Port     string
	Scheme   string
}

// HostPort returns the pinned dial address.
func (p *Pinned) HostPort() string {
	port := p.Port
	if port == "" {
		if p.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(p.IP.String(), port)
}

// ResolveSafe parses target (a URL or bare hostname), resolves it, and
// returns the pinned address. Syntax errors, forbidden schemes, DNS failures,
// and blocked addresses all fail with domain.ErrUnsafeTarget before any
// connection is attempted.
func (r *Resolver) ResolveSafe(ctx context.Context, target string) (*Pinned, error) {
	hostname, port, scheme, err := r.parseTarget(target)
	if err != nil {
		return nil, err
	}

	resolveCtx, cancel := context.WithTimeout(ctx, r.dnsTimeout)
	defer cancel()

	// Pin the first A record. A literal IP hostname is used directly when
	// resolution yields nothing for it.
	var ip net.IP
	ips, lookupErr := r.lookupIP(resolveCtx, hostname)
	if lookupErr == nil && len(ips) > 0 {
		ip = ips[0]
	} else if literal := net.ParseIP(hostname); literal != nil {
		ip = literal
	} else {
		return nil, fmt.Errorf("%w: cannot resolve %q: %v", domain.ErrUnsafeTarget, hostname, lookupErr)
	}

	if blocked, match := r.isBlocked(ip); blocked {
		r.logger.Warn("blocked outbound target",
			"hostname", hostname,
			"ip", ip.String(),
			"range", match,
		)
		return nil, fmt.Errorf("%w: %s resolves to %s (blocked range %s)", domain.ErrUnsafeTarget, hostname, ip, match)
	}

	return &Pinned{Hostname: hostname, IP: ip, Port: port, Scheme: scheme}, nil
}

func (r *Resolver) parseTarget(target string) (hostname, port, scheme string, err error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return "", "", "", fmt.Errorf("%w: empty target", domain.ErrUnsafeTarget)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: malformed target %q: %v", domain.ErrUnsafeTarget, target, err)
	}
	if !r.allowSchemes[u.Scheme] {
		return "", "", "", fmt.Errorf("%w: scheme %q is not allowed", domain.ErrUnsafeTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", "", fmt.Errorf("%w: target %q has no host", domain.ErrUnsafeTarget, target)
	}
	return u.Hostname(), u.Port(), u.Scheme, nil
}

func (r *Resolver) isBlocked(ip net.IP) (bool, string) {
	if ip.IsUnspecified() {
		return true, "unspecified"
	}
	for _, ipnet := range r.blocked {
		if ipnet.Contains(ip) {
			return true, ipnet.String()
		}
	}
	return false, ""
}
