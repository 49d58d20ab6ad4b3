package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/highstation/gateway/internal/governance"
	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/netsafe"
)

// WellKnownPath is the fixed file path checked for ownership tokens.
const WellKnownPath = "/.well-known/highstation-verify.txt"

// txtRecordPrefix is the DNS TXT record form of the ownership proof.
const txtRecordPrefix = "highstation-verify="

// OwnershipVerifier proves control of a custom domain either by a hosted
// well-known file or by a DNS TXT record, then flips the service to verified.
type OwnershipVerifier struct {
	resolver  *netsafe.Resolver
	registry  domain.ServiceVerifier
	timeouts  governance.TimeoutConfig
	logger    *slog.Logger
	lookupTXT func(ctx context.Context, host string) ([]string, error)
	newClient clientFactory
}

type clientFactory = func(pin *netsafe.Pinned, timeout time.Duration) *http.Client

// NewOwnershipVerifier creates an OwnershipVerifier.
func NewOwnershipVerifier(resolver *netsafe.Resolver, registry domain.ServiceVerifier, timeouts governance.TimeoutConfig, logger *slog.Logger) *OwnershipVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnershipVerifier{
		resolver:  resolver,
		registry:  registry,
		timeouts:  timeouts.Normalize(),
		logger:    logger,
		lookupTXT: net.DefaultResolver.LookupTXT,
		newClient: netsafe.PinnedClient,
	}
}

// Verify checks both proof methods for the domain. Either one passing marks
// the service verified.
func (v *OwnershipVerifier) Verify(ctx context.Context, slug, customDomain, token string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("%w: empty verification token", domain.ErrConfigInvalid)
	}

	if v.checkWellKnown(ctx, customDomain, token) || v.checkTXTRecord(ctx, customDomain, token) {
		if err := v.registry.MarkVerified(ctx, slug); err != nil {
			return false, fmt.Errorf("mark %q verified: %w", slug, err)
		}
		v.logger.Info("domain ownership verified", "slug", slug, "domain", customDomain)
		return true, nil
	}
	return false, nil
}

// checkWellKnown fetches the well-known file at the pinned IP with the
// original Host header and looks for the token as a literal substring.
func (v *OwnershipVerifier) checkWellKnown(ctx context.Context, customDomain, token string) bool {
	target := &url.URL{Scheme: "https", Host: customDomain, Path: WellKnownPath}

	pin, err := v.resolver.ResolveSafe(ctx, target.String())
	if err != nil {
		v.logger.Debug("ownership target blocked or unresolvable", "domain", customDomain, "error", err)
		return false
	}

	client := v.newClient(pin, v.timeouts.ProbeTimeout)
	attemptCtx, cancel := v.timeouts.WithProbeBound(ctx)
	defer cancel()

	resp, err := doGet(attemptCtx, client, target.String())
	if err != nil {
		v.logger.Debug("well-known fetch failed", "domain", customDomain, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPeekBytes))
	if err != nil {
		return false
	}
	return strings.Contains(string(body), token)
}

// checkTXTRecord looks for highstation-verify=<token> among the domain's TXT
// records.
func (v *OwnershipVerifier) checkTXTRecord(ctx context.Context, customDomain, token string) bool {
	attemptCtx, cancel := v.timeouts.WithProbeBound(ctx)
	defer cancel()

	records, err := v.lookupTXT(attemptCtx, customDomain)
	if err != nil {
		v.logger.Debug("TXT lookup failed", "domain", customDomain, "error", err)
		return false
	}
	want := txtRecordPrefix + token
	for _, record := range records {
		if strings.TrimSpace(record) == want {
			return true
		}
	}
	return false
}
