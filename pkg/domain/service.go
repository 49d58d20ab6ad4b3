package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ServiceStatus tracks where a registered service sits in its verification
// lifecycle. Services start pending and become verified only after a
// successful domain-ownership proof.
type ServiceStatus string

const (
	// StatusPending marks a service that has been registered but whose
	// custom domain (if any) has not been proven yet.
	StatusPending ServiceStatus = "pending"
	// StatusVerified marks a service whose ownership proof succeeded.
	StatusVerified ServiceStatus = "verified"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Service is a registered upstream the gateway proxies to. The gateway only
// ever reads service records; all mutation happens in the registry.
type Service struct {
	ID           string        `yaml:"id" json:"id"`
	Slug         string        `yaml:"slug" json:"slug"`
	UpstreamURL  string        `yaml:"upstream_url" json:"upstreamUrl"`
	CustomDomain string        `yaml:"custom_domain,omitempty" json:"customDomain,omitempty"`
	Status       ServiceStatus `yaml:"status" json:"status"`

	// SigningSecret, when set, is the shared HMAC key used to sign
	// outbound requests so the upstream can authenticate the gateway.
	SigningSecret string `yaml:"signing_secret,omitempty" json:"-"`

	// OpenSealRootHash is the hex digest the provider committed to via
	// their source repository. Empty means no identity verification is
	// attempted for this service.
	OpenSealRootHash string `yaml:"openseal_root_hash,omitempty" json:"opensealRootHash,omitempty"`

	// MinGrade is the minimum trust grade the owner expects callers to
	// enforce, if they choose to gate on trust signals at all.
	MinGrade string `yaml:"min_grade,omitempty" json:"minGrade,omitempty"`
}

// Validate checks the invariants a service record must hold before the
// gateway will route to it.
func (s *Service) Validate() error {
	if s.Slug == "" {
		return fmt.Errorf("%w: missing slug", ErrServiceInvalid)
	}
	if !slugPattern.MatchString(s.Slug) {
		return fmt.Errorf("%w: slug %q must match [a-z0-9-]+", ErrServiceInvalid, s.Slug)
	}
	if s.UpstreamURL == "" {
		return fmt.Errorf("%w: service %q has no upstream URL", ErrServiceInvalid, s.Slug)
	}
	if !strings.HasPrefix(s.UpstreamURL, "http://") && !strings.HasPrefix(s.UpstreamURL, "https://") {
		return fmt.Errorf("%w: upstream URL %q must be http or https", ErrServiceInvalid, s.UpstreamURL)
	}
	switch s.Status {
	case StatusPending, StatusVerified, "":
	default:
		return fmt.Errorf("%w: unknown status %q", ErrServiceInvalid, s.Status)
	}
	return nil
}

// Verified reports whether the service passed domain-ownership verification.
func (s *Service) Verified() bool {
	return s.Status == StatusVerified
}
