package governance

import (
	"context"
	"time"
)

// Default outbound call bounds. Probes are short and expendable; the main
// proxied call gets a generous but finite ceiling so a slow upstream cannot
// hold gateway capacity open indefinitely.
const (
	DefaultForwardTimeout = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
)

// TimeoutConfig bounds the gateway's outbound calls.
type TimeoutConfig struct {
	// ForwardTimeout caps one proxied upstream exchange.
	ForwardTimeout time.Duration
	// ProbeTimeout caps each individual probe attempt.
	ProbeTimeout time.Duration
}

// DefaultTimeoutConfig returns the standard bounds.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ForwardTimeout: DefaultForwardTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
	}
}

// Normalize fills zero values with defaults.
func (c TimeoutConfig) Normalize() TimeoutConfig {
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}

// WithForwardBound derives a context bounded by the forward timeout.
func (c TimeoutConfig) WithForwardBound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Normalize().ForwardTimeout)
}

// WithProbeBound derives a context bounded by the per-attempt probe timeout.
func (c TimeoutConfig) WithProbeBound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Normalize().ProbeTimeout)
}
