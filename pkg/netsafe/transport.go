package netsafe

import (
	"context"
	"net"
	"net/http"
	"time"
)

// PinnedClient builds an HTTP client whose connections go to the pinned IP
// instead of re-resolving the hostname. The request URL keeps the original
// hostname so TLS SNI and the Host header continue to address the intended
// virtual host; only the TCP dial is redirected.
func PinnedClient(pin *Pinned, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	pinnedAddr := pin.HostPort()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, pinnedAddr)
	}
	// One pin, one connection: pooled connections from other pins must not
	// be reused for this target.
	transport.DisableKeepAlives = true

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
