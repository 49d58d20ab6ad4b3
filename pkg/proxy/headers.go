package proxy

import (
	"net/http"
	"strings"
)

// Outbound protocol headers the gateway attaches after sanitization.
const (
	HeaderForwardedBy = "x-forwarded-by"
	HeaderServiceName = "x-service-name"
	HeaderTimestamp   = "x-highstation-time"
	HeaderSignature   = "x-highstation-signature"
)

// ForwardedByValue is the constant platform marker upstreams can check for.
const ForwardedByValue = "highstation-gateway"

// allowedHeaders is the fixed allow-list for inbound headers. Everything
// else (x-forwarded-*, x-real-ip, x-original-*, host, connection, and any
// other attacker-controllable routing metadata) is dropped unconditionally.
var allowedHeaders = map[string]bool{
	"accept":          true,
	"accept-encoding": true,
	"accept-language": true,
	"content-type":    true,
	"content-length":  true,
	"user-agent":      true,
	"cache-control":   true,
}

// sanitizeHeaders builds the outbound header set: allow-listed inbound
// headers plus the gateway's identifying markers.
func sanitizeHeaders(inbound http.Header, serviceSlug string) http.Header {
	outbound := make(http.Header)
	for name, values := range inbound {
		if !allowedHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			outbound.Add(name, v)
		}
	}

	outbound.Set(HeaderForwardedBy, ForwardedByValue)
	outbound.Set(HeaderServiceName, serviceSlug)
	return outbound
}
