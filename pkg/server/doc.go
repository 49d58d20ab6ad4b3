// Package server exposes the gateway over HTTP.
//
// Two surfaces are served: the data plane, which resolves inbound requests to
// registered services and forwards them, and the admin plane, which hosts
// health, probing, domain ownership verification, and Prometheus metrics.
package server
