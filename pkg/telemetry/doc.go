// Package telemetry wires OpenTelemetry exporters and meters for the
// Highstation gateway.
//
// It centralises trace provider setup, applies gateway-specific resource
// attributes, and records the forward/verification/probe metrics operators
// use to correlate trust signals with upstream behaviour.
package telemetry
