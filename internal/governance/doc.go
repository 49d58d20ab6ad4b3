// Package governance coordinates runtime safety controls for the gateway:
// timeout bounds on outbound calls and per-service rate limiting on the data
// plane.
//
// Forwards are deliberately never retried here: upstream transport errors
// must surface to the route layer exactly once, and integrity verification
// must stay bound to the single nonce issued for the call.
package governance
