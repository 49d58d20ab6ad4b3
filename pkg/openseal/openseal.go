// Package openseal implements the OpenSeal challenge-response identity
// protocol: per-request wax nonces, blinded identity hashes, and Ed25519
// verification of sealed upstream responses.
//
// The verifying side lives here. The sealing side runs inside the upstream
// service and is out of scope for the gateway.
package openseal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Protocol headers exchanged with upstreams.
const (
	// HeaderWax carries the hex-encoded challenge nonce on outbound requests.
	HeaderWax = "X-OpenSeal-Wax"
	// HeaderSeal carries a JSON-encoded Seal on responses that do not use
	// the body-wrapper envelope form.
	HeaderSeal = "X-OpenSeal-Seal"
)

// IdentityPath is the well-known endpoint sealed services expose.
const IdentityPath = "/.openseal/identity"

// waxSize is the nonce length in bytes before hex encoding.
const waxSize = 16

// Seal is the proof bundle an upstream attaches to a response: an Ed25519
// signature over the nonce, both hashes, and the result digest.
type Seal struct {
	Signature string `json:"signature"`
	PubKey    string `json:"pub_key"`
	// AHash is the blinded identity: Hash(blind context || root hash || wax).
	AHash string `json:"a_hash"`
	// BHash is an upstream-defined execution/build digest. It is part of
	// the signed payload but never recomputed here.
	BHash string `json:"b_hash"`
}

// Complete reports whether every seal field is present.
func (s *Seal) Complete() bool {
	return s != nil && s.Signature != "" && s.PubKey != "" && s.AHash != "" && s.BHash != ""
}

// Envelope pairs an upstream result with its seal, whichever wire form
// (body wrapper or seal header) it arrived in.
type Envelope struct {
	Result any   `json:"result"`
	Seal   *Seal `json:"openseal"`
}

// NewWax generates a fresh challenge nonce, hex-encoded. Nonces live for a
// single request, are never persisted, and owe their uniqueness entirely to
// 128 bits of randomness.
func NewWax() (string, error) {
	buf := make([]byte, waxSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate wax nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
