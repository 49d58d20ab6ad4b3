package openseal

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"

	"github.com/highstation/gateway/pkg/domain"
)

// Verification outcome messages. These are caller-facing trust signals, kept
// stable so dashboards and tests can match on them.
const (
	MsgValid            = "Verified"
	MsgIncomplete       = "Incomplete openseal metadata"
	MsgSignatureFailed  = "Signature verification failed"
	MsgIdentityMismatch = "Identity Mismatch"
)

// Verifier checks a sealed envelope against the nonce used for the request
// and, optionally, the root hash the provider committed to. Verification
// failures are data, not errors: the result always comes back.
type Verifier interface {
	Verify(ctx context.Context, env *Envelope, wax, expectedRootHash string) domain.VerificationResult
}

// NativeVerifier executes the OpenSeal protocol in-process. It is the
// authoritative fallback when no canonical verifier binary is deployed, and
// must agree with the external path on every input.
type NativeVerifier struct {
	logger *slog.Logger
}

// NewNativeVerifier creates an in-process verifier.
func NewNativeVerifier(logger *slog.Logger) *NativeVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeVerifier{logger: logger}
}

// Verify implements the Verifier contract natively.
func (v *NativeVerifier) Verify(_ context.Context, env *Envelope, wax, expectedRootHash string) domain.VerificationResult {
	if env == nil || env.Result == nil || !env.Seal.Complete() {
		return domain.VerificationResult{Message: MsgIncomplete}
	}
	seal := env.Seal

	resultHash, err := HashResult(env.Result)
	if err != nil {
		v.logger.Warn("openseal: result hashing failed", "error", err)
		return domain.VerificationResult{Message: MsgIncomplete}
	}

	pubKey, err := hex.DecodeString(seal.PubKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return domain.VerificationResult{Message: MsgSignatureFailed}
	}
	signature, err := hex.DecodeString(seal.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return domain.VerificationResult{Message: MsgSignatureFailed}
	}

	payload := SignedPayload(wax, seal, resultHash)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), payload, signature) {
		return domain.VerificationResult{Message: MsgSignatureFailed}
	}

	if expectedRootHash != "" {
		expectedAHash, err := ComputeBlindedHash(expectedRootHash, wax)
		if err != nil {
			v.logger.Warn("openseal: blinded hash recomputation failed", "error", err)
			return domain.VerificationResult{SignatureVerified: true, Message: MsgIdentityMismatch}
		}
		if expectedAHash != seal.AHash {
			return domain.VerificationResult{SignatureVerified: true, Message: MsgIdentityMismatch}
		}
	}

	return domain.VerificationResult{
		Valid:             true,
		SignatureVerified: true,
		IdentityVerified:  true,
		Message:           MsgValid,
	}
}
