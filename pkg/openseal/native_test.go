package openseal

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

const testRootHash = "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12cdcd"

// sealEnvelope plays the provider side of the protocol: it computes the
// blinded identity for (rootHash, wax), hashes the result, and signs the
// payload with a fresh Ed25519 key.
func sealEnvelope(t *testing.T, result any, wax, rootHash string) *Envelope {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	aHash, err := ComputeBlindedHash(rootHash, wax)
	if err != nil {
		t.Fatalf("compute blinded hash: %v", err)
	}
	resultHash, err := HashResult(result)
	if err != nil {
		t.Fatalf("hash result: %v", err)
	}

	seal := &Seal{
		PubKey: hex.EncodeToString(pub),
		AHash:  aHash,
		BHash:  "0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f0f",
	}
	seal.Signature = hex.EncodeToString(ed25519.Sign(priv, SignedPayload(wax, seal, resultHash)))

	return &Envelope{Result: result, Seal: seal}
}

func newTestWax(t *testing.T) string {
	t.Helper()
	wax, err := NewWax()
	if err != nil {
		t.Fatalf("new wax: %v", err)
	}
	return wax
}

func TestNativeVerify_ValidEnvelope(t *testing.T) {
	wax := newTestWax(t)
	env := sealEnvelope(t, "42", wax, testRootHash)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, testRootHash)
	if !res.Valid || !res.SignatureVerified || !res.IdentityVerified {
		t.Fatalf("expected fully valid result, got %+v", res)
	}
	if res.Message != MsgValid {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestNativeVerify_JSONResult(t *testing.T) {
	wax := newTestWax(t)
	result := map[string]any{"answer": float64(42), "source": "upstream"}
	env := sealEnvelope(t, result, wax, testRootHash)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, testRootHash)
	if !res.Valid {
		t.Fatalf("expected valid result for JSON payload, got %+v", res)
	}
}

func TestNativeVerify_TamperedSignature(t *testing.T) {
	wax := newTestWax(t)
	env := sealEnvelope(t, "42", wax, testRootHash)

	// Flip one byte of the signature.
	sig, _ := hex.DecodeString(env.Seal.Signature)
	sig[0] ^= 0xff
	env.Seal.Signature = hex.EncodeToString(sig)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, testRootHash)
	if res.Valid || res.SignatureVerified {
		t.Fatalf("expected signature failure, got %+v", res)
	}
	if res.Message != MsgSignatureFailed {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestNativeVerify_TamperedResult(t *testing.T) {
	wax := newTestWax(t)
	env := sealEnvelope(t, "42", wax, testRootHash)
	env.Result = "43"

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, testRootHash)
	if res.Valid || res.SignatureVerified {
		t.Fatalf("expected signature failure for tampered result, got %+v", res)
	}
}

func TestNativeVerify_IdentityMismatch(t *testing.T) {
	wax := newTestWax(t)
	otherRoot := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	env := sealEnvelope(t, "42", wax, otherRoot)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, testRootHash)
	if res.Valid {
		t.Fatalf("expected invalid result, got %+v", res)
	}
	if !res.SignatureVerified {
		t.Fatal("signature over a foreign root hash is still a valid signature")
	}
	if res.IdentityVerified {
		t.Fatal("identity must not verify against a different root hash")
	}
	if res.Message != MsgIdentityMismatch {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestNativeVerify_WrongWaxFailsSignature(t *testing.T) {
	wax := newTestWax(t)
	env := sealEnvelope(t, "42", wax, testRootHash)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, newTestWax(t), testRootHash)
	if res.Valid || res.SignatureVerified {
		t.Fatalf("a seal replayed under a different nonce must fail, got %+v", res)
	}
}

func TestNativeVerify_NoRootHashSkipsIdentity(t *testing.T) {
	wax := newTestWax(t)
	env := sealEnvelope(t, "42", wax, testRootHash)

	res := NewNativeVerifier(nil).Verify(context.Background(), env, wax, "")
	if !res.Valid || !res.SignatureVerified || !res.IdentityVerified {
		t.Fatalf("expected valid result without root hash pinning, got %+v", res)
	}
}

func TestNativeVerify_IncompleteMetadata(t *testing.T) {
	wax := newTestWax(t)
	verifier := NewNativeVerifier(nil)

	cases := map[string]*Envelope{
		"nil envelope":      nil,
		"nil seal":          {Result: "42"},
		"nil result":        {Seal: &Seal{Signature: "aa", PubKey: "bb", AHash: "cc", BHash: "dd"}},
		"missing signature": {Result: "42", Seal: &Seal{PubKey: "bb", AHash: "cc", BHash: "dd"}},
		"missing pub_key":   {Result: "42", Seal: &Seal{Signature: "aa", AHash: "cc", BHash: "dd"}},
		"missing a_hash":    {Result: "42", Seal: &Seal{Signature: "aa", PubKey: "bb", BHash: "dd"}},
		"missing b_hash":    {Result: "42", Seal: &Seal{Signature: "aa", PubKey: "bb", AHash: "cc"}},
	}
	for name, env := range cases {
		res := verifier.Verify(context.Background(), env, wax, testRootHash)
		if res.Valid || res.SignatureVerified || res.IdentityVerified {
			t.Fatalf("%s: expected full failure, got %+v", name, res)
		}
		if res.Message != MsgIncomplete {
			t.Fatalf("%s: unexpected message %q", name, res.Message)
		}
	}
}
