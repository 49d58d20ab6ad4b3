package openseal

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// blindContext domain-separates the blinded identity hash from every other
// use of the hash function in the protocol.
const blindContext = "OPENSEAL_BLINDED_IDENTITY"

// ComputeBlindedHash derives the nonce-salted identity hash
// BLAKE3(blindContext || rootHash || wax) over the raw bytes of both hex
// inputs. The published root hash never crosses the wire; only this
// derivation is compared, so a proof is bound to a single request's nonce.
//
// Pure and deterministic: the provider side of the protocol computes the
// same value when sealing a response.
func ComputeBlindedHash(rootHashHex, waxHex string) (string, error) {
	rootHash, err := hex.DecodeString(rootHashHex)
	if err != nil {
		return "", fmt.Errorf("root hash is not valid hex: %w", err)
	}
	wax, err := hex.DecodeString(waxHex)
	if err != nil {
		return "", fmt.Errorf("wax nonce is not valid hex: %w", err)
	}

	h := blake3.New()
	h.Write([]byte(blindContext))
	h.Write(rootHash)
	h.Write(wax)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashResult digests a result value for the signed payload. String results
// are hashed as-is; everything else is hashed over its canonical JSON form
// (sorted keys, compact, no HTML escaping) so both sides of the protocol
// agree byte-for-byte.
func HashResult(result any) (string, error) {
	serialized, err := serializeResult(result)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

func serializeResult(result any) ([]byte, error) {
	if s, ok := result.(string); ok {
		return []byte(s), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}
	// Encode appends a newline that is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SignedPayload reconstructs the exact byte string the upstream signed:
// the textual concatenation wax || a_hash || b_hash || hex(resultHash).
func SignedPayload(wax string, seal *Seal, resultHashHex string) []byte {
	return []byte(wax + seal.AHash + seal.BHash + resultHashHex)
}
