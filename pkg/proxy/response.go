package proxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/highstation/gateway/pkg/domain"
	"github.com/highstation/gateway/pkg/openseal"
)

// Missing-seal messages. A sealed JSON body that merely forgot its seal is a
// softer signal than an opaque response with no integrity path at all.
const (
	msgMissingSeal          = "Missing Seal"
	msgIntegrityCompromised = "Integrity Compromised"
)

// interpretResponse unwraps the upstream body and runs verification when the
// service committed to a root hash. Priority: body-wrapper envelope, then
// seal header over parsed JSON, then seal header over opaque text.
func (f *Forwarder) interpretResponse(ctx context.Context, resp *http.Response, body []byte, wax, rootHash string) *domain.ProxyResult {
	result := &domain.ProxyResult{}

	var parsed any
	isJSON := json.Unmarshal(body, &parsed) == nil
	result.Telemetry.IntegrityCheck = isJSON

	if !isJSON {
		result.Data = string(body)
		if rootHash == "" {
			return result
		}
		seal := sealFromHeader(resp.Header)
		if seal == nil {
			// No JSON body and no seal header: nothing left to check.
			result.OpenSeal = &domain.SealStatus{Verified: false, Message: msgIntegrityCompromised}
			return result
		}
		env := &openseal.Envelope{Result: string(body), Seal: seal}
		result.OpenSeal = f.runVerification(ctx, env, wax, rootHash)
		return result
	}

	if env := envelopeFromBody(parsed); env != nil {
		result.Data = env.Result
		if rootHash == "" {
			return result
		}
		result.OpenSeal = f.runVerification(ctx, env, wax, rootHash)
		return result
	}

	result.Data = parsed
	if rootHash == "" {
		return result
	}
	seal := sealFromHeader(resp.Header)
	if seal == nil {
		result.OpenSeal = &domain.SealStatus{Verified: false, Message: msgMissingSeal}
		return result
	}
	env := &openseal.Envelope{Result: parsed, Seal: seal}
	result.OpenSeal = f.runVerification(ctx, env, wax, rootHash)
	return result
}

func (f *Forwarder) runVerification(ctx context.Context, env *openseal.Envelope, wax, rootHash string) *domain.SealStatus {
	verification := f.verifier.Verify(ctx, env, wax, rootHash)
	return &domain.SealStatus{Verified: verification.Valid, Message: verification.Message}
}

// envelopeFromBody detects the body-wrapper form {result, openseal}.
func envelopeFromBody(parsed any) *openseal.Envelope {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}
	rawSeal, hasSeal := obj["openseal"]
	result, hasResult := obj["result"]
	if !hasSeal || !hasResult {
		return nil
	}

	seal := decodeSeal(rawSeal)
	if seal == nil {
		return nil
	}
	return &openseal.Envelope{Result: result, Seal: seal}
}

// sealFromHeader parses the legacy header form of the seal.
func sealFromHeader(header http.Header) *openseal.Seal {
	raw := header.Get(openseal.HeaderSeal)
	if raw == "" {
		return nil
	}
	var seal openseal.Seal
	if err := json.Unmarshal([]byte(raw), &seal); err != nil {
		return nil
	}
	return &seal
}

func decodeSeal(raw any) *openseal.Seal {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	seal := &openseal.Seal{}
	if v, ok := obj["signature"].(string); ok {
		seal.Signature = v
	}
	if v, ok := obj["pub_key"].(string); ok {
		seal.PubKey = v
	}
	if v, ok := obj["a_hash"].(string); ok {
		seal.AHash = v
	}
	if v, ok := obj["b_hash"].(string); ok {
		seal.BHash = v
	}
	return seal
}
