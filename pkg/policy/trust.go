// Package policy integrates the Open Policy Agent (OPA) engine with the
// gateway, turning per-call trust signals into an allow/flag decision.
//
// The forwarder itself never gates on verification; that stays a signal.
// Callers that do want to gate (or annotate) attach a TrustPolicy and decide
// from its output. The policy is plain Rego so operators can replace the
// default module without recompiling.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/highstation/gateway/pkg/domain"
)

// DefaultModule allows all traffic and raises flags for callers to act on.
const DefaultModule = `package highstation.trust

default allow := true

flags contains "unsealed" if {
	not input.sealed
	input.root_hash_configured
}

flags contains "unverified" if {
	input.sealed
	not input.verified
}

flags contains "upstream_error" if {
	input.status >= 500
}

decision := {"allow": allow, "flags": flags}
`

const defaultQuery = "data.highstation.trust.decision"

// TrustInput is the evaluation input assembled from one ProxyResult.
type TrustInput struct {
	Service            string
	MinGrade           string
	Status             int
	LatencyMS          int64
	RootHashConfigured bool
	Sealed             bool
	Verified           bool
	Message            string
}

// TrustDecision is the policy outcome.
type TrustDecision struct {
	Allow bool
	Flags []string
}

// TrustPolicy evaluates trust decisions through a prepared Rego query.
type TrustPolicy struct {
	query rego.PreparedEvalQuery
}

// NewTrustPolicy compiles module (DefaultModule when empty) and prepares the
// decision query. Compilation errors surface at startup, not per request.
func NewTrustPolicy(ctx context.Context, module string) (*TrustPolicy, error) {
	if module == "" {
		module = DefaultModule
	}

	prepared, err := rego.New(
		rego.Query(defaultQuery),
		rego.Module("trust.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile trust policy: %w", err)
	}
	return &TrustPolicy{query: prepared}, nil
}

// InputFromResult builds a TrustInput from a forwarded call's outcome.
func InputFromResult(svc *domain.Service, result *domain.ProxyResult) TrustInput {
	input := TrustInput{
		Service:            svc.Slug,
		MinGrade:           svc.MinGrade,
		Status:             result.Status,
		LatencyMS:          result.Telemetry.LatencyMS,
		RootHashConfigured: svc.OpenSealRootHash != "",
	}
	if result.OpenSeal != nil {
		input.Sealed = true
		input.Verified = result.OpenSeal.Verified
		input.Message = result.OpenSeal.Message
	}
	return input
}

// Evaluate runs the policy for one call.
func (p *TrustPolicy) Evaluate(ctx context.Context, input TrustInput) (TrustDecision, error) {
	payload := map[string]any{
		"service":              input.Service,
		"min_grade":            input.MinGrade,
		"status":               input.Status,
		"latency_ms":           input.LatencyMS,
		"root_hash_configured": input.RootHashConfigured,
		"sealed":               input.Sealed,
		"verified":             input.Verified,
		"message":              input.Message,
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return TrustDecision{}, fmt.Errorf("trust policy eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// An undefined decision fails open: trust signals are advisory.
		return TrustDecision{Allow: true}, nil
	}

	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (TrustDecision, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return TrustDecision{}, fmt.Errorf("trust policy returned %T, want object", value)
	}

	decision := TrustDecision{Allow: true}
	if allow, ok := obj["allow"].(bool); ok {
		decision.Allow = allow
	}
	if rawFlags, ok := obj["flags"].([]any); ok {
		for _, f := range rawFlags {
			if s, ok := f.(string); ok {
				decision.Flags = append(decision.Flags, s)
			}
		}
	}
	return decision, nil
}
