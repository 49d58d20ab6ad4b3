package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highstation/gateway/pkg/domain"
)

func TestDefaultModule_AllowsAndFlags(t *testing.T) {
	p, err := NewTrustPolicy(context.Background(), "")
	require.NoError(t, err)

	cases := []struct {
		name  string
		input TrustInput
		flags []string
	}{
		{
			name:  "verified call has no flags",
			input: TrustInput{Sealed: true, Verified: true, RootHashConfigured: true, Status: 200},
		},
		{
			name:  "failed verification is flagged",
			input: TrustInput{Sealed: true, Verified: false, RootHashConfigured: true, Status: 200},
			flags: []string{"unverified"},
		},
		{
			name:  "missing seal with committed root hash is flagged",
			input: TrustInput{Sealed: false, RootHashConfigured: true, Status: 200},
			flags: []string{"unsealed"},
		},
		{
			name:  "upstream errors are flagged",
			input: TrustInput{Status: 502},
			flags: []string{"upstream_error"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := p.Evaluate(context.Background(), tc.input)
			require.NoError(t, err)
			assert.True(t, decision.Allow, "default policy always allows")
			assert.ElementsMatch(t, tc.flags, decision.Flags)
		})
	}
}

func TestCustomModule_CanGate(t *testing.T) {
	module := `package highstation.trust

default allow := false

allow if {
	input.verified
}

decision := {"allow": allow, "flags": []}
`
	p, err := NewTrustPolicy(context.Background(), module)
	require.NoError(t, err)

	decision, err := p.Evaluate(context.Background(), TrustInput{Sealed: true, Verified: true})
	require.NoError(t, err)
	assert.True(t, decision.Allow)

	decision, err = p.Evaluate(context.Background(), TrustInput{Sealed: true, Verified: false})
	require.NoError(t, err)
	assert.False(t, decision.Allow)
}

func TestNewTrustPolicy_BadModuleFailsEarly(t *testing.T) {
	_, err := NewTrustPolicy(context.Background(), "package broken\n\nallow :=")
	require.Error(t, err)
}

func TestInputFromResult(t *testing.T) {
	svc := &domain.Service{Slug: "weather", OpenSealRootHash: "abcd", MinGrade: "B"}
	result := &domain.ProxyResult{
		Status:    200,
		Telemetry: domain.Telemetry{LatencyMS: 42},
		OpenSeal:  &domain.SealStatus{Verified: true, Message: "Verified"},
	}

	input := InputFromResult(svc, result)
	assert.Equal(t, "weather", input.Service)
	assert.Equal(t, "B", input.MinGrade)
	assert.True(t, input.RootHashConfigured)
	assert.True(t, input.Sealed)
	assert.True(t, input.Verified)
	assert.EqualValues(t, 42, input.LatencyMS)
}
