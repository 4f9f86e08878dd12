package governance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/governance"
)

func strPtr(s string) *string { return &s }

func TestPolicySet_FirstMatchWins(t *testing.T) {
	ps, err := governance.NewPolicySet()
	require.NoError(t, err)

	err = ps.SetRules([]governance.Rule{
		{
			When:     governance.When{EffectKind: strPtr("http.request")},
			Decision: governance.Decision{Allow: false, Reason: "no http"},
		},
		{
			When:     governance.When{OriginKind: strPtr("System")},
			Decision: governance.Decision{Allow: true},
		},
	})
	require.NoError(t, err)

	d := ps.Evaluate("http.request", "System", "cap_all")
	assert.False(t, d.Allow)
	assert.Equal(t, "no http", d.Reason)
}

func TestPolicySet_DefaultDeny(t *testing.T) {
	ps, err := governance.NewPolicySet()
	require.NoError(t, err)
	require.NoError(t, ps.SetRules(nil))

	d := ps.Evaluate("disk.write", "Reducer", "cap_disk")
	assert.False(t, d.Allow)
	assert.Equal(t, "default_deny", d.Reason)
}

func TestPolicySet_ExprGuard(t *testing.T) {
	ps, err := governance.NewPolicySet()
	require.NoError(t, err)

	err = ps.SetRules([]governance.Rule{
		{
			When: governance.When{
				CapName: strPtr("cap_all"),
				Expr:    `effect_kind.startsWith("http.")`,
			},
			Decision: governance.Decision{Allow: true},
		},
	})
	require.NoError(t, err)

	allowed := ps.Evaluate("http.request", "Plan", "cap_all")
	assert.True(t, allowed.Allow)

	denied := ps.Evaluate("disk.write", "Plan", "cap_all")
	assert.False(t, denied.Allow)
	assert.Equal(t, "default_deny", denied.Reason)
}
