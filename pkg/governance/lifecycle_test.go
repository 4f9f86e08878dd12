package governance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/governance"
	"github.com/worldkernel/node/pkg/manifest"
)

func TestLifecycleManager_FullApprovalPath(t *testing.T) {
	lm := governance.NewLifecycleManager()

	current := manifest.Manifest{Version: 1, Content: map[string]interface{}{"k": "v1"}}
	baseHash, err := current.Hash()
	require.NoError(t, err)

	target := manifest.Manifest{Version: 2, Content: map[string]interface{}{"k": "v2"}}
	p := lm.Propose("alice", baseHash, &target, nil)
	assert.Equal(t, governance.StatusProposed, p.Status)

	p, err = lm.Shadow(p.ID, current)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusShadowed, p.Status)
	assert.NotEmpty(t, p.ShadowHash)

	p, err = lm.Approve(p.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, governance.StatusApproved, p.Status)
	assert.Equal(t, "bob", p.Approver)

	p, applied, err := lm.Apply(p.ID, current)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusApplied, p.Status)
	assert.Equal(t, uint64(2), applied.Version)
	assert.Equal(t, "v2", applied.Content["k"])
}

func TestLifecycleManager_RejectFromShadowed(t *testing.T) {
	lm := governance.NewLifecycleManager()
	current := manifest.Manifest{Version: 1, Content: map[string]interface{}{"k": "v1"}}
	baseHash, _ := current.Hash()
	target := manifest.Manifest{Version: 2, Content: map[string]interface{}{"k": "v2"}}

	p := lm.Propose("alice", baseHash, &target, nil)
	p, err := lm.Shadow(p.ID, current)
	require.NoError(t, err)

	p, err = lm.Reject(p.ID, "too risky")
	require.NoError(t, err)
	assert.Equal(t, governance.StatusRejected, p.Status)
	assert.Equal(t, "too risky", p.RejectReason)

	// Terminal: further transitions fail.
	_, err = lm.Approve(p.ID, "bob")
	assert.ErrorIs(t, err, governance.ErrInvalidTransition)
}

func TestLifecycleManager_ApplyRequiresApproved(t *testing.T) {
	lm := governance.NewLifecycleManager()
	current := manifest.Manifest{Version: 1, Content: map[string]interface{}{"k": "v1"}}
	baseHash, _ := current.Hash()
	target := manifest.Manifest{Version: 2, Content: map[string]interface{}{"k": "v2"}}

	p := lm.Propose("alice", baseHash, &target, nil)
	_, _, err := lm.Apply(p.ID, current)
	assert.ErrorIs(t, err, governance.ErrInvalidTransition)
}

func TestDetectConflicts_SamePath(t *testing.T) {
	base := manifest.Manifest{Version: 1, Content: map[string]interface{}{
		"a": map[string]interface{}{"x": float64(1)},
	}}
	hash, err := base.Hash()
	require.NoError(t, err)

	p1 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"a", "x"}, Value: float64(2)},
	}}
	p2 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"a", "x"}, Value: float64(3)},
	}}

	conflicts, err := governance.DetectConflicts(base, []manifest.ManifestPatch{p1, p2})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, manifest.ConflictSamePath, conflicts[0].Kind)
}
