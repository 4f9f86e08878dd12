package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/manifest"
)

func TestDiffManifest_RoundTrip(t *testing.T) {
	a := manifest.Manifest{Version: 1, Content: map[string]interface{}{
		"feature_flags": map[string]interface{}{"alpha": true},
		"limits":        map[string]interface{}{"max_agents": float64(10)},
	}}
	b := manifest.Manifest{Version: 2, Content: map[string]interface{}{
		"feature_flags": map[string]interface{}{"alpha": false, "beta": true},
		"limits":        map[string]interface{}{"max_agents": float64(20)},
	}}

	patch := manifest.DiffManifest(a, b)
	got, err := manifest.ApplyManifestPatch(a, patch)
	require.NoError(t, err)
	assert.Equal(t, b.Content, got.Content)
	assert.Equal(t, b.Version, got.Version)
}

func TestApplyManifestPatch_BaseMismatch(t *testing.T) {
	a := manifest.Manifest{Version: 1, Content: map[string]interface{}{"k": "v"}}
	patch := manifest.ManifestPatch{BaseManifestHash: "stale", Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"k"}, Value: "v2"},
	}}
	_, err := manifest.ApplyManifestPatch(a, patch)
	assert.ErrorIs(t, err, manifest.ErrBaseMismatch)
}

func TestApplyManifestPatch_RemoveMissingKey(t *testing.T) {
	a := manifest.Manifest{Version: 1, Content: map[string]interface{}{"k": "v"}}
	hash, err := a.Hash()
	require.NoError(t, err)
	patch := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpRemove, Path: []string{"missing"}},
	}}
	_, err = manifest.ApplyManifestPatch(a, patch)
	assert.ErrorIs(t, err, manifest.ErrInvalidPath)
}

func TestMergeManifestPatches_Disjoint(t *testing.T) {
	base := manifest.Manifest{Version: 1, Content: map[string]interface{}{
		"a": map[string]interface{}{"x": float64(1)},
		"b": map[string]interface{}{"y": float64(1)},
	}}
	hash, err := base.Hash()
	require.NoError(t, err)

	p1 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"a", "x"}, Value: float64(2)},
	}}
	p2 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"b", "y"}, Value: float64(2)},
	}}

	merged, err := manifest.MergeManifestPatches(base, []manifest.ManifestPatch{p1, p2})
	require.NoError(t, err)

	result, err := manifest.ApplyManifestPatch(base, merged)
	require.NoError(t, err)
	assert.Equal(t, float64(2), result.Content["a"].(map[string]interface{})["x"])
	assert.Equal(t, float64(2), result.Content["b"].(map[string]interface{})["y"])
}

func TestMergeManifestPatchesWithConflicts_SamePathWins(t *testing.T) {
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

	_, conflicts, err := manifest.MergeManifestPatchesWithConflicts(base, []manifest.ManifestPatch{p1, p2})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, manifest.ConflictSamePath, conflicts[0].Kind)
}

func TestMergeManifestPatchesWithConflicts_PrefixOverlap(t *testing.T) {
	base := manifest.Manifest{Version: 1, Content: map[string]interface{}{
		"a": map[string]interface{}{"x": float64(1)},
	}}
	hash, err := base.Hash()
	require.NoError(t, err)

	p1 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"a"}, Value: map[string]interface{}{"x": float64(9)}},
	}}
	p2 := manifest.ManifestPatch{BaseManifestHash: hash, Ops: []manifest.PatchOp{
		{Kind: manifest.OpSet, Path: []string{"a", "x"}, Value: float64(3)},
	}}

	_, conflicts, err := manifest.MergeManifestPatchesWithConflicts(base, []manifest.ManifestPatch{p1, p2})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, manifest.ConflictPrefixOverlap, conflicts[0].Kind)
}
