package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Errors surfaced by patch application. pkg/world declares WorldError kinds
// of the same names (PatchBaseMismatch, PatchInvalidPath, PatchNonObject);
// these errors are not translated into them anywhere in this module.
var (
	ErrBaseMismatch = errors.New("manifest: patch base_manifest_hash does not match current manifest")
	ErrInvalidPath  = errors.New("manifest: patch path does not exist")
	ErrNonObject    = errors.New("manifest: patch path descends into a non-object value")
)

// DiffManifest produces a minimal patch that turns base into target by a
// depth-first walk of target's tree: at leaves or type mismatches it emits
// Set; keys present only in base emit Remove. ApplyManifestPatch(a,
// DiffManifest(a, b)) == b is the required round-trip law.
func DiffManifest(base, target Manifest) ManifestPatch {
	var ops []PatchOp
	diffTree(nil, base.Content, target.Content, &ops)

	var newVersion *uint64
	if target.Version != base.Version {
		v := target.Version
		newVersion = &v
	}

	baseHash, _ := base.Hash()
	return ManifestPatch{BaseManifestHash: baseHash, Ops: ops, NewVersion: newVersion}
}

func diffTree(path []string, base, target interface{}, ops *[]PatchOp) {
	baseObj, baseIsObj := base.(map[string]interface{})
	targetObj, targetIsObj := target.(map[string]interface{})

	if baseIsObj && targetIsObj {
		keys := make(map[string]bool)
		for k := range baseObj {
			keys[k] = true
		}
		for k := range targetObj {
			keys[k] = true
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		for _, k := range sorted {
			childPath := append(append([]string{}, path...), k)
			bv, bok := baseObj[k]
			tv, tok := targetObj[k]
			switch {
			case bok && !tok:
				*ops = append(*ops, PatchOp{Kind: OpRemove, Path: childPath})
			case !bok && tok:
				*ops = append(*ops, PatchOp{Kind: OpSet, Path: childPath, Value: tv})
			default:
				diffTree(childPath, bv, tv, ops)
			}
		}
		return
	}

	// Leaf or type-mismatch: emit Set unless values are already equal.
	if !reflect.DeepEqual(base, target) {
		*ops = append(*ops, PatchOp{Kind: OpSet, Path: append([]string{}, path...), Value: target})
	}
}

// ApplyManifestPatch applies patch to manifest and returns the resulting
// manifest, failing closed if the patch's BaseManifestHash is stale or an op
// targets an invalid path.
func ApplyManifestPatch(m Manifest, patch ManifestPatch) (Manifest, error) {
	baseHash, err := m.Hash()
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: hash base: %w", err)
	}
	if patch.BaseManifestHash != "" && patch.BaseManifestHash != baseHash {
		return Manifest{}, ErrBaseMismatch
	}

	working := m.Clone()
	for _, op := range patch.Ops {
		if err := applyOp(working.Content, op); err != nil {
			return Manifest{}, err
		}
	}
	if patch.NewVersion != nil {
		working.Version = *patch.NewVersion
	}
	return working, nil
}

func applyOp(root map[string]interface{}, op PatchOp) error {
	if len(op.Path) == 0 {
		return ErrInvalidPath
	}

	node := root
	for i, key := range op.Path[:len(op.Path)-1] {
		next, ok := node[key]
		if !ok {
			if op.Kind == OpRemove {
				return ErrInvalidPath
			}
			created := make(map[string]interface{})
			node[key] = created
			node = created
			continue
		}
		childObj, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: at %v", ErrNonObject, op.Path[:i+1])
		}
		node = childObj
	}

	leafKey := op.Path[len(op.Path)-1]
	switch op.Kind {
	case OpSet:
		node[leafKey] = op.Value
	case OpRemove:
		if _, ok := node[leafKey]; !ok {
			return ErrInvalidPath
		}
		delete(node, leafKey)
	default:
		return fmt.Errorf("manifest: unknown op kind %q", op.Kind)
	}
	return nil
}

// MergeManifestPatches applies patches sequentially to a working copy of
// base, each validated against its own BaseManifestHash (which must equal
// hash(base) — patches are not chained against each other's output), and
// returns the combined patch diff_manifest(base, working).
func MergeManifestPatches(base Manifest, patches []ManifestPatch) (ManifestPatch, error) {
	baseHash, err := base.Hash()
	if err != nil {
		return ManifestPatch{}, fmt.Errorf("manifest: hash base: %w", err)
	}

	working := base.Clone()
	for i, p := range patches {
		if p.BaseManifestHash != baseHash {
			return ManifestPatch{}, fmt.Errorf("%w: patch %d", ErrBaseMismatch, i)
		}
		for _, op := range p.Ops {
			if err := applyOp(working.Content, op); err != nil {
				return ManifestPatch{}, fmt.Errorf("patch %d: %w", i, err)
			}
		}
		if p.NewVersion != nil {
			working.Version = *p.NewVersion
		}
	}

	return DiffManifest(base, working), nil
}

// MergeManifestPatchesWithConflicts behaves like MergeManifestPatches but
// additionally reports every pair of ops (across all input patches) whose
// paths are equal (SamePath) or where one path is a strict prefix of the
// other (PrefixOverlap). SamePath takes precedence over PrefixOverlap at the
// same location.
func MergeManifestPatchesWithConflicts(base Manifest, patches []ManifestPatch) (ManifestPatch, []PatchConflict, error) {
	merged, err := MergeManifestPatches(base, patches)
	if err != nil {
		return ManifestPatch{}, nil, err
	}

	type located struct {
		patchIdx int
		opIdx    int
		op       PatchOp
	}
	var all []located
	for pi, p := range patches {
		for oi, op := range p.Ops {
			all = append(all, located{pi, oi, op})
		}
	}

	var conflicts []PatchConflict
	seen := make(map[[2]int]bool) // dedupe by (patchIdx, opIdx) pair key
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.patchIdx == b.patchIdx {
				continue // ops within the same patch never conflict with each other
			}
			key := [2]int{i, j}
			if seen[key] {
				continue
			}
			if pathsEqual(a.op.Path, b.op.Path) {
				conflicts = append(conflicts, PatchConflict{
					Kind: ConflictSamePath,
					PatchIndexA: a.patchIdx, OpIndexA: a.opIdx,
					PatchIndexB: b.patchIdx, OpIndexB: b.opIdx,
					PathA: a.op.Path, PathB: b.op.Path,
				})
				seen[key] = true
			} else if isStrictPrefix(a.op.Path, b.op.Path) || isStrictPrefix(b.op.Path, a.op.Path) {
				conflicts = append(conflicts, PatchConflict{
					Kind: ConflictPrefixOverlap,
					PatchIndexA: a.patchIdx, OpIndexA: a.opIdx,
					PatchIndexB: b.patchIdx, OpIndexB: b.opIdx,
					PathA: a.op.Path, PathB: b.op.Path,
				})
				seen[key] = true
			}
		}
	}

	return merged, conflicts, nil
}

func pathsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isStrictPrefix(prefix, path []string) bool {
	if len(prefix) >= len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}
