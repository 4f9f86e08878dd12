// Package manifest implements the versioned configuration tree mutated only
// through governance: Manifest, ManifestPatch, and the diff/merge algebra
// that lets a proposal be expressed as a minimal patch and replayed
// deterministically.
package manifest

import (
	"fmt"

	"github.com/worldkernel/node/pkg/canonicalize"
)

// Manifest is an immutable, versioned JSON-like configuration tree. It is
// only ever replaced wholesale by governance's apply_proposal step; nothing
// else in the kernel mutates it directly.
type Manifest struct {
	Version uint64                 `json:"version"`
	Content map[string]interface{} `json:"content"`
}

// Hash returns the canonical hash of the manifest, used as
// ManifestPatch.BaseManifestHash and as the Approved/Applied proposal hash.
func (m Manifest) Hash() (string, error) {
	h, err := canonicalize.CanonicalHash(m)
	if err != nil {
		return "", fmt.Errorf("manifest: hash: %w", err)
	}
	return h, nil
}

// Clone returns a deep copy of the manifest content so callers can mutate a
// working copy without aliasing the original tree.
func (m Manifest) Clone() Manifest {
	return Manifest{Version: m.Version, Content: cloneTree(m.Content).(map[string]interface{})}
}

func cloneTree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneTree(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneTree(val)
		}
		return out
	default:
		return v
	}
}

// OpKind distinguishes a Set from a Remove within a ManifestPatch.
type OpKind string

const (
	OpSet    OpKind = "Set"
	OpRemove OpKind = "Remove"
)

// PatchOp is a single operation against a path in the manifest tree. Path is
// a sequence of object keys; Set auto-creates intermediate objects, Remove
// requires the key to already exist.
type PatchOp struct {
	Kind  OpKind      `json:"kind"`
	Path  []string    `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// ManifestPatch is an ordered list of operations computed against a known
// base manifest hash. Patches are only ever applied if BaseManifestHash
// still matches the manifest they're applied to.
type ManifestPatch struct {
	BaseManifestHash string    `json:"base_manifest_hash"`
	Ops              []PatchOp `json:"ops"`
	NewVersion       *uint64   `json:"new_version,omitempty"`
}

// ConflictKind categorizes how two patch ops at the same point in the tree
// collide.
type ConflictKind string

const (
	ConflictSamePath      ConflictKind = "SamePath"
	ConflictPrefixOverlap ConflictKind = "PrefixOverlap"
)

// PatchConflict records two ops from possibly different patches that touch
// the same or overlapping paths.
type PatchConflict struct {
	Kind        ConflictKind `json:"kind"`
	PatchIndexA int          `json:"patch_index_a"`
	OpIndexA    int          `json:"op_index_a"`
	PatchIndexB int          `json:"patch_index_b"`
	OpIndexB    int          `json:"op_index_b"`
	PathA       []string     `json:"path_a"`
	PathB       []string     `json:"path_b"`
}
