package governance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/worldkernel/node/pkg/manifest"
)

// Status is a Proposal's position in its lifecycle DAG:
// Proposed -> Shadowed -> (Approved | Rejected); Approved -> Applied.
// Applied and Rejected are terminal.
type Status string

const (
	StatusProposed Status = "Proposed"
	StatusShadowed Status = "Shadowed"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
	StatusApplied  Status = "Applied"
)

// Proposal is a pending manifest change: either a whole replacement manifest
// or a patch against a known base hash.
type Proposal struct {
	ID               string                  `json:"id"`
	Author           string                  `json:"author"`
	BaseManifestHash string                  `json:"base_manifest_hash"`
	Manifest         *manifest.Manifest      `json:"manifest,omitempty"`
	Patch            *manifest.ManifestPatch `json:"patch,omitempty"`
	Status           Status                  `json:"status"`
	ShadowHash       string                  `json:"shadow_hash,omitempty"`
	Approver         string                  `json:"approver,omitempty"`
	RejectReason     string                  `json:"reject_reason,omitempty"`
	AppliedHash      string                  `json:"applied_hash,omitempty"`
}

var (
	// ErrInvalidTransition is returned when a lifecycle method is called
	// against a Proposal in a status that doesn't permit it.
	ErrInvalidTransition = errors.New("governance: invalid proposal status transition")
	ErrProposalNotFound  = errors.New("governance: proposal not found")
)

// LifecycleManager owns the set of in-flight proposals and enforces the
// Proposed -> Shadowed -> Approved/Rejected -> Applied state machine.
// Grounded on the teacher's cycle-detection LifecycleManager: where the
// teacher walked a module dependency graph to reject cyclic activations,
// DetectConflicts here walks a batch of patches for path collisions before
// they're allowed to reach Shadowed.
type LifecycleManager struct {
	mu        sync.Mutex
	proposals map[string]*Proposal
}

// NewLifecycleManager creates an empty proposal table.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{proposals: make(map[string]*Proposal)}
}

// Propose registers a new Proposal in status Proposed.
func (l *LifecycleManager) Propose(author, baseManifestHash string, m *manifest.Manifest, patch *manifest.ManifestPatch) *Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := &Proposal{
		ID:               "proposal-" + uuid.NewString(),
		Author:           author,
		BaseManifestHash: baseManifestHash,
		Manifest:         m,
		Patch:            patch,
		Status:           StatusProposed,
	}
	l.proposals[p.ID] = p
	return p
}

// Get returns a proposal by ID.
func (l *LifecycleManager) Get(id string) (*Proposal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	return p, nil
}

// ResolveManifest computes the proposal's target manifest against current,
// applying its patch if it carries one rather than a whole replacement.
func (p *Proposal) ResolveManifest(current manifest.Manifest) (manifest.Manifest, error) {
	if p.Manifest != nil {
		return *p.Manifest, nil
	}
	if p.Patch != nil {
		return manifest.ApplyManifestPatch(current, *p.Patch)
	}
	return manifest.Manifest{}, fmt.Errorf("governance: proposal %s carries neither manifest nor patch", p.ID)
}

// Shadow transitions a Proposed proposal to Shadowed, stamping the
// canonical hash of the manifest it would produce if applied now. Requires
// status == Proposed.
func (l *LifecycleManager) Shadow(id string, current manifest.Manifest) (*Proposal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	if p.Status != StatusProposed {
		return nil, fmt.Errorf("%w: shadow requires Proposed, got %s", ErrInvalidTransition, p.Status)
	}

	target, err := p.ResolveManifest(current)
	if err != nil {
		return nil, err
	}
	hash, err := target.Hash()
	if err != nil {
		return nil, fmt.Errorf("governance: hash shadow manifest: %w", err)
	}

	p.ShadowHash = hash
	p.Status = StatusShadowed
	return p, nil
}

// Approve transitions a Shadowed proposal to Approved, stamping the
// approver. Requires status == Shadowed.
func (l *LifecycleManager) Approve(id, approver string) (*Proposal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	if p.Status != StatusShadowed {
		return nil, fmt.Errorf("%w: approve requires Shadowed, got %s", ErrInvalidTransition, p.Status)
	}

	p.Approver = approver
	p.Status = StatusApproved
	return p, nil
}

// Reject transitions a Proposed or Shadowed proposal to Rejected. Requires
// status == Proposed or Shadowed.
func (l *LifecycleManager) Reject(id, reason string) (*Proposal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	if p.Status != StatusProposed && p.Status != StatusShadowed {
		return nil, fmt.Errorf("%w: reject requires Proposed or Shadowed, got %s", ErrInvalidTransition, p.Status)
	}

	p.RejectReason = reason
	p.Status = StatusRejected
	return p, nil
}

// Apply transitions an Approved proposal to Applied, computing the target
// manifest and its hash for the caller to persist as the new current
// manifest. The caller is responsible for appending the Applied and
// ManifestUpdated journal events in that order. Requires status == Approved.
func (l *LifecycleManager) Apply(id string, current manifest.Manifest) (*Proposal, manifest.Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.proposals[id]
	if !ok {
		return nil, manifest.Manifest{}, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	if p.Status != StatusApproved {
		return nil, manifest.Manifest{}, fmt.Errorf("%w: apply requires Approved, got %s", ErrInvalidTransition, p.Status)
	}

	target, err := p.ResolveManifest(current)
	if err != nil {
		return nil, manifest.Manifest{}, err
	}
	if err := manifest.CheckVersionCompatible(current, target); err != nil {
		return nil, manifest.Manifest{}, err
	}
	hash, err := target.Hash()
	if err != nil {
		return nil, manifest.Manifest{}, fmt.Errorf("governance: hash applied manifest: %w", err)
	}

	p.AppliedHash = hash
	p.Status = StatusApplied
	return p, target, nil
}

// SnapshotProposals returns a copy of the current proposal table, for the
// world kernel to fold into its own Snapshot value.
func (l *LifecycleManager) SnapshotProposals() map[string]*Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*Proposal, len(l.proposals))
	for id, p := range l.proposals {
		cp := *p
		out[id] = &cp
	}
	return out
}

// RestoreProposals replaces the proposal table wholesale, used when
// reconstructing a LifecycleManager from a world Snapshot.
func (l *LifecycleManager) RestoreProposals(proposals map[string]*Proposal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*Proposal, len(proposals))
	for id, p := range proposals {
		cp := *p
		out[id] = &cp
	}
	l.proposals = out
}

// DetectConflicts reports SamePath/PrefixOverlap conflicts among a batch of
// in-flight patch proposals before any of them is shadowed. Grounded on the
// teacher's DFS-based cycle detector, repurposed for path overlap rather
// than module dependency cycles.
func DetectConflicts(base manifest.Manifest, patches []manifest.ManifestPatch) ([]manifest.PatchConflict, error) {
	_, conflicts, err := manifest.MergeManifestPatchesWithConflicts(base, patches)
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}
