package world

import "github.com/worldkernel/node/pkg/manifest"

// ProposeManifest registers a new proposal against the current manifest and
// appends the Proposed governance event.
func (k *Kernel) ProposeManifest(author string, m *manifest.Manifest, patch *manifest.ManifestPatch) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	baseHash, err := k.state.Manifest.Hash()
	if err != nil {
		return "", newErr(ErrSerde, err.Error())
	}
	p := k.lifecycle.Propose(author, baseHash, m, patch)

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyGovernance, Governance: &GovernanceEvent{
		Kind: GovEventProposed, ProposalID: p.ID, Author: author, BaseManifestHash: baseHash,
	}})
	return p.ID, nil
}

// ShadowProposal computes the proposal's shadow hash against the current
// manifest and appends the ShadowReport governance event.
func (k *Kernel) ShadowProposal(proposalID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lifecycle.Shadow(proposalID, k.state.Manifest)
	if err != nil {
		return translateGovernanceErr(err)
	}

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyGovernance, Governance: &GovernanceEvent{
		Kind: GovEventShadowed, ProposalID: p.ID, ShadowHash: p.ShadowHash,
	}})
	return nil
}

// ApproveProposal transitions a Shadowed proposal to Approved and appends
// the Approved governance event.
func (k *Kernel) ApproveProposal(proposalID, approver string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lifecycle.Approve(proposalID, approver)
	if err != nil {
		return translateGovernanceErr(err)
	}

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyGovernance, Governance: &GovernanceEvent{
		Kind: GovEventApproved, ProposalID: p.ID, Approver: approver,
	}})
	return nil
}

// RejectProposal transitions a Proposed or Shadowed proposal to Rejected
// and appends the Rejected governance event.
func (k *Kernel) RejectProposal(proposalID, reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lifecycle.Reject(proposalID, reason)
	if err != nil {
		return translateGovernanceErr(err)
	}

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyGovernance, Governance: &GovernanceEvent{
		Kind: GovEventRejected, ProposalID: p.ID, RejectReason: reason,
	}})
	return nil
}

// ApplyProposal transitions an Approved proposal to Applied, appending the
// Applied governance event immediately followed by ManifestUpdated, in
// that order, per the lifecycle contract.
func (k *Kernel) ApplyProposal(proposalID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, target, err := k.lifecycle.Apply(proposalID, k.state.Manifest)
	if err != nil {
		return translateGovernanceErr(err)
	}

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyGovernance, Governance: &GovernanceEvent{
		Kind: GovEventApplied, ProposalID: p.ID, AppliedHash: p.AppliedHash,
	}})
	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyManifestUpdated, ManifestUpdate: &ManifestUpdate{
		Manifest: target, Hash: p.AppliedHash,
	}})
	return nil
}

func translateGovernanceErr(err error) error {
	// governance's sentinel errors (ErrInvalidTransition, ErrProposalNotFound)
	// are wrapped with %w alongside a status-specific message; surface them
	// as-is rather than re-categorizing, since the caller already imports
	// pkg/governance to inspect proposal state.
	return err
}
