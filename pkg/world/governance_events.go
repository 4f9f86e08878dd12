package world

import "github.com/worldkernel/node/pkg/manifest"

// GovernanceEventKind mirrors pkg/governance's Proposal Status transitions,
// so every LifecycleManager state change the kernel drives gets its own
// journal entry in the order it happened.
type GovernanceEventKind string

const (
	GovEventProposed GovernanceEventKind = "Proposed"
	GovEventShadowed GovernanceEventKind = "ShadowReport"
	GovEventApproved GovernanceEventKind = "Approved"
	GovEventRejected GovernanceEventKind = "Rejected"
	GovEventApplied  GovernanceEventKind = "Applied"
)

// GovernanceEvent records one LifecycleManager transition against a
// Proposal, identified by its ID so a reader can reconstruct the whole
// Proposed -> Shadowed -> Approved -> Applied chain from the journal alone.
type GovernanceEvent struct {
	Kind             GovernanceEventKind `json:"kind"`
	ProposalID       string              `json:"proposal_id"`
	Author           string              `json:"author,omitempty"`
	BaseManifestHash string              `json:"base_manifest_hash,omitempty"`
	ShadowHash       string              `json:"shadow_hash,omitempty"`
	Approver         string              `json:"approver,omitempty"`
	RejectReason     string              `json:"reject_reason,omitempty"`
	AppliedHash      string              `json:"applied_hash,omitempty"`
}

// ManifestUpdate carries the new manifest installed by an Applied
// governance proposal, appended immediately after the Applied
// GovernanceEvent per spec.
type ManifestUpdate struct {
	Manifest manifest.Manifest `json:"manifest"`
	Hash     string            `json:"hash"`
}

// RollbackRecord is appended as the final event of rollback_to_snapshot,
// recording the journal length immediately before truncation and why the
// rollback was requested.
type RollbackRecord struct {
	PriorJournalLen int    `json:"prior_journal_len"`
	SnapshotHash    string `json:"snapshot_hash"`
	Reason          string `json:"reason"`
}

// ModuleEventPayloadKind distinguishes the five module-related WorldEvent
// bodies the spec names; a single payload struct carries whichever fields
// that kind needs.
type ModuleEventPayloadKind string

const (
	ModulePayloadLifecycle     ModuleEventPayloadKind = "ModuleEvent"
	ModulePayloadEmitted       ModuleEventPayloadKind = "ModuleEmitted"
	ModulePayloadCallFailed    ModuleEventPayloadKind = "ModuleCallFailed"
	ModulePayloadStateUpdated  ModuleEventPayloadKind = "ModuleStateUpdated"
	ModulePayloadRuntimeCharged ModuleEventPayloadKind = "ModuleRuntimeCharged"
)

// ModuleEventPayload is the shared shape for every module-tick related
// WorldEvent body.
type ModuleEventPayload struct {
	PayloadKind  ModuleEventPayloadKind `json:"payload_kind"`
	ModuleID     string                 `json:"module_id"`
	TraceID      string                 `json:"trace_id,omitempty"`
	Detail       string                 `json:"detail,omitempty"`
	Code         string                 `json:"code,omitempty"`
	NewStateHash string                 `json:"new_state_hash,omitempty"`
	ChargedUnits int64                  `json:"charged_units,omitempty"`
}
