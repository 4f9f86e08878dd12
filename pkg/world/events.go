package world

// DomainEventKind tags a DomainEvent's payload, the same flat-struct
// convention Action uses: one wire shape, a Kind discriminator, and only
// the fields that kind populates.
type DomainEventKind string

const (
	EventAgentRegistered     DomainEventKind = "AgentRegistered"
	EventAgentMoved          DomainEventKind = "AgentMoved"
	EventActionRejected      DomainEventKind = "ActionRejected"
	EventMaterialTransferred DomainEventKind = "MaterialTransferred"
	EventPowerTransferred    DomainEventKind = "PowerTransferred"
	EventChunkGenerated      DomainEventKind = "ChunkGenerated"
	EventAgentShutdown       DomainEventKind = "AgentShutdown"
	EventLocationTransferred DomainEventKind = "LocationTransferred"
	EventModuleInstalled     DomainEventKind = "ModuleInstalled"
	EventFactoryProduced     DomainEventKind = "FactoryProduced"
)

// DomainEvent is the successful (or rejected) outcome of reducing an
// Action. Exactly one DomainEvent is produced per submitted Action.
type DomainEvent struct {
	Kind DomainEventKind `json:"kind"`

	AgentID      string `json:"agent_id,omitempty"`
	OtherAgentID string `json:"other_agent_id,omitempty"`

	From *Position `json:"from,omitempty"`
	To   *Position `json:"to,omitempty"`

	LocationID string `json:"location_id,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Amount     int64  `json:"amount,omitempty"`

	ChunkID   string `json:"chunk_id,omitempty"`
	ModuleID  string `json:"module_id,omitempty"`
	FactoryID string `json:"factory_id,omitempty"`

	ActionID ActionID     `json:"action_id,omitempty"`
	Reason   RejectReason `json:"reason,omitempty"`
	Notes    string       `json:"notes,omitempty"`
}

// BodyKind tags the WorldEvent.Body union.
type BodyKind string

const (
	BodyDomain                 BodyKind = "Domain"
	BodyEffectQueued           BodyKind = "EffectQueued"
	BodyReceiptAppended        BodyKind = "ReceiptAppended"
	BodyPolicyDecisionRecorded BodyKind = "PolicyDecisionRecorded"
	BodyGovernance             BodyKind = "Governance"
	BodySnapshotCreated        BodyKind = "SnapshotCreated"
	BodyManifestUpdated        BodyKind = "ManifestUpdated"
	BodyRollbackApplied        BodyKind = "RollbackApplied"
	BodyModuleEvent            BodyKind = "ModuleEvent"
	BodyModuleEmitted          BodyKind = "ModuleEmitted"
	BodyModuleCallFailed       BodyKind = "ModuleCallFailed"
	BodyModuleStateUpdated     BodyKind = "ModuleStateUpdated"
	BodyModuleRuntimeCharged   BodyKind = "ModuleRuntimeCharged"
)

// EventBody is the WorldEvent payload union. Exactly one of the pointer
// fields matching Kind is populated; apply_event_body switches on Kind.
type EventBody struct {
	Kind BodyKind `json:"kind"`

	Domain         *DomainEvent          `json:"domain,omitempty"`
	EffectIntent   *EffectIntent         `json:"effect_intent,omitempty"`
	Receipt        *EffectReceipt        `json:"receipt,omitempty"`
	PolicyDecision *PolicyDecisionRecord `json:"policy_decision,omitempty"`
	Governance     *GovernanceEvent      `json:"governance,omitempty"`
	SnapshotMeta   *SnapshotRecord       `json:"snapshot_meta,omitempty"`
	ManifestUpdate *ManifestUpdate       `json:"manifest_update,omitempty"`
	Rollback       *RollbackRecord       `json:"rollback,omitempty"`
	Module         *ModuleEventPayload   `json:"module,omitempty"`
}

// CausedByKind tags whether a WorldEvent originated from nothing in
// particular, a submitted Action, or a matched Effect.
type CausedByKind string

const (
	CausedByNone   CausedByKind = "None"
	CausedByAction CausedByKind = "Action"
	CausedByEffect CausedByKind = "Effect"
)

// CausedBy records the WorldEvent's causal parent, letting a reader trace
// any event back to the Action or EffectIntent that produced it.
type CausedBy struct {
	Kind     CausedByKind `json:"kind"`
	ActionID ActionID     `json:"action_id,omitempty"`
	IntentID string       `json:"intent_id,omitempty"`
}

// NoneCause is the CausedBy value for kernel-internal events (snapshots,
// rollbacks) with no single triggering Action or Effect.
func NoneCause() CausedBy { return CausedBy{Kind: CausedByNone} }

// ActionCause is the CausedBy value for events produced by reducing action.
func ActionCause(id ActionID) CausedBy { return CausedBy{Kind: CausedByAction, ActionID: id} }

// EffectCause is the CausedBy value for events produced by a matched
// EffectReceipt.
func EffectCause(intentID string) CausedBy { return CausedBy{Kind: CausedByEffect, IntentID: intentID} }

// WorldEvent is a single entry in the Journal: a globally ordered,
// monotonically-IDed record of everything that changed WorldState.
type WorldEvent struct {
	ID       EventID   `json:"id"`
	Time     WorldTime `json:"time"`
	CausedBy CausedBy  `json:"caused_by"`
	Body     EventBody `json:"body"`
}
