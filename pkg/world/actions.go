package world

// ActionKind tags the concrete payload carried by an Action so the reducer
// can switch on it without a type assertion ladder at every call site.
type ActionKind string

const (
	ActionRegisterAgent   ActionKind = "RegisterAgent"
	ActionMoveAgent       ActionKind = "MoveAgent"
	ActionTransferMaterial ActionKind = "TransferMaterial"
	ActionTransferPower    ActionKind = "TransferPower"
	ActionGenerateChunk    ActionKind = "GenerateChunk"
	ActionTransitToLocation ActionKind = "TransitToLocation"
	ActionShutdownAgent    ActionKind = "ShutdownAgent"
	ActionInstallModule    ActionKind = "InstallModule"
	ActionProduceAtFactory ActionKind = "ProduceAtFactory"
)

// Action is the reducer's input: an intent submitted by an agent or the
// node runtime, tagged by Kind with only the fields that kind uses set.
// A flat, optional-field struct mirrors the teacher's wire-message shape
// (one envelope type per subsystem) rather than an interface per kind,
// keeping submit_action/action_to_event free of type switches on pointers.
type Action struct {
	Kind ActionKind `json:"kind"`

	AgentID      string   `json:"agent_id,omitempty"`
	OtherAgentID string   `json:"other_agent_id,omitempty"`
	Position     Position `json:"position,omitempty"`

	Resource string `json:"resource,omitempty"`
	Amount   int64  `json:"amount,omitempty"`

	ChunkID string `json:"chunk_id,omitempty"`

	LocationID string `json:"location_id,omitempty"`

	ModuleID     string    `json:"module_id,omitempty"`
	WasmHash     string    `json:"wasm_hash,omitempty"`
	TickInterval WorldTime `json:"tick_interval,omitempty"`

	FactoryID string `json:"factory_id,omitempty"`
}

// ActionEnvelope pairs an allocated ActionID with the action body and the
// WorldTime it was accepted into the pending queue, so ActionRejected
// events can cite both.
type ActionEnvelope struct {
	ID          ActionID  `json:"id"`
	Body        Action    `json:"body"`
	SubmittedAt WorldTime `json:"submitted_at"`
}
