// Package world implements the event-sourced kernel: the single authority
// over agent state, the append-only Journal of WorldEvents, and the
// EffectIntent/EffectReceipt pipeline that lets a reducer request
// off-kernel work without letting that work mutate state directly.
// Grounded on spec.md's data model; reuses pkg/capabilities, pkg/governance,
// pkg/manifest, pkg/crypto, and pkg/canonicalize rather than re-deriving
// any of them.
package world

import "github.com/worldkernel/node/pkg/manifest"

// WorldTime is the kernel's own logical clock, advanced one tick per Step.
type WorldTime uint64

// EventID identifies a WorldEvent's position in the Journal. IDs are
// allocated monotonically starting at 1; 0 means "no event".
type EventID uint64

// ActionID identifies a submitted Action, allocated monotonically per
// Kernel instance starting at 1.
type ActionID uint64

// Position is an agent or facility's location on the integer world grid.
type Position struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Distance returns the Chebyshev distance between two positions, matching
// the teacher's grid-movement convention of diagonal-equals-orthogonal cost.
func (p Position) Distance(o Position) int64 {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// AgentState is the mutable per-agent fact base the reducer reads and
// apply_event_body writes. Materials/PowerLevel are denominated in
// kernel-defined integer units; ShutDown agents reject further actions
// with AgentShutdown.
type AgentState struct {
	Position   Position         `json:"position"`
	LocationID string           `json:"location_id,omitempty"`
	Materials  map[string]int64 `json:"materials,omitempty"`
	PowerLevel int64            `json:"power_level"`
	ShutDown   bool             `json:"shut_down"`
}

// AgentCell bundles an agent's state with its pending inbound mailbox and
// the scheduler bookkeeping (LastActive) used to break round-robin ties.
type AgentCell struct {
	State      AgentState    `json:"state"`
	Mailbox    []DomainEvent `json:"mailbox"`
	LastActive WorldTime     `json:"last_active"`
}

// FactoryState models a production facility that can be Busy until FreeAt.
type FactoryState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Busy     bool     `json:"busy"`
	FreeAt   WorldTime `json:"free_at"`
	Output   string   `json:"output"`
}

// FacilityState models a named location an agent can transit to.
type FacilityState struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

// ModuleManifestEntry is the kernel's record of an installed module: its
// content-addressed wasm_hash plus the cadence step() schedules its tick
// calls on.
type ModuleManifestEntry struct {
	ModuleID     string `json:"module_id"`
	WasmHash     string `json:"wasm_hash"`
	TickInterval WorldTime `json:"tick_interval"`
	NextTickAt   WorldTime `json:"next_tick_at"`
}

// WorldState is the entire authoritative fact base. It is mutated ONLY by
// apply_event_body; every other code path (the reducer, emit_effect,
// governance) only reads it.
type WorldState struct {
	Time           WorldTime                       `json:"time"`
	Agents         map[string]*AgentCell            `json:"agents"`
	Facilities     map[string]*FacilityState        `json:"facilities"`
	Factories      map[string]*FactoryState          `json:"factories"`
	ChunkBudget    int64                            `json:"chunk_budget"`
	ChunksGenerated map[string]bool                 `json:"chunks_generated,omitempty"`
	RewardAccounts map[string]int64                 `json:"reward_accounts,omitempty"`
	Modules        map[string]ModuleManifestEntry    `json:"modules,omitempty"`
	Manifest       manifest.Manifest                `json:"manifest"`
}

// NewWorldState returns an empty WorldState seeded with the given manifest
// and chunk generation budget.
func NewWorldState(m manifest.Manifest, chunkBudget int64) WorldState {
	return WorldState{
		Agents:          make(map[string]*AgentCell),
		Facilities:      make(map[string]*FacilityState),
		Factories:       make(map[string]*FactoryState),
		ChunkBudget:     chunkBudget,
		ChunksGenerated: make(map[string]bool),
		RewardAccounts:  make(map[string]int64),
		Modules:         make(map[string]ModuleManifestEntry),
		Manifest:        m,
	}
}

// Clone returns a deep copy of the state, used by Kernel.State() so callers
// can't mutate the authoritative copy, and by snapshot/rollback.
func (s WorldState) Clone() WorldState {
	out := NewWorldState(s.Manifest.Clone(), s.ChunkBudget)
	out.Time = s.Time
	for id, cell := range s.Agents {
		c := *cell
		c.State.Materials = cloneInt64Map(cell.State.Materials)
		c.Mailbox = append([]DomainEvent(nil), cell.Mailbox...)
		out.Agents[id] = &c
	}
	for id, f := range s.Facilities {
		v := *f
		out.Facilities[id] = &v
	}
	for id, f := range s.Factories {
		v := *f
		out.Factories[id] = &v
	}
	for id, v := range s.ChunksGenerated {
		out.ChunksGenerated[id] = v
	}
	for id, v := range s.RewardAccounts {
		out.RewardAccounts[id] = v
	}
	for id, v := range s.Modules {
		out.Modules[id] = v
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RejectReason enumerates why action_to_event refused to turn an Action
// into a successful DomainEvent.
type RejectReason string

const (
	ReasonAgentNotFound                 RejectReason = "AgentNotFound"
	ReasonAgentAlreadyExists            RejectReason = "AgentAlreadyExists"
	ReasonAgentShutdown                 RejectReason = "AgentShutdown"
	ReasonRuleDenied                    RejectReason = "RuleDenied"
	ReasonInsufficientResource          RejectReason = "InsufficientResource"
	ReasonInsufficientMaterial          RejectReason = "InsufficientMaterial"
	ReasonInvalidAmount                 RejectReason = "InvalidAmount"
	ReasonMaterialTransferDistanceExceeded RejectReason = "MaterialTransferDistanceExceeded"
	ReasonPowerTransferDistanceExceeded  RejectReason = "PowerTransferDistanceExceeded"
	ReasonThermalOverload                RejectReason = "ThermalOverload"
	ReasonFactoryBusy                    RejectReason = "FactoryBusy"
	ReasonFacilityNotFound                RejectReason = "FacilityNotFound"
	ReasonChunkGenerationFailed           RejectReason = "ChunkGenerationFailed"
	ReasonPositionOutOfBounds             RejectReason = "PositionOutOfBounds"
	ReasonMoveDistanceExceeded            RejectReason = "MoveDistanceExceeded"
	ReasonMoveSpeedExceeded               RejectReason = "MoveSpeedExceeded"
	ReasonLocationTransferNotAllowed      RejectReason = "LocationTransferNotAllowed"
	ReasonAgentsNotCoLocated              RejectReason = "AgentsNotCoLocated"
	ReasonAgentNotAtLocation              RejectReason = "AgentNotAtLocation"
)

// Tunable bounds the reducer enforces. Not part of the manifest: these are
// kernel-level physical constants, not governance-adjustable configuration.
const (
	MaxMoveDistance int64 = 50
	MaxMoveSpeed    int64 = 5
	MaxTransferDistance int64 = 3
	MaxPowerTransferDistance int64 = 10
	ThermalOverloadThreshold int64 = 1000
	WorldBoundMin int64 = -1_000_000
	WorldBoundMax int64 = 1_000_000
)
