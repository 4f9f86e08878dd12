package world

// actionToEvent is the pure reducer: given the current state (which already
// includes the events of actions reduced earlier in the same Step) and a
// submitted action, it returns exactly one
// EventBody — either a successful DomainEvent or an ActionRejected
// DomainEvent citing a RejectReason. It never mutates state; only
// applyEventBody does that, once the event this function returns has been
// appended to the journal.
func actionToEvent(state WorldState, env ActionEnvelope) EventBody {
	a := env.Body

	reject := func(reason RejectReason, notes string) EventBody {
		return EventBody{Kind: BodyDomain, Domain: &DomainEvent{
			Kind:     EventActionRejected,
			ActionID: env.ID,
			Reason:   reason,
			Notes:    notes,
		}}
	}
	domain := func(ev DomainEvent) EventBody {
		return EventBody{Kind: BodyDomain, Domain: &ev}
	}

	switch a.Kind {
	case ActionRegisterAgent:
		if _, exists := state.Agents[a.AgentID]; exists {
			return reject(ReasonAgentAlreadyExists, "agent "+a.AgentID+" already registered")
		}
		if !inBounds(a.Position) {
			return reject(ReasonPositionOutOfBounds, "registration position out of bounds")
		}
		return domain(DomainEvent{Kind: EventAgentRegistered, AgentID: a.AgentID, To: &a.Position})

	case ActionMoveAgent:
		cell, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		if cell.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		if !inBounds(a.Position) {
			return reject(ReasonPositionOutOfBounds, "move target out of bounds")
		}
		dist := cell.State.Position.Distance(a.Position)
		if dist > MaxMoveDistance {
			return reject(ReasonMoveDistanceExceeded, "move distance exceeds maximum")
		}
		if dist > MaxMoveSpeed {
			return reject(ReasonMoveSpeedExceeded, "move distance exceeds per-tick speed limit")
		}
		from := cell.State.Position
		return domain(DomainEvent{Kind: EventAgentMoved, AgentID: a.AgentID, From: &from, To: &a.Position})

	case ActionTransferMaterial:
		src, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		dst, ok := state.Agents[a.OtherAgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.OtherAgentID+" not found")
		}
		if src.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		if a.Amount <= 0 {
			return reject(ReasonInvalidAmount, "transfer amount must be positive")
		}
		if src.State.Position.Distance(dst.State.Position) > MaxTransferDistance {
			return reject(ReasonMaterialTransferDistanceExceeded, "agents too far apart for material transfer")
		}
		if src.State.Materials[a.Resource] < a.Amount {
			return reject(ReasonInsufficientMaterial, "agent "+a.AgentID+" lacks sufficient "+a.Resource)
		}
		return domain(DomainEvent{
			Kind: EventMaterialTransferred, AgentID: a.AgentID, OtherAgentID: a.OtherAgentID,
			Resource: a.Resource, Amount: a.Amount,
		})

	case ActionTransferPower:
		src, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		dst, ok := state.Agents[a.OtherAgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.OtherAgentID+" not found")
		}
		if src.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		if a.Amount <= 0 {
			return reject(ReasonInvalidAmount, "power transfer amount must be positive")
		}
		if src.State.Position.Distance(dst.State.Position) > MaxPowerTransferDistance {
			return reject(ReasonPowerTransferDistanceExceeded, "agents too far apart for power transfer")
		}
		if src.State.PowerLevel < a.Amount {
			return reject(ReasonInsufficientResource, "agent "+a.AgentID+" lacks sufficient power")
		}
		if dst.State.PowerLevel+a.Amount > ThermalOverloadThreshold {
			return reject(ReasonThermalOverload, "agent "+a.OtherAgentID+" would exceed thermal threshold")
		}
		return domain(DomainEvent{
			Kind: EventPowerTransferred, AgentID: a.AgentID, OtherAgentID: a.OtherAgentID, Amount: a.Amount,
		})

	case ActionGenerateChunk:
		cell, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		if cell.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		if state.ChunksGenerated[a.ChunkID] {
			return reject(ReasonChunkGenerationFailed, "chunk "+a.ChunkID+" already generated")
		}
		if state.ChunkBudget <= 0 {
			return reject(ReasonChunkGenerationFailed, "chunk generation budget exhausted")
		}
		return domain(DomainEvent{Kind: EventChunkGenerated, AgentID: a.AgentID, ChunkID: a.ChunkID})

	case ActionTransitToLocation:
		cell, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		if cell.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		facility, ok := state.Facilities[a.LocationID]
		if !ok {
			return reject(ReasonFacilityNotFound, "location "+a.LocationID+" not found")
		}
		if cell.State.Position.Distance(facility.Position) > MaxMoveDistance {
			return reject(ReasonLocationTransferNotAllowed, "agent too far from location to transit")
		}
		return domain(DomainEvent{Kind: EventLocationTransferred, AgentID: a.AgentID, LocationID: a.LocationID})

	case ActionShutdownAgent:
		cell, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		if cell.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" already shut down")
		}
		return domain(DomainEvent{Kind: EventAgentShutdown, AgentID: a.AgentID})

	case ActionInstallModule:
		if _, exists := state.Modules[a.ModuleID]; exists {
			return reject(ReasonRuleDenied, "module "+a.ModuleID+" already installed")
		}
		return domain(DomainEvent{Kind: EventModuleInstalled, ModuleID: a.ModuleID, Notes: a.WasmHash})

	case ActionProduceAtFactory:
		agentA, ok := state.Agents[a.AgentID]
		if !ok {
			return reject(ReasonAgentNotFound, "agent "+a.AgentID+" not found")
		}
		if agentA.State.ShutDown {
			return reject(ReasonAgentShutdown, "agent "+a.AgentID+" is shut down")
		}
		factory, ok := state.Factories[a.FactoryID]
		if !ok {
			return reject(ReasonFacilityNotFound, "factory "+a.FactoryID+" not found")
		}
		if agentA.State.Position.Distance(factory.Position) > MaxTransferDistance {
			return reject(ReasonAgentNotAtLocation, "agent not at factory location")
		}
		if factory.Busy && state.Time < factory.FreeAt {
			return reject(ReasonFactoryBusy, "factory "+a.FactoryID+" is busy")
		}
		if productionDisabled(state) {
			return reject(ReasonRuleDenied, "production disabled by manifest")
		}
		return domain(DomainEvent{Kind: EventFactoryProduced, AgentID: a.AgentID, FactoryID: a.FactoryID})

	default:
		return reject(ReasonRuleDenied, "unknown action kind")
	}
}

func inBounds(p Position) bool {
	return p.X >= WorldBoundMin && p.X <= WorldBoundMax && p.Y >= WorldBoundMin && p.Y <= WorldBoundMax
}

func productionDisabled(state WorldState) bool {
	v, ok := state.Manifest.Content["production_enabled"]
	if !ok {
		return false
	}
	enabled, ok := v.(bool)
	return ok && !enabled
}

// applyEventBody is the ONLY function allowed to mutate WorldState. It is
// called exactly once per appended WorldEvent, whether that event came
// from action_to_event, emit_effect, ingest_receipt, governance, or
// rollback/snapshot replay — replaying the same journal through this
// function from an empty state must reproduce identical state, which is
// the kernel's core determinism guarantee.
func (k *Kernel) applyEventBody(body EventBody) {
	switch body.Kind {
	case BodyDomain:
		k.applyDomainEvent(body.Domain)
	case BodyManifestUpdated:
		k.state.Manifest = body.ManifestUpdate.Manifest
	case BodyModuleStateUpdated:
		// Module state itself lives in the sandbox's own snapshot, keyed by
		// module_id; the kernel only needs to know a tick happened so
		// StepWithModules can schedule the next one.
		if entry, ok := k.state.Modules[body.Module.ModuleID]; ok {
			entry.NextTickAt = k.state.Time + entry.TickInterval
			k.state.Modules[body.Module.ModuleID] = entry
		}
	default:
		// EffectQueued, ReceiptAppended, PolicyDecisionRecorded,
		// Governance (pre-Applied), SnapshotCreated, RollbackApplied,
		// ModuleEvent/ModuleEmitted/ModuleCallFailed/ModuleRuntimeCharged
		// are journal-only records; they don't mutate WorldState beyond
		// what their paired BodyDomain/BodyManifestUpdated event already
		// applies.
	}
}

func (k *Kernel) applyDomainEvent(ev *DomainEvent) {
	switch ev.Kind {
	case EventAgentRegistered:
		k.state.Agents[ev.AgentID] = &AgentCell{
			State:      AgentState{Position: *ev.To, Materials: make(map[string]int64)},
			LastActive: k.state.Time,
		}
	case EventAgentMoved:
		if cell, ok := k.state.Agents[ev.AgentID]; ok {
			cell.State.Position = *ev.To
		}
	case EventMaterialTransferred:
		src := k.state.Agents[ev.AgentID]
		dst := k.state.Agents[ev.OtherAgentID]
		if src != nil && dst != nil {
			if src.State.Materials == nil {
				src.State.Materials = make(map[string]int64)
			}
			if dst.State.Materials == nil {
				dst.State.Materials = make(map[string]int64)
			}
			src.State.Materials[ev.Resource] -= ev.Amount
			dst.State.Materials[ev.Resource] += ev.Amount
		}
	case EventPowerTransferred:
		src := k.state.Agents[ev.AgentID]
		dst := k.state.Agents[ev.OtherAgentID]
		if src != nil && dst != nil {
			src.State.PowerLevel -= ev.Amount
			dst.State.PowerLevel += ev.Amount
		}
	case EventChunkGenerated:
		if k.state.ChunksGenerated == nil {
			k.state.ChunksGenerated = make(map[string]bool)
		}
		k.state.ChunksGenerated[ev.ChunkID] = true
		k.state.ChunkBudget--
	case EventLocationTransferred:
		if cell, ok := k.state.Agents[ev.AgentID]; ok {
			cell.State.LocationID = ev.LocationID
			if facility, ok := k.state.Facilities[ev.LocationID]; ok {
				cell.State.Position = facility.Position
			}
		}
	case EventAgentShutdown:
		if cell, ok := k.state.Agents[ev.AgentID]; ok {
			cell.State.ShutDown = true
		}
	case EventModuleInstalled:
		k.state.Modules[ev.ModuleID] = ModuleManifestEntry{ModuleID: ev.ModuleID, WasmHash: ev.Notes}
	case EventFactoryProduced:
		if factory, ok := k.state.Factories[ev.FactoryID]; ok {
			factory.Busy = true
			factory.FreeAt = k.state.Time + 1
		}
		if k.state.RewardAccounts == nil {
			k.state.RewardAccounts = make(map[string]int64)
		}
		k.state.RewardAccounts[ev.AgentID]++
	case EventActionRejected:
		// No state change; the rejection itself is the record.
	}
}
