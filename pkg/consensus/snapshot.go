package consensus

import "math"

// PersistedState is the on-disk form of an Engine's State, written
// alongside a world kernel's own snapshot.json so a restarted node
// recovers consensus progress without replaying every block from genesis.
type PersistedState struct {
	Validators              []Validator            `json:"validators"`
	LocalValidatorID        string                 `json:"local_validator_id"`
	NodePlayerID            string                 `json:"node_player_id"`
	EpochLengthSlots        uint64                 `json:"epoch_length_slots"`
	RequireExecutionOnCommit bool                  `json:"require_execution_on_commit"`
	NextHeight              uint64                 `json:"next_height"`
	NextSlot                uint64                 `json:"next_slot"`
	CommittedHeight         uint64                 `json:"committed_height"`
	NetworkCommittedHeight  uint64                 `json:"network_committed_height"`
	LastCommittedBlockHash  string                 `json:"last_committed_block_hash"`
	LastExecutionHeight     uint64                 `json:"last_execution_height"`
	LastExecutionBlockHash  string                 `json:"last_execution_block_hash"`
	LastExecutionStateRoot  string                 `json:"last_execution_state_root"`
	PendingConsensusActions []ConsensusAction      `json:"pending_consensus_actions"`
}

// PersistSnapshot captures the engine's restorable state.
func (e *Engine) PersistSnapshot() PersistedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	validators := make([]Validator, 0, len(e.state.Validators))
	for _, v := range e.state.Validators {
		validators = append(validators, v)
	}
	actions := make([]ConsensusAction, len(e.state.PendingConsensusActions))
	copy(actions, e.state.PendingConsensusActions)

	return PersistedState{
		Validators:               validators,
		LocalValidatorID:         e.state.LocalValidatorID,
		NodePlayerID:             e.state.NodePlayerID,
		EpochLengthSlots:         e.state.EpochLengthSlots,
		RequireExecutionOnCommit: e.state.RequireExecutionOnCommit,
		NextHeight:               e.state.NextHeight,
		NextSlot:                 e.state.NextSlot,
		CommittedHeight:          e.state.CommittedHeight,
		NetworkCommittedHeight:   e.state.NetworkCommittedHeight,
		LastCommittedBlockHash:   e.state.LastCommittedBlockHash,
		LastExecutionHeight:      e.state.LastExecutionHeight,
		LastExecutionBlockHash:   e.state.LastExecutionBlockHash,
		LastExecutionStateRoot:   e.state.LastExecutionStateRoot,
		PendingConsensusActions:  actions,
	}
}

// RestoreStateSnapshot rebuilds an Engine from a PersistedState, rejecting
// any persisted height field that already sits at the u64 overflow
// sentinel rather than silently wrapping on the next advance.
func RestoreStateSnapshot(p PersistedState, opts ...Option) (*Engine, error) {
	if p.CommittedHeight == math.MaxUint64 || p.NetworkCommittedHeight == math.MaxUint64 || p.NextHeight == math.MaxUint64 {
		return nil, newConsensusErr("restore_state_snapshot: persisted height overflow")
	}

	e := NewEngine(p.Validators, p.LocalValidatorID, p.NodePlayerID, p.EpochLengthSlots, p.RequireExecutionOnCommit, opts...)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.NextHeight = p.NextHeight
	e.state.NextSlot = p.NextSlot
	e.state.CommittedHeight = p.CommittedHeight
	e.state.NetworkCommittedHeight = p.NetworkCommittedHeight
	e.state.LastCommittedBlockHash = p.LastCommittedBlockHash
	e.state.LastExecutionHeight = p.LastExecutionHeight
	e.state.LastExecutionBlockHash = p.LastExecutionBlockHash
	e.state.LastExecutionStateRoot = p.LastExecutionStateRoot
	e.mergeActionsLocked(p.PendingConsensusActions)

	return e, nil
}
