package consensus

import (
	"math"
	"sort"
	"sync"

	"github.com/worldkernel/node/pkg/crypto"
)

// Transport is the engine's view of either gossip or the consensus pub/sub
// network: drain inbound messages, broadcast outbound ones. The engine
// depends only on this interface, and no non-test package in this
// repository implements it; "network preferred" (spec §4.I) is expressed by
// the caller choosing which Transport to pass into Tick.
type Transport interface {
	DrainMessages() []InboundMessage
	BroadcastProposal(ProposalMessage) error
	BroadcastAttestation(AttestationMessage) error
	BroadcastCommit(CommitMessage) error
}

// InboundMessage is one envelope pulled off a Transport's drain queue.
// Exactly one of Proposal/Attestation/Commit is set.
type InboundMessage struct {
	Proposal    *ProposalMessage
	Attestation *AttestationMessage
	Commit      *CommitMessage
}

// CommittedActionBatch is returned from Tick only on a genuine height
// advance with a non-empty action set.
type CommittedActionBatch struct {
	Height  uint64
	Actions []ConsensusAction
}

// Snapshot is the state returned from every Tick call, independent of
// whether a batch committed this round.
type Snapshot struct {
	CommittedHeight        uint64
	NetworkCommittedHeight uint64
	Pending                *PendingProposal
	LastCommittedBlockHash string
	LastExecutionHeight    uint64
	LastExecutionBlockHash string
	LastExecutionStateRoot string
}

// State is the engine's full persisted/restorable state, matching spec's
// PoS engine state record field-for-field.
type State struct {
	Validators             map[string]Validator
	ValidatorPlayers        map[string]string
	ValidatorSigners        map[string]string
	TotalStake              uint64
	RequiredStake           uint64
	EpochLengthSlots        uint64
	LocalValidatorID        string
	NodePlayerID            string
	RequireExecutionOnCommit bool

	NextHeight             uint64
	NextSlot               uint64
	CommittedHeight        uint64
	NetworkCommittedHeight uint64

	Pending   *PendingProposal
	PeerHeads map[string]PeerCommittedHead

	LastCommittedBlockHash string
	LastExecutionHeight    uint64
	LastExecutionBlockHash string
	LastExecutionStateRoot string

	PendingConsensusActions []ConsensusAction
	seenActionKeys          map[string]bool

	lastBroadcastHeight      uint64
	lastBroadcastAttestation string
}

// Engine drives tick() over a State, serialized behind one mutex per
// spec's single-threaded-per-shard kernel model.
type Engine struct {
	mu              sync.Mutex
	state           State
	signer          crypto.Signer
	enforceSignature bool
	autoAttestAll   bool
}

// Option configures a new Engine.
type Option func(*Engine)

// WithSigner installs the Ed25519 signer used for local proposals/
// attestations/commits.
func WithSigner(s crypto.Signer) Option { return func(e *Engine) { e.signer = s } }

// WithEnforceSignature toggles strict signature rejection on ingest.
func WithEnforceSignature(v bool) Option { return func(e *Engine) { e.enforceSignature = v } }

// WithAutoAttestAllValidators toggles single-process demo/test behavior
// where every validator's attestation is inserted locally each tick
// instead of only the local validator's own vote.
func WithAutoAttestAllValidators(v bool) Option { return func(e *Engine) { e.autoAttestAll = v } }

// WithValidatorSigner binds validatorID to its expected Ed25519 public key
// hex, so ingest can enforce that a message's signer matches the
// validator_id it claims to speak for (spec's "signer binding" check).
func WithValidatorSigner(validatorID, publicKeyHex string) Option {
	return func(e *Engine) { e.state.ValidatorSigners[validatorID] = publicKeyHex }
}

// NewEngine builds an Engine over the given validator set.
func NewEngine(validators []Validator, localValidatorID, nodePlayerID string, epochLengthSlots uint64, requireExecutionOnCommit bool, opts ...Option) *Engine {
	vset := make(map[string]Validator, len(validators))
	var total uint64
	for _, v := range validators {
		vset[v.ValidatorID] = v
		total += v.Stake
	}
	e := &Engine{
		state: State{
			Validators:               vset,
			ValidatorPlayers:         make(map[string]string),
			ValidatorSigners:         make(map[string]string),
			TotalStake:               total,
			RequiredStake:            requiredStake(total),
			EpochLengthSlots:         epochLengthSlots,
			LocalValidatorID:         localValidatorID,
			NodePlayerID:             nodePlayerID,
			RequireExecutionOnCommit: requireExecutionOnCommit,
			NextHeight:               1,
			NextSlot:                 0,
			PeerHeads:                make(map[string]PeerCommittedHead),
			seenActionKeys:           make(map[string]bool),
		},
		enforceSignature: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// requiredStake = ceil(2*total/3).
func requiredStake(total uint64) uint64 {
	return (2*total + 2) / 3
}

// Snapshot returns a copy of the engine's externally-visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	var pending *PendingProposal
	if e.state.Pending != nil {
		cp := *e.state.Pending
		pending = &cp
	}
	return Snapshot{
		CommittedHeight:        e.state.CommittedHeight,
		NetworkCommittedHeight: e.state.NetworkCommittedHeight,
		Pending:                pending,
		LastCommittedBlockHash: e.state.LastCommittedBlockHash,
		LastExecutionHeight:    e.state.LastExecutionHeight,
		LastExecutionBlockHash: e.state.LastExecutionBlockHash,
		LastExecutionStateRoot: e.state.LastExecutionStateRoot,
	}
}

// QueueAction enqueues actions for the next proposal, deduplicating by
// canonical encoding while preserving first-seen insertion order.
func (e *Engine) QueueAction(actions ...ConsensusAction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mergeActionsLocked(actions)
}

func (e *Engine) mergeActionsLocked(actions []ConsensusAction) {
	for _, a := range actions {
		key := string(a.CanonicalBytes)
		if e.state.seenActionKeys[key] {
			continue
		}
		e.state.seenActionKeys[key] = true
		e.state.PendingConsensusActions = append(e.state.PendingConsensusActions, a)
	}
}

// Tick runs the full nine-step procedure described in spec §4.G.
func (e *Engine) Tick(nodeID, worldID string, nowMS int64, transport Transport, execHook ExecutionHook, queuedActions []ConsensusAction) (Snapshot, *CommittedActionBatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Merge queued actions.
	e.mergeActionsLocked(queuedActions)

	// 2. Ingest peer messages.
	if transport != nil {
		for _, msg := range transport.DrainMessages() {
			e.ingestLocked(worldID, msg)
		}
	}

	// 3. Propose if nothing pending.
	if e.state.Pending == nil {
		if err := e.proposeNextHeadLocked(worldID, nowMS); err != nil {
			return e.snapshotLocked(), nil, err
		}
	} else {
		// 4. Advance attestations.
		e.advanceAttestationsLocked(nowMS)
	}

	// 5. Broadcast proposal + latest local attestation.
	if transport != nil {
		e.broadcastLocked(nodeID, worldID, transport)
	}

	var batch *CommittedActionBatch
	if e.state.Pending != nil && e.state.Pending.Status == StatusCommitted {
		decision := e.decisionFromPendingLocked()

		// 6. Resolve execution binding.
		if decision.Height > e.state.LastExecutionHeight {
			if execHook == nil {
				if e.state.RequireExecutionOnCommit {
					return e.snapshotLocked(), nil, newExecutionErr("execution hook required but absent")
				}
			} else {
				binding, err := execHook(decision)
				if err != nil {
					return e.snapshotLocked(), nil, newExecutionErr("hook failed: " + err.Error())
				}
				if binding.ExecutionHeight != decision.Height || binding.ExecutionBlockHash == "" || binding.ExecutionStateRoot == "" {
					return e.snapshotLocked(), nil, newExecutionErr("hook returned mismatched or empty binding")
				}
				e.state.LastExecutionHeight = binding.ExecutionHeight
				e.state.LastExecutionBlockHash = binding.ExecutionBlockHash
				e.state.LastExecutionStateRoot = binding.ExecutionStateRoot
			}
		}

		// 7. Apply decision.
		if err := e.applyDecisionLocked(decision); err != nil {
			return e.snapshotLocked(), nil, err
		}
		if len(decision.CommittedActions) > 0 {
			batch = &CommittedActionBatch{Height: decision.Height, Actions: decision.CommittedActions}
		}

		// 8. Broadcast commit.
		if transport != nil {
			commit := e.buildCommitMessageLocked(nodeID, worldID, decision, nowMS)
			_ = transport.BroadcastCommit(commit)
		}
	} else if e.state.Pending != nil && e.state.Pending.Status == StatusRejected {
		decision := e.decisionFromPendingLocked()
		if err := e.applyDecisionLocked(decision); err != nil {
			return e.snapshotLocked(), nil, err
		}
	}

	return e.snapshotLocked(), batch, nil
}

func (e *Engine) decisionFromPendingLocked() Decision {
	p := e.state.Pending
	return Decision{
		Height: p.Height, Slot: p.Slot, Epoch: p.Epoch, ProposerID: p.ProposerID,
		BlockHash: p.BlockHash, ActionRoot: p.ActionRoot,
		CommittedActions: p.CommittedActions, Status: p.Status,
	}
}

func (e *Engine) proposeNextHeadLocked(worldID string, nowMS int64) error {
	slot := e.state.NextSlot
	if slot == math.MaxUint64 {
		return newConsensusErr("slot overflow")
	}
	epoch := uint64(0)
	if e.state.EpochLengthSlots > 0 {
		epoch = slot / e.state.EpochLengthSlots
	}
	proposer := e.selectProposerLocked(slot)

	drained := e.state.PendingConsensusActions
	e.state.PendingConsensusActions = nil
	e.state.seenActionKeys = make(map[string]bool)

	actionRoot := ActionRoot(drained)
	blockHash, err := BlockHash(worldID, e.state.NextHeight, slot, epoch, proposer, e.state.LastCommittedBlockHash, actionRoot)
	if err != nil {
		return err
	}

	pending := &PendingProposal{
		Height: e.state.NextHeight, Slot: slot, Epoch: epoch,
		ProposerID: proposer, ParentBlockHash: e.state.LastCommittedBlockHash,
		BlockHash: blockHash, ActionRoot: actionRoot,
		CommittedActions: drained,
		Attestations:     make(map[string]Attestation),
		Status:           StatusPending,
	}
	e.state.Pending = pending

	// Auto-attest locally.
	if e.state.LocalValidatorID != "" {
		e.insertAttestationLocked(Attestation{
			ValidatorID: e.state.LocalValidatorID, Approve: true,
			SourceEpoch: epoch, TargetEpoch: epoch, VotedAtMS: nowMS,
			Reason: "local proposer auto-attest",
		})
	}

	e.state.NextSlot++
	return nil
}

func (e *Engine) advanceAttestationsLocked(nowMS int64) {
	if e.state.Pending == nil || e.state.Pending.Status != StatusPending {
		return
	}
	if e.autoAttestAll {
		ids := make([]string, 0, len(e.state.Validators))
		for id := range e.state.Validators {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if e.state.Pending.Status != StatusPending {
				break
			}
			if _, already := e.state.Pending.Attestations[id]; already {
				continue
			}
			e.insertAttestationLocked(Attestation{ValidatorID: id, Approve: true, VotedAtMS: nowMS, Reason: "auto-attest-all"})
		}
		return
	}
	if _, isValidator := e.state.Validators[e.state.LocalValidatorID]; isValidator {
		if _, already := e.state.Pending.Attestations[e.state.LocalValidatorID]; !already {
			e.insertAttestationLocked(Attestation{ValidatorID: e.state.LocalValidatorID, Approve: true, VotedAtMS: nowMS, Reason: "local validator attest"})
		}
	}
}

// insertAttestationLocked records an attestation against the pending
// proposal and recomputes Pending.Status against quorum thresholds.
func (e *Engine) insertAttestationLocked(att Attestation) {
	p := e.state.Pending
	if p == nil || p.Status != StatusPending {
		return
	}
	if _, exists := p.Attestations[att.ValidatorID]; exists {
		return
	}
	v, ok := e.state.Validators[att.ValidatorID]
	if !ok {
		return
	}
	p.Attestations[att.ValidatorID] = att
	if att.Approve {
		p.ApprovedStake += v.Stake
	} else {
		p.RejectedStake += v.Stake
	}
	if p.ApprovedStake >= e.state.RequiredStake {
		p.Status = StatusCommitted
	} else if p.RejectedStake > e.state.TotalStake-e.state.RequiredStake {
		p.Status = StatusRejected
	}
}

func (e *Engine) applyDecisionLocked(d Decision) error {
	if d.Height == math.MaxUint64 {
		return newConsensusErr("decision.height overflow")
	}
	switch d.Status {
	case StatusCommitted:
		e.state.CommittedHeight = d.Height
		e.state.LastCommittedBlockHash = d.BlockHash
		e.state.NextHeight = d.Height + 1
		e.state.Pending = nil
	case StatusRejected:
		// Restore drained actions back into pending_consensus_actions.
		e.mergeActionsLocked(d.CommittedActions)
		e.state.Pending = nil
	}
	return nil
}

func (e *Engine) buildCommitMessageLocked(nodeID, worldID string, d Decision, nowMS int64) CommitMessage {
	msg := CommitMessage{
		Version: Version, WorldID: worldID, NodeID: nodeID,
		PlayerID: e.state.NodePlayerID, ValidatorID: e.state.LocalValidatorID,
		Height: d.Height, Slot: d.Slot, Epoch: d.Epoch, BlockHash: d.BlockHash,
		CommittedAtMS: nowMS,
	}
	if d.Height == e.state.LastExecutionHeight {
		msg.ExecutionBlockHash = e.state.LastExecutionBlockHash
		msg.ExecutionStateRoot = e.state.LastExecutionStateRoot
	}
	if e.signer != nil {
		_ = SignCommit(&msg, e.signer)
	}
	return msg
}

func (e *Engine) broadcastLocked(nodeID, worldID string, transport Transport) {
	if e.state.Pending != nil && e.state.Pending.Height != e.state.lastBroadcastHeight {
		msg := ProposalMessage{
			Version: Version, WorldID: worldID, NodeID: nodeID, PlayerID: e.state.NodePlayerID,
			ProposerID: e.state.Pending.ProposerID, Height: e.state.Pending.Height,
			Slot: e.state.Pending.Slot, Epoch: e.state.Pending.Epoch,
			BlockHash: e.state.Pending.BlockHash, ActionRoot: e.state.Pending.ActionRoot,
			Actions: e.state.Pending.CommittedActions,
		}
		if e.signer != nil {
			_ = SignProposal(&msg, e.signer)
		}
		_ = transport.BroadcastProposal(msg)
		e.state.lastBroadcastHeight = e.state.Pending.Height
	}
	if att, ok := e.state.Pending.localAttestation(e.state.LocalValidatorID); ok {
		key := att.ValidatorID + ":" + boolStr(att.Approve)
		if key != e.state.lastBroadcastAttestation {
			msg := AttestationMessage{
				Version: Version, WorldID: worldID, NodeID: nodeID, PlayerID: e.state.NodePlayerID,
				ValidatorID: att.ValidatorID, Height: e.state.Pending.Height, Slot: e.state.Pending.Slot,
				Epoch: e.state.Pending.Epoch, BlockHash: e.state.Pending.BlockHash,
				Approve: att.Approve, SourceEpoch: att.SourceEpoch, TargetEpoch: att.TargetEpoch,
				VotedAtMS: att.VotedAtMS, Reason: att.Reason,
			}
			if e.signer != nil {
				_ = SignAttestation(&msg, e.signer)
			}
			_ = transport.BroadcastAttestation(msg)
			e.state.lastBroadcastAttestation = key
		}
	}
}

func (p *PendingProposal) localAttestation(validatorID string) (Attestation, bool) {
	if p == nil || validatorID == "" {
		return Attestation{}, false
	}
	att, ok := p.Attestations[validatorID]
	return att, ok
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// signerBoundLocked checks that a message claiming to speak for
// validatorID carries the public key registered for that validator, when
// one has been registered via WithValidatorSigner. An unbound validator ID
// passes through unchecked; enforcement is opt-in per validator.
func (e *Engine) signerBoundLocked(validatorID, publicKeyHex string) bool {
	expected, bound := e.state.ValidatorSigners[validatorID]
	if !bound || !e.enforceSignature {
		return true
	}
	return publicKeyHex == expected
}

// ingestLocked verifies and applies one inbound message, silently
// discarding anything that fails a check per spec §4.G step 2.
func (e *Engine) ingestLocked(worldID string, msg InboundMessage) {
	switch {
	case msg.Proposal != nil:
		e.ingestProposalLocked(worldID, *msg.Proposal)
	case msg.Attestation != nil:
		e.ingestAttestationLocked(worldID, *msg.Attestation)
	case msg.Commit != nil:
		e.ingestCommitLocked(worldID, *msg.Commit)
	}
}

func (e *Engine) ingestProposalLocked(worldID string, m ProposalMessage) {
	if m.Version != Version || m.WorldID != worldID {
		return
	}
	if m.Slot == math.MaxUint64 {
		return
	}
	if _, ok := e.state.Validators[m.ProposerID]; !ok {
		return
	}
	if !e.signerBoundLocked(m.ProposerID, m.PublicKeyHex) {
		return
	}
	if ok, err := VerifyProposal(m, e.enforceSignature); err != nil || !ok {
		return
	}
	if ActionRoot(m.Actions) != m.ActionRoot {
		return
	}
	if e.state.Pending == nil && m.Height == e.state.NextHeight {
		e.state.Pending = &PendingProposal{
			Height: m.Height, Slot: m.Slot, Epoch: m.Epoch, ProposerID: m.ProposerID,
			ParentBlockHash: e.state.LastCommittedBlockHash, BlockHash: m.BlockHash,
			ActionRoot: m.ActionRoot, CommittedActions: m.Actions,
			Attestations: make(map[string]Attestation), Status: StatusPending,
		}
	}
}

func (e *Engine) ingestAttestationLocked(worldID string, m AttestationMessage) {
	if m.Version != Version || m.WorldID != worldID {
		return
	}
	if _, ok := e.state.Validators[m.ValidatorID]; !ok {
		return
	}
	if !e.signerBoundLocked(m.ValidatorID, m.PublicKeyHex) {
		return
	}
	if ok, err := VerifyAttestation(m, e.enforceSignature); err != nil || !ok {
		return
	}
	if e.state.Pending == nil || e.state.Pending.Height != m.Height || e.state.Pending.BlockHash != m.BlockHash {
		return
	}
	e.insertAttestationLocked(Attestation{
		ValidatorID: m.ValidatorID, Approve: m.Approve,
		SourceEpoch: m.SourceEpoch, TargetEpoch: m.TargetEpoch,
		VotedAtMS: m.VotedAtMS, Reason: m.Reason,
	})
}

func (e *Engine) ingestCommitLocked(worldID string, m CommitMessage) {
	if m.Version != Version || m.WorldID != worldID {
		return
	}
	if _, ok := e.state.Validators[m.ValidatorID]; !ok {
		return
	}
	if !e.signerBoundLocked(m.ValidatorID, m.PublicKeyHex) {
		return
	}
	if ok, err := VerifyCommit(m, e.enforceSignature); err != nil || !ok {
		return
	}
	head := PeerCommittedHead{
		Height: m.Height, BlockHash: m.BlockHash, CommittedAtMS: m.CommittedAtMS,
		ExecutionBlockHash: m.ExecutionBlockHash, ExecutionStateRoot: m.ExecutionStateRoot,
	}
	e.state.PeerHeads[m.ValidatorID] = head
	if m.Height > e.state.NetworkCommittedHeight {
		e.state.NetworkCommittedHeight = m.Height
	}
}

// selectProposerLocked deterministically rotates proposer selection by
// slot over the byte-wise sorted validator ID list.
func (e *Engine) selectProposerLocked(slot uint64) string {
	ids := make([]string, 0, len(e.state.Validators))
	for id := range e.state.Validators {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[slot%uint64(len(ids))]
}
