// Package consensus implements the proof-of-stake engine that binds a
// world kernel's committed actions to a chain of signed, attested blocks:
// proposer rotation, attestation aggregation, quorum-gated commit, and
// execution-hook binding. Grounded on nhbchain's consensus/bft package
// (Vote/Proposal/Signature wire shapes, big.Int stake-weighted quorum) and
// consensus/proposer.go (deterministic rotation), re-expressed without
// nhbchain's secp256k1/Ethereum dependency: signing here goes through this
// project's own pkg/crypto Ed25519 Signer/Verifier, and hashing uses
// lukechampine.com/blake3 with fxamacker/cbor/v2 canonical framing rather
// than nhbchain's sha256+json.Marshal pair.
package consensus

import "fmt"

// Version is the wire-format version stamped into every consensus message.
const Version = 1

// ProposalStatus is the lifecycle state of a PendingProposal.
type ProposalStatus string

const (
	StatusPending   ProposalStatus = "Pending"
	StatusCommitted ProposalStatus = "Committed"
	StatusRejected  ProposalStatus = "Rejected"
)

// Validator is a single PoS committee member and its voting weight.
type Validator struct {
	ValidatorID string `cbor:"validator_id" json:"validator_id"`
	Stake       uint64 `cbor:"stake" json:"stake"`
}

// ConsensusAction is an opaque, canonically-encodable payload queued for
// inclusion in the next proposed block. CanonicalBytes is the exact byte
// string folded into action_root and must be stable across ticks (the
// caller is responsible for producing the same bytes for the same
// logical action, so deduplication-by-canonical-encoding is meaningful).
type ConsensusAction struct {
	CanonicalBytes []byte `cbor:"bytes" json:"bytes"`
}

// Attestation is one validator's vote on a pending proposal.
type Attestation struct {
	ValidatorID string `cbor:"validator_id" json:"validator_id"`
	Approve     bool   `cbor:"approve" json:"approve"`
	SourceEpoch uint64 `cbor:"source_epoch" json:"source_epoch"`
	TargetEpoch uint64 `cbor:"target_epoch" json:"target_epoch"`
	VotedAtMS   int64  `cbor:"voted_at_ms" json:"voted_at_ms"`
	Reason      string `cbor:"reason,omitempty" json:"reason,omitempty"`
}

// PendingProposal is the block currently under vote.
type PendingProposal struct {
	Height           uint64                 `json:"height"`
	Slot             uint64                 `json:"slot"`
	Epoch            uint64                 `json:"epoch"`
	ProposerID       string                 `json:"proposer_id"`
	ParentBlockHash  string                 `json:"parent_block_hash"`
	BlockHash        string                 `json:"block_hash"`
	ActionRoot       string                 `json:"action_root"`
	CommittedActions []ConsensusAction      `json:"committed_actions"`
	Attestations     map[string]Attestation `json:"attestations"`
	ApprovedStake    uint64                 `json:"approved_stake"`
	RejectedStake    uint64                 `json:"rejected_stake"`
	Status           ProposalStatus         `json:"status"`
}

// Decision is an immutable snapshot of a proposal at the end of a tick,
// used to drive execution binding and commit-message construction.
type Decision struct {
	Height           uint64
	Slot             uint64
	Epoch            uint64
	ProposerID       string
	BlockHash        string
	ActionRoot       string
	CommittedActions []ConsensusAction
	Status           ProposalStatus
}

// PeerCommittedHead is the last block height/hash a peer reported as
// committed, used to detect a local gap and trigger gap-sync.
type PeerCommittedHead struct {
	Height               uint64 `json:"height"`
	BlockHash            string `json:"block_hash"`
	CommittedAtMS        int64  `json:"committed_at_ms"`
	ExecutionBlockHash   string `json:"execution_block_hash,omitempty"`
	ExecutionStateRoot   string `json:"execution_state_root,omitempty"`
}

// ExecutionBinding is what an ExecutionHook returns after applying a
// committed block's actions to world state.
type ExecutionBinding struct {
	ExecutionHeight    uint64
	ExecutionBlockHash string
	ExecutionStateRoot string
}

// ExecutionHook applies a committed decision's actions to world state and
// returns the binding the engine folds into committed state and commit
// messages. Returning a zero-value ExecutionBinding except for a non-nil
// error signals failure.
type ExecutionHook func(d Decision) (ExecutionBinding, error)

// Error is a categorized consensus-layer error, matching spec's typed
// Consensus/Replication/Execution error taxonomy via its Kind field
// rather than sentinel values, since the set of reasons is open-ended.
type Error struct {
	Kind   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Reason) }

func newConsensusErr(reason string) *Error  { return &Error{Kind: "Consensus", Reason: reason} }
func newReplicationErr(reason string) *Error { return &Error{Kind: "Replication", Reason: reason} }
func newExecutionErr(reason string) *Error  { return &Error{Kind: "Execution", Reason: reason} }
