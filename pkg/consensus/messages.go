package consensus

import (
	"github.com/worldkernel/node/pkg/crypto"
)

// ProposalMessage is the wire form of a proposed block, broadcast over the
// consensus network or gossip.
type ProposalMessage struct {
	Version         int               `json:"version"`
	WorldID         string            `json:"world_id"`
	NodeID          string            `json:"node_id"`
	PlayerID        string            `json:"player_id,omitempty"`
	ProposerID      string            `json:"proposer_id"`
	Height          uint64            `json:"height"`
	Slot            uint64            `json:"slot"`
	Epoch           uint64            `json:"epoch"`
	BlockHash       string            `json:"block_hash"`
	ActionRoot      string            `json:"action_root"`
	Actions         []ConsensusAction `json:"actions"`
	ProposedAtMS    int64             `json:"proposed_at_ms"`
	PublicKeyHex    string            `json:"public_key_hex,omitempty"`
	SignatureHex    string            `json:"signature_hex,omitempty"`
}

// AttestationMessage is the wire form of one validator's vote on a
// proposal.
type AttestationMessage struct {
	Version      int    `json:"version"`
	WorldID      string `json:"world_id"`
	NodeID       string `json:"node_id"`
	PlayerID     string `json:"player_id,omitempty"`
	ValidatorID  string `json:"validator_id"`
	Height       uint64 `json:"height"`
	Slot         uint64 `json:"slot"`
	Epoch        uint64 `json:"epoch"`
	BlockHash    string `json:"block_hash"`
	Approve      bool   `json:"approve"`
	SourceEpoch  uint64 `json:"source_epoch"`
	TargetEpoch  uint64 `json:"target_epoch"`
	VotedAtMS    int64  `json:"voted_at_ms"`
	Reason       string `json:"reason,omitempty"`
	PublicKeyHex string `json:"public_key_hex,omitempty"`
	SignatureHex string `json:"signature_hex,omitempty"`
}

// CommitMessage is AttestationMessage's shape minus Approve, plus the
// committed-at timestamp and optional execution binding.
type CommitMessage struct {
	Version            int    `json:"version"`
	WorldID            string `json:"world_id"`
	NodeID             string `json:"node_id"`
	PlayerID           string `json:"player_id,omitempty"`
	ValidatorID        string `json:"validator_id"`
	Height             uint64 `json:"height"`
	Slot               uint64 `json:"slot"`
	Epoch              uint64 `json:"epoch"`
	BlockHash          string `json:"block_hash"`
	SourceEpoch        uint64 `json:"source_epoch"`
	TargetEpoch        uint64 `json:"target_epoch"`
	VotedAtMS          int64  `json:"voted_at_ms"`
	Reason             string `json:"reason,omitempty"`
	CommittedAtMS      int64  `json:"committed_at_ms"`
	ExecutionBlockHash string `json:"execution_block_hash,omitempty"`
	ExecutionStateRoot string `json:"execution_state_root,omitempty"`
	PublicKeyHex       string `json:"public_key_hex,omitempty"`
	SignatureHex       string `json:"signature_hex,omitempty"`
}

// signingTuple values are what gets canonical-CBOR-encoded and signed for
// each message kind; field order is part of the wire contract.
type proposalSigningTuple struct {
	_          struct{} `cbor:",toarray"`
	Version    int
	WorldID    string
	ProposerID string
	Height     uint64
	Slot       uint64
	Epoch      uint64
	BlockHash  string
	ActionRoot string
}

type attestationSigningTuple struct {
	_           struct{} `cbor:",toarray"`
	Version     int
	WorldID     string
	ValidatorID string
	Height      uint64
	Slot        uint64
	Epoch       uint64
	BlockHash   string
	Approve     bool
}

type commitSigningTuple struct {
	_                  struct{} `cbor:",toarray"`
	Version            int
	WorldID            string
	ValidatorID        string
	Height             uint64
	Slot               uint64
	Epoch              uint64
	BlockHash          string
	ExecutionBlockHash string
	ExecutionStateRoot string
}

// SignProposal signs m's canonical CBOR signing payload and stamps the
// public key + signature hex into m.
func SignProposal(m *ProposalMessage, signer crypto.Signer) error {
	payload, err := CanonicalCBOR(proposalSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ProposerID: m.ProposerID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch,
		BlockHash: m.BlockHash, ActionRoot: m.ActionRoot,
	})
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	m.SignatureHex = sig
	m.PublicKeyHex = signer.PublicKey()
	return nil
}

// VerifyProposal checks m's signature, if present. Returns true (valid) if
// enforce is false and no signature was supplied.
func VerifyProposal(m ProposalMessage, enforce bool) (bool, error) {
	if m.SignatureHex == "" {
		return !enforce, nil
	}
	payload, err := CanonicalCBOR(proposalSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ProposerID: m.ProposerID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch,
		BlockHash: m.BlockHash, ActionRoot: m.ActionRoot,
	})
	if err != nil {
		return false, err
	}
	return crypto.Verify(m.PublicKeyHex, m.SignatureHex, payload)
}

// SignAttestation signs m's canonical CBOR signing payload.
func SignAttestation(m *AttestationMessage, signer crypto.Signer) error {
	payload, err := CanonicalCBOR(attestationSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ValidatorID: m.ValidatorID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch,
		BlockHash: m.BlockHash, Approve: m.Approve,
	})
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	m.SignatureHex = sig
	m.PublicKeyHex = signer.PublicKey()
	return nil
}

// VerifyAttestation checks m's signature, if present.
func VerifyAttestation(m AttestationMessage, enforce bool) (bool, error) {
	if m.SignatureHex == "" {
		return !enforce, nil
	}
	payload, err := CanonicalCBOR(attestationSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ValidatorID: m.ValidatorID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch,
		BlockHash: m.BlockHash, Approve: m.Approve,
	})
	if err != nil {
		return false, err
	}
	return crypto.Verify(m.PublicKeyHex, m.SignatureHex, payload)
}

// SignCommit signs m's canonical CBOR signing payload, which covers
// block_hash, execution_block_hash, and execution_state_root so tampering
// with any of the three invalidates the signature.
func SignCommit(m *CommitMessage, signer crypto.Signer) error {
	payload, err := CanonicalCBOR(commitSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ValidatorID: m.ValidatorID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch, BlockHash: m.BlockHash,
		ExecutionBlockHash: m.ExecutionBlockHash, ExecutionStateRoot: m.ExecutionStateRoot,
	})
	if err != nil {
		return err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	m.SignatureHex = sig
	m.PublicKeyHex = signer.PublicKey()
	return nil
}

// VerifyCommit checks m's signature, if present.
func VerifyCommit(m CommitMessage, enforce bool) (bool, error) {
	if m.SignatureHex == "" {
		return !enforce, nil
	}
	payload, err := CanonicalCBOR(commitSigningTuple{
		Version: m.Version, WorldID: m.WorldID, ValidatorID: m.ValidatorID,
		Height: m.Height, Slot: m.Slot, Epoch: m.Epoch, BlockHash: m.BlockHash,
		ExecutionBlockHash: m.ExecutionBlockHash, ExecutionStateRoot: m.ExecutionStateRoot,
	})
	if err != nil {
		return false, err
	}
	return crypto.Verify(m.PublicKeyHex, m.SignatureHex, payload)
}
