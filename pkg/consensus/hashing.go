package consensus

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/worldkernel/node/pkg/crypto"
)

var canonicalCBOREncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("consensus: failed to build canonical CBOR encoder: " + err.Error())
	}
	return mode
}()

// CanonicalCBOR encodes v using RFC 7049 §3.9 canonical CBOR (deterministic
// map-key ordering, shortest-form integers), so the same logical value
// produces bit-identical bytes across implementations in any language.
func CanonicalCBOR(v interface{}) ([]byte, error) {
	return canonicalCBOREncMode.Marshal(v)
}

// ActionRoot computes the BLAKE3 hex digest over the canonical
// concatenation of every committed action's bytes, in the order given. An
// empty action list hashes the empty byte string, giving a well-defined
// empty root rather than a special-cased sentinel.
func ActionRoot(actions []ConsensusAction) string {
	var buf []byte
	for _, a := range actions {
		buf = append(buf, a.CanonicalBytes...)
	}
	return crypto.Blake3Hex(buf)
}

// blockHashTuple is the fixed-arity tuple whose canonical CBOR encoding is
// hashed to produce block_hash, matching spec's length-prefixed canonical
// encoding requirement for cross-language bit-identical hashing.
type blockHashTuple struct {
	_               struct{} `cbor:",toarray"`
	Version         uint64
	WorldID         string
	Height          uint64
	Slot            uint64
	Epoch           uint64
	ProposerID      string
	ParentBlockHash string
	ActionRoot      string
}

// BlockHash computes block_hash = BLAKE3(version=1 || world_id || height ||
// slot || epoch || proposer_id || parent_block_hash || action_root) with
// CBOR-canonical framing of that fixed-arity tuple.
func BlockHash(worldID string, height, slot, epoch uint64, proposerID, parentBlockHash, actionRoot string) (string, error) {
	tuple := blockHashTuple{
		Version:         Version,
		WorldID:         worldID,
		Height:          height,
		Slot:            slot,
		Epoch:           epoch,
		ProposerID:      proposerID,
		ParentBlockHash: parentBlockHash,
		ActionRoot:      actionRoot,
	}
	encoded, err := CanonicalCBOR(tuple)
	if err != nil {
		return "", err
	}
	return crypto.Blake3Hex(encoded), nil
}
