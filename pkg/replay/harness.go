package replay

import (
	"context"
	"fmt"

	"github.com/worldkernel/node/pkg/crypto"
)

// ReceiptRef names the engine that produced an EffectReceipt and the
// opaque script/parameters needed to reproduce its effect deterministically.
type ReceiptRef struct {
	IntentID string `json:"intent_id"`
	Engine   string `json:"engine"`
	Script   []byte `json:"script,omitempty"`
}

// Receipt is the minimal shape of an EffectReceipt needed to re-verify it:
// intent_id, status, payload and the signature covering them canonically.
type Receipt struct {
	IntentID   string `json:"intent_id"`
	Status     string `json:"status"`
	OutputHash string `json:"output_hash,omitempty"`
	Ref        *ReceiptRef
	Signature  string `json:"signature,omitempty"`
}

// ReplayEngine re-runs the side effect an EffectReceipt recorded, given the
// script/parameters its ReceiptRef carries.
type ReplayEngine interface {
	Replay(ctx context.Context, ref *ReceiptRef) ([]byte, error)
}

// ReplayHarness orchestrates re-execution of an EffectReceipt's underlying
// side effect across a registry of engines keyed by name, grounded on the
// teacher's multi-engine receipt replayer.
type ReplayHarness struct {
	engines map[string]ReplayEngine
}

func NewReplayHarness() *ReplayHarness {
	return &ReplayHarness{engines: make(map[string]ReplayEngine)}
}

func (h *ReplayHarness) RegisterEngine(name string, engine ReplayEngine) {
	h.engines[name] = engine
}

// VerifyReceipt re-executes the receipt's effect and confirms the
// reproduced output hashes to the same BLAKE3 digest the receipt recorded.
func (h *ReplayHarness) VerifyReceipt(ctx context.Context, receipt *Receipt) error {
	if receipt.Ref == nil {
		return fmt.Errorf("receipt %s has no replay reference", receipt.IntentID)
	}

	engine, ok := h.engines[receipt.Ref.Engine]
	if !ok {
		return fmt.Errorf("unknown replay engine: %s", receipt.Ref.Engine)
	}

	output, err := engine.Replay(ctx, receipt.Ref)
	if err != nil {
		return fmt.Errorf("replay execution failed: %w", err)
	}

	computedHash := crypto.Blake3Hex(output)
	if receipt.OutputHash != "" && computedHash != receipt.OutputHash {
		return fmt.Errorf("replay mismatch: expected %s, got %s", receipt.OutputHash, computedHash)
	}

	return nil
}
