package world

import "github.com/worldkernel/node/pkg/crypto"

// OriginKind distinguishes who asked for an effect: the reducer itself
// (e.g. a TransferMaterial that also debits an external ledger), a running
// module, or an operator-issued plan.
type OriginKind string

const (
	OriginReducer OriginKind = "Reducer"
	OriginModule  OriginKind = "Module"
	OriginPlan    OriginKind = "Plan"
)

// Origin records who requested an EffectIntent, fed into policy evaluation
// as origin_kind.
type Origin struct {
	Kind OriginKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// EffectIntent is a request for off-kernel work, queued after capability
// and policy checks pass, awaiting a matching EffectReceipt.
type EffectIntent struct {
	IntentID string                 `json:"intent_id"`
	Kind     string                 `json:"kind"`
	Params   map[string]interface{} `json:"params,omitempty"`
	CapRef   string                 `json:"cap_ref"`
	Origin   Origin                 `json:"origin"`
}

// ReceiptStatus is the outcome reported for a matched EffectIntent.
type ReceiptStatus string

const (
	ReceiptOK     ReceiptStatus = "Ok"
	ReceiptFailed ReceiptStatus = "Failed"
)

// EffectReceipt reports the outcome of carrying out an EffectIntent.
// Signature, if set on ingest, is verified against the signer's key before
// the receipt is accepted; if unset, ingest_receipt signs it itself.
type EffectReceipt struct {
	IntentID  string                 `json:"intent_id"`
	Status    ReceiptStatus          `json:"status"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CostCents *int64                 `json:"cost_cents,omitempty"`
	Signature string                 `json:"signature,omitempty"`
}

// receiptSigningPayload is the subset of EffectReceipt that gets canonically
// encoded and signed/verified; Signature itself is excluded so verification
// reproduces exactly what was signed.
type receiptSigningPayload struct {
	IntentID  string                 `json:"intent_id"`
	Status    ReceiptStatus          `json:"status"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CostCents *int64                 `json:"cost_cents,omitempty"`
}

// canonicalReceiptBytes returns the exact bytes ingest_receipt signs and
// verifies over, so both paths stay in lockstep by construction.
func canonicalReceiptBytes(r EffectReceipt) ([]byte, error) {
	return crypto.CanonicalMarshal(receiptSigningPayload{
		IntentID:  r.IntentID,
		Status:    r.Status,
		Payload:   r.Payload,
		CostCents: r.CostCents,
	})
}

// PolicyDecisionRecord is appended to the journal for every emit_effect
// call, whether the decision is Allow or Deny, so the policy evaluation
// trail survives replay even for denied intents that never reach
// pending_effects.
type PolicyDecisionRecord struct {
	IntentID   string     `json:"intent_id"`
	EffectKind string     `json:"effect_kind"`
	OriginKind OriginKind `json:"origin_kind"`
	CapName    string     `json:"cap_name"`
	Allow      bool       `json:"allow"`
	Reason     string     `json:"reason,omitempty"`
}
