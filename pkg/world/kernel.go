package world

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worldkernel/node/pkg/capabilities"
	"github.com/worldkernel/node/pkg/crypto"
	"github.com/worldkernel/node/pkg/governance"
	"github.com/worldkernel/node/pkg/manifest"
)

// Kernel is the single authority over WorldState: every mutation flows
// through submit_action -> action_to_event -> append_event, or through
// emit_effect/ingest_receipt for the effect pipeline, or through
// governance's Proposed/Shadowed/Approved/Applied chain. Nothing else may
// touch state directly.
type Kernel struct {
	mu sync.Mutex

	state   WorldState
	journal *Journal

	nextEventID  EventID
	nextActionID ActionID

	pendingActions []ActionEnvelope

	pendingEffects  []EffectIntent
	inflightEffects []EffectIntent
	nextIntentSeq   uint64

	capabilities *capabilities.Registry
	policy       *governance.PolicySet
	policyRules  []governance.Rule
	lifecycle    *governance.LifecycleManager

	receiptSigner crypto.Signer

	catalog SnapshotCatalog

	moduleExec ModuleExecutor

	schedulerCursor string

	now func() time.Time
}

// Option configures a new Kernel.
type Option func(*Kernel)

// WithReceiptSigner installs the signer used to sign/verify EffectReceipts.
// Without one, ingest_receipt accepts receipts as-is without a signature
// check (used in tests and for capabilities that don't require signing).
func WithReceiptSigner(s crypto.Signer) Option {
	return func(k *Kernel) { k.receiptSigner = s }
}

// WithMaxSnapshots sets the retention policy enforced by CreateSnapshot.
func WithMaxSnapshots(n int) Option {
	return func(k *Kernel) { k.catalog.MaxSnapshots = n }
}

// WithModuleExecutor installs the sandbox-backed executor used by
// StepWithModules. Without one, module ticks are skipped.
func WithModuleExecutor(exec ModuleExecutor) Option {
	return func(k *Kernel) { k.moduleExec = exec }
}

// WithClock overrides the wall clock used for capability-expiry checks,
// for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(k *Kernel) { k.now = now }
}

// NewKernel creates an empty Kernel seeded with the given manifest and
// chunk-generation budget.
func NewKernel(m manifest.Manifest, chunkBudget int64, opts ...Option) (*Kernel, error) {
	policy, err := governance.NewPolicySet()
	if err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}

	k := &Kernel{
		state:        NewWorldState(m, chunkBudget),
		journal:      NewJournal(),
		nextEventID:  1,
		nextActionID: 1,
		capabilities: capabilities.NewRegistry(),
		policy:       policy,
		lifecycle:    governance.NewLifecycleManager(),
		catalog:      SnapshotCatalog{MaxSnapshots: 1},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// State returns a deep copy of the current world state.
func (k *Kernel) State() WorldState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Clone()
}

// Journal returns the kernel's live journal. Callers must not mutate it
// directly; use the Kernel's own methods (CreateSnapshot, RollbackToSnapshot).
func (k *Kernel) Journal() *Journal {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.journal
}

// Capabilities exposes the capability registry so a node runtime can
// install/revoke grants ahead of emit_effect calls.
func (k *Kernel) Capabilities() *capabilities.Registry { return k.capabilities }

// SetPolicyRules installs the ordered rule list emit_effect evaluates
// against every intent.
func (k *Kernel) SetPolicyRules(rules []governance.Rule) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.policy.SetRules(rules); err != nil {
		return newErr(ErrSerde, err.Error())
	}
	k.policyRules = rules
	return nil
}

// SubmitAction enqueues body for reduction on the next Step call and
// returns the ActionID it was allocated.
func (k *Kernel) SubmitAction(body Action) ActionID {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := k.nextActionID
	k.nextActionID++
	k.pendingActions = append(k.pendingActions, ActionEnvelope{
		ID:          id,
		Body:        body,
		SubmittedAt: k.state.Time,
	})
	return id
}

// Step advances the world clock by one tick, reducing every action
// submitted since the prior Step in submission order, and returns the
// WorldEvents appended as a result (in order).
func (k *Kernel) Step() []WorldEvent {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.state.Time++
	actions := k.pendingActions
	k.pendingActions = nil

	produced := make([]WorldEvent, 0, len(actions))
	for _, env := range actions {
		body := actionToEvent(k.state, env)
		ev := k.appendEventLocked(ActionCause(env.ID), body)
		produced = append(produced, ev)
	}
	return produced
}

// appendEvent locks and appends; used by snapshot/rollback/governance
// helpers that aren't already holding the lock.
func (k *Kernel) appendEvent(cause CausedBy, body EventBody) WorldEvent {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.appendEventLocked(cause, body)
}

// appendEventLocked allocates an EventID, applies the body to state, and
// appends the resulting WorldEvent to the journal. Caller must hold k.mu.
func (k *Kernel) appendEventLocked(cause CausedBy, body EventBody) WorldEvent {
	ev := WorldEvent{
		ID:       k.nextEventID,
		Time:     k.state.Time,
		CausedBy: cause,
		Body:     body,
	}
	k.nextEventID++
	k.applyEventBody(body)
	k.journal.Append(ev)
	return ev
}

// ScheduledAgentEvent is one DomainEvent popped from an agent's mailbox by
// the round-robin scheduler.
type ScheduledAgentEvent struct {
	AgentID string
	Event   DomainEvent
}

// ScheduleNext advances the round-robin cursor over agents with non-empty
// mailboxes (ordered by byte-wise agent-id comparison) and pops the head
// event from the next agent in line, reporting false if no agent has a
// pending mailbox entry.
func (k *Kernel) ScheduleNext() (ScheduledAgentEvent, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var ids []string
	for id, cell := range k.state.Agents {
		if len(cell.Mailbox) > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ScheduledAgentEvent{}, false
	}
	sort.Strings(ids)

	next := ids[0]
	for _, id := range ids {
		if id > k.schedulerCursor {
			next = id
			break
		}
	}

	cell := k.state.Agents[next]
	head := cell.Mailbox[0]
	cell.Mailbox = cell.Mailbox[1:]
	cell.LastActive = k.state.Time
	k.schedulerCursor = next

	return ScheduledAgentEvent{AgentID: next, Event: head}, true
}

// EmitEffect allocates an intent_id, checks the named capability grant,
// evaluates policy, and on Allow queues the intent for later ingest_receipt
// matching. The PolicyDecisionRecord is appended unconditionally, Allow or
// Deny, before the Allow-only EffectQueued event.
func (k *Kernel) EmitEffect(kind string, params map[string]interface{}, capRef string, origin Origin) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	// Capability refusals are journaled too, before any intent_id is allocated.
	deny := func(e *Error) (string, error) {
		k.appendEventLocked(NoneCause(), EventBody{Kind: BodyPolicyDecisionRecorded, PolicyDecision: &PolicyDecisionRecord{
			EffectKind: kind, OriginKind: origin.Kind, CapName: capRef, Allow: false, Reason: string(e.Kind),
		}})
		return "", e
	}

	grant, ok := k.capabilities.Lookup(capRef)
	if !ok {
		return deny(newErr(ErrCapabilityMissing, "no capability grant named "+capRef))
	}
	if grant.Expired(k.now()) {
		return deny(newErr(ErrCapabilityExpired, "capability grant "+capRef+" expired"))
	}
	if !grant.Allows(kind) {
		return deny(newErr(ErrCapabilityNotAllowed, "capability grant "+capRef+" does not cover effect kind "+kind))
	}

	k.nextIntentSeq++
	intentID := "intent-" + uuid.NewString()

	decision := k.policy.Evaluate(kind, string(origin.Kind), capRef)
	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyPolicyDecisionRecorded, PolicyDecision: &PolicyDecisionRecord{
		IntentID:   intentID,
		EffectKind: kind,
		OriginKind: origin.Kind,
		CapName:    capRef,
		Allow:      decision.Allow,
		Reason:     decision.Reason,
	}})

	if !decision.Allow {
		return intentID, &PolicyDeniedError{IntentID: intentID, Reason: decision.Reason}
	}

	intent := EffectIntent{IntentID: intentID, Kind: kind, Params: params, CapRef: capRef, Origin: origin}
	k.pendingEffects = append(k.pendingEffects, intent)
	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyEffectQueued, EffectIntent: &intent})

	return intentID, nil
}

// IngestReceipt matches receipt against a known pending or in-flight
// intent, verifying (or, if unsigned, producing) its signature, and
// appends a ReceiptAppended event whose cause is the matched intent.
// Exactly one queue entry is removed: pending_effects is checked first,
// then inflight_effects; if neither holds the intent, returns
// ErrReceiptUnknownIntent.
func (k *Kernel) IngestReceipt(receipt EffectReceipt) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx, fromPending := indexOfIntent(k.pendingEffects, receipt.IntentID)
	if idx < 0 {
		idx, fromPending = indexOfIntent(k.inflightEffects, receipt.IntentID)
		fromPending = false
		if idx < 0 {
			return newErr(ErrReceiptUnknownIntent, "no pending or in-flight intent "+receipt.IntentID)
		}
	}

	if k.receiptSigner != nil {
		payload, err := canonicalReceiptBytes(receipt)
		if err != nil {
			return newErr(ErrSerde, err.Error())
		}
		if receipt.Signature != "" {
			if v, ok := k.receiptSigner.(crypto.Verifier); ok {
				sigBytes, decErr := hex.DecodeString(receipt.Signature)
				if decErr != nil || !v.Verify(payload, sigBytes) {
					return newErr(ErrReceiptSigInvalid, "receipt signature does not verify for intent "+receipt.IntentID)
				}
			}
		} else {
			sig, err := k.receiptSigner.Sign(payload)
			if err != nil {
				return newErr(ErrSerde, err.Error())
			}
			receipt.Signature = sig
		}
	}

	if fromPending {
		k.pendingEffects = append(k.pendingEffects[:idx], k.pendingEffects[idx+1:]...)
	} else {
		k.inflightEffects = append(k.inflightEffects[:idx], k.inflightEffects[idx+1:]...)
	}

	k.appendEventLocked(EffectCause(receipt.IntentID), EventBody{Kind: BodyReceiptAppended, Receipt: &receipt})
	return nil
}

// MarkInflight moves a pending intent to in-flight, for a node runtime
// that dispatches queued intents to an external worker before the
// receipt comes back.
func (k *Kernel) MarkInflight(intentID string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	idx, _ := indexOfIntent(k.pendingEffects, intentID)
	if idx < 0 {
		return false
	}
	intent := k.pendingEffects[idx]
	k.pendingEffects = append(k.pendingEffects[:idx], k.pendingEffects[idx+1:]...)
	k.inflightEffects = append(k.inflightEffects, intent)
	return true
}

func indexOfIntent(intents []EffectIntent, id string) (int, bool) {
	for i, it := range intents {
		if it.IntentID == id {
			return i, true
		}
	}
	return -1, false
}
