package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/capabilities"
	"github.com/worldkernel/node/pkg/crypto"
	"github.com/worldkernel/node/pkg/governance"
	"github.com/worldkernel/node/pkg/manifest"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k, err := NewKernel(manifest.Manifest{Version: 1, Content: map[string]interface{}{}}, 10)
	require.NoError(t, err)
	return k
}

func TestRegisterAndMoveAgent(t *testing.T) {
	k := newTestKernel(t)

	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "agent-1", Position: Position{X: 0, Y: 0}})
	events := k.Step()
	require.Len(t, events, 1)
	require.Equal(t, BodyDomain, events[0].Body.Kind)
	require.Equal(t, EventAgentRegistered, events[0].Body.Domain.Kind)

	k.SubmitAction(Action{Kind: ActionMoveAgent, AgentID: "agent-1", Position: Position{X: 3, Y: 0}})
	events = k.Step()
	require.Len(t, events, 1)
	require.Equal(t, EventAgentMoved, events[0].Body.Domain.Kind)

	state := k.State()
	require.Equal(t, Position{X: 3, Y: 0}, state.Agents["agent-1"].State.Position)
}

func TestMoveAgentRejectedWhenNotFound(t *testing.T) {
	k := newTestKernel(t)
	k.SubmitAction(Action{Kind: ActionMoveAgent, AgentID: "ghost", Position: Position{X: 1, Y: 1}})
	events := k.Step()
	require.Len(t, events, 1)
	require.Equal(t, EventActionRejected, events[0].Body.Domain.Kind)
	require.Equal(t, ReasonAgentNotFound, events[0].Body.Domain.Reason)
}

func TestMoveDistanceExceeded(t *testing.T) {
	k := newTestKernel(t)
	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "a", Position: Position{X: 0, Y: 0}})
	k.Step()
	k.SubmitAction(Action{Kind: ActionMoveAgent, AgentID: "a", Position: Position{X: 100, Y: 0}})
	events := k.Step()
	require.Equal(t, EventActionRejected, events[0].Body.Domain.Kind)
	require.Equal(t, ReasonMoveDistanceExceeded, events[0].Body.Domain.Reason)
}

func TestEmitEffectAndIngestSignedReceipt(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("node-1")
	require.NoError(t, err)

	k, err := NewKernel(manifest.Manifest{Version: 1, Content: map[string]interface{}{}}, 10, WithReceiptSigner(signer))
	require.NoError(t, err)

	k.Capabilities().Put(capabilities.Grant{Name: "cap-weather", EffectKinds: []string{"weather.*"}})
	require.NoError(t, k.SetPolicyRules([]governance.Rule{
		{When: governance.When{EffectKind: strPtr("weather.query")}, Decision: governance.Decision{Allow: true}},
	}))

	intentID, err := k.EmitEffect("weather.query", map[string]interface{}{"city": "NYC"}, "cap-weather", Origin{Kind: OriginReducer, Name: "test"})
	require.NoError(t, err)
	require.NotEmpty(t, intentID)

	err = k.IngestReceipt(EffectReceipt{IntentID: intentID, Status: ReceiptOK, Payload: map[string]interface{}{"temp_f": 72}})
	require.NoError(t, err)

	err = k.IngestReceipt(EffectReceipt{IntentID: "unknown-intent", Status: ReceiptOK})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrReceiptUnknownIntent))
}

func TestEmitEffectPolicyDenied(t *testing.T) {
	k := newTestKernel(t)
	k.Capabilities().Put(capabilities.Grant{Name: "cap-all", EffectKinds: []string{"*"}})
	require.NoError(t, k.SetPolicyRules(nil))

	_, err := k.EmitEffect("dangerous.op", nil, "cap-all", Origin{Kind: OriginReducer})
	require.Error(t, err)
	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
}

func TestEmitEffectCapabilityMissing(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.EmitEffect("weather.query", nil, "no-such-cap", Origin{Kind: OriginReducer})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrCapabilityMissing))
}

func TestEmitEffectCapabilityExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	k := newTestKernel(t)
	k.Capabilities().Put(capabilities.Grant{Name: "cap-expired", EffectKinds: []string{"*"}, Expiry: &past})
	_, err := k.EmitEffect("weather.query", nil, "cap-expired", Origin{Kind: OriginReducer})
	require.Error(t, err)
	require.True(t, IsKind(err, ErrCapabilityExpired))
}

func TestSnapshotReplayLaw(t *testing.T) {
	k := newTestKernel(t)
	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "a", Position: Position{X: 0, Y: 0}})
	k.Step()
	k.SubmitAction(Action{Kind: ActionMoveAgent, AgentID: "a", Position: Position{X: 2, Y: 0}})
	k.Step()

	snap := k.Snapshot()
	restored, err := FromSnapshot(snap, k.Journal())
	require.NoError(t, err)
	require.Equal(t, k.State(), restored.State())
}

func TestRollbackToSnapshot(t *testing.T) {
	k := newTestKernel(t)
	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "a", Position: Position{X: 0, Y: 0}})
	k.Step()

	snap := k.Snapshot()
	priorLen := k.Journal().Len()

	k.SubmitAction(Action{Kind: ActionMoveAgent, AgentID: "a", Position: Position{X: 2, Y: 0}})
	k.Step()
	require.Equal(t, Position{X: 2, Y: 0}, k.State().Agents["a"].State.Position)

	require.NoError(t, k.RollbackToSnapshot(snap, "test rollback"))

	state := k.State()
	require.Equal(t, Position{X: 0, Y: 0}, state.Agents["a"].State.Position)

	events := k.Journal().Events()
	last := events[len(events)-1]
	require.Equal(t, BodyRollbackApplied, last.Body.Kind)
	require.Equal(t, priorLen+1, last.Body.Rollback.PriorJournalLen)
}

func TestSnapshotRetentionPrunesOldest(t *testing.T) {
	dir := t.TempDir()
	k, err := NewKernel(manifest.Manifest{Version: 1, Content: map[string]interface{}{}}, 10, WithMaxSnapshots(1))
	require.NoError(t, err)

	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "a", Position: Position{X: 0, Y: 0}})
	k.Step()
	_, err = k.CreateSnapshot(dir)
	require.NoError(t, err)

	k.SubmitAction(Action{Kind: ActionRegisterAgent, AgentID: "b", Position: Position{X: 1, Y: 1}})
	k.Step()
	_, err = k.CreateSnapshot(dir)
	require.NoError(t, err)

	require.Len(t, k.catalog.Records, 1)
}

func TestGovernanceLifecycleJournalOrder(t *testing.T) {
	k := newTestKernel(t)

	newManifest := &manifest.Manifest{Version: 2, Content: map[string]interface{}{"production_enabled": true}}
	id, err := k.ProposeManifest("alice", newManifest, nil)
	require.NoError(t, err)
	require.NoError(t, k.ShadowProposal(id))
	require.NoError(t, k.ApproveProposal(id, "bob"))
	require.NoError(t, k.ApplyProposal(id))

	events := k.Journal().Events()
	require.Len(t, events, 5) // Proposed, Shadowed, Approved, Applied, ManifestUpdated
	require.Equal(t, BodyGovernance, events[0].Body.Kind)
	require.Equal(t, GovEventProposed, events[0].Body.Governance.Kind)
	require.Equal(t, GovEventApplied, events[3].Body.Governance.Kind)
	require.Equal(t, BodyManifestUpdated, events[4].Body.Kind)
	require.Equal(t, uint64(2), k.State().Manifest.Version)
}

func strPtr(s string) *string { return &s }
