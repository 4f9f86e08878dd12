package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/crypto"
)

type fakeTransport struct {
	inbound    []InboundMessage
	proposals  []ProposalMessage
	commits    []CommitMessage
}

func (f *fakeTransport) DrainMessages() []InboundMessage {
	msgs := f.inbound
	f.inbound = nil
	return msgs
}
func (f *fakeTransport) BroadcastProposal(m ProposalMessage) error {
	f.proposals = append(f.proposals, m)
	return nil
}
func (f *fakeTransport) BroadcastAttestation(m AttestationMessage) error { return nil }
func (f *fakeTransport) BroadcastCommit(m CommitMessage) error {
	f.commits = append(f.commits, m)
	return nil
}

func TestTickCommitsWithSingleValidatorQuorum(t *testing.T) {
	e := NewEngine([]Validator{{ValidatorID: "v1", Stake: 10}}, "v1", "", 10, false,
		WithAutoAttestAllValidators(true))

	transport := &fakeTransport{}
	snap, batch, err := e.Tick("node-1", "world-1", 1000, transport, nil, []ConsensusAction{{CanonicalBytes: []byte("a1")}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.CommittedHeight)
	require.NotNil(t, batch)
	require.Len(t, batch.Actions, 1)
	require.Len(t, transport.proposals, 1)
	require.Len(t, transport.commits, 1)
}

func TestTickRequiresMoreStakeWithMultipleValidators(t *testing.T) {
	e := NewEngine([]Validator{
		{ValidatorID: "v1", Stake: 10},
		{ValidatorID: "v2", Stake: 10},
		{ValidatorID: "v3", Stake: 10},
	}, "v1", "", 10, false)

	snap, batch, err := e.Tick("node-1", "world-1", 1000, nil, nil, []ConsensusAction{{CanonicalBytes: []byte("a1")}})
	require.NoError(t, err)
	require.Nil(t, batch)
	require.Equal(t, uint64(0), snap.CommittedHeight)
	require.NotNil(t, snap.Pending)
}

func TestActionRootDeterministicAndSensitiveToOrder(t *testing.T) {
	a := []ConsensusAction{{CanonicalBytes: []byte("x")}, {CanonicalBytes: []byte("y")}}
	b := []ConsensusAction{{CanonicalBytes: []byte("y")}, {CanonicalBytes: []byte("x")}}
	require.Equal(t, ActionRoot(a), ActionRoot(a))
	require.NotEqual(t, ActionRoot(a), ActionRoot(b))
	require.NotEmpty(t, ActionRoot(nil))
}

func TestBlockHashChangesOnAnyFieldTamper(t *testing.T) {
	h1, err := BlockHash("world-1", 1, 0, 0, "v1", "", "root-a")
	require.NoError(t, err)
	h2, err := BlockHash("world-1", 1, 0, 0, "v1", "", "root-b")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	for _, tamper := range []func() (string, error){
		func() (string, error) { return BlockHash("world-2", 1, 0, 0, "v1", "", "root-a") },
		func() (string, error) { return BlockHash("world-1", 2, 0, 0, "v1", "", "root-a") },
		func() (string, error) { return BlockHash("world-1", 1, 1, 0, "v1", "", "root-a") },
		func() (string, error) { return BlockHash("world-1", 1, 0, 1, "v1", "", "root-a") },
		func() (string, error) { return BlockHash("world-1", 1, 0, 0, "v2", "", "root-a") },
		func() (string, error) { return BlockHash("world-1", 1, 0, 0, "v1", "parent", "root-a") },
	} {
		h, err := tamper()
		require.NoError(t, err)
		require.NotEqual(t, h1, h)
	}
}

func TestApplyDecisionRejectsHeightOverflow(t *testing.T) {
	e := NewEngine([]Validator{{ValidatorID: "v1", Stake: 1}}, "v1", "", 10, false)
	err := e.applyDecisionLocked(Decision{Height: ^uint64(0), Status: StatusCommitted})
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "Consensus", cerr.Kind)
}

func TestProposalSignatureVerification(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("node-1")
	require.NoError(t, err)

	msg := ProposalMessage{Version: 1, WorldID: "w", ProposerID: "v1", Height: 1, Slot: 0, Epoch: 0, BlockHash: "bh", ActionRoot: "ar"}
	require.NoError(t, SignProposal(&msg, signer))

	ok, err := VerifyProposal(msg, true)
	require.NoError(t, err)
	require.True(t, ok)

	msg.ActionRoot = "tampered"
	ok, err = VerifyProposal(msg, true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngestRejectsProposalFromUnboundSigner(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("node-1")
	require.NoError(t, err)
	other, err := crypto.NewEd25519Signer("node-2")
	require.NoError(t, err)

	e := NewEngine([]Validator{{ValidatorID: "v1", Stake: 10}}, "", "", 10, false,
		WithValidatorSigner("v1", signer.PublicKey()))

	msg := ProposalMessage{Version: 1, WorldID: "w", ProposerID: "v1", Height: 1, Slot: 0, Epoch: 0, BlockHash: "", ActionRoot: ActionRoot(nil)}
	require.NoError(t, SignProposal(&msg, other))

	transport := &fakeTransport{inbound: []InboundMessage{{Proposal: &msg}}}
	_, _, err = e.Tick("node-1", "w", 0, transport, nil, nil)
	require.NoError(t, err)

	snap := e.Snapshot()
	require.NotNil(t, snap.Pending)
	require.NotEqual(t, msg.BlockHash, snap.Pending.BlockHash, "forged proposal must not have been adopted")
}

type fakeReplicationClient struct {
	failAll bool
}

func (f *fakeReplicationClient) FetchCommit(worldID string, height uint64) (bool, string, string, error) {
	if f.failAll {
		return false, "", "", errTransport{}
	}
	return false, "", "", nil
}
func (f *fakeReplicationClient) FetchBlob(contentHash string) ([]byte, bool, error) {
	return nil, false, nil
}
func (f *fakeReplicationClient) ApplyCommit(height uint64, blockHash string, payload []byte) error {
	return nil
}

type errTransport struct{}

func (errTransport) Error() string { return "transport failure" }

func TestGapSyncExhaustsRetries(t *testing.T) {
	e := NewEngine([]Validator{{ValidatorID: "v1", Stake: 1}}, "v1", "", 10, false)
	e.mu.Lock()
	e.state.NetworkCommittedHeight = 3
	e.mu.Unlock()

	err := e.GapSync("world-1", &fakeReplicationClient{failAll: true}, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "gap sync height 1 failed after 3 attempts")
}

func TestRecordSyncedReplicationHeightRejectsOverflow(t *testing.T) {
	e := NewEngine([]Validator{{ValidatorID: "v1", Stake: 1}}, "v1", "", 10, false)
	err := e.RecordSyncedReplicationHeight(^uint64(0), "bh", 0)
	require.Error(t, err)
}

func TestRestoreStateSnapshotRejectsOverflow(t *testing.T) {
	_, err := RestoreStateSnapshot(PersistedState{CommittedHeight: ^uint64(0)})
	require.Error(t, err)
}
