package replay_test

import (
	"context"
	"testing"

	"github.com/worldkernel/node/pkg/crypto"
	"github.com/worldkernel/node/pkg/replay"
)

// mockReplayEngine implements replay.ReplayEngine for testing.
type mockReplayEngine struct{}

func (e *mockReplayEngine) Replay(ctx context.Context, ref *replay.ReceiptRef) ([]byte, error) {
	return []byte{}, nil
}

func TestReplayIntegration(t *testing.T) {
	ctx := context.Background()

	harness := replay.NewReplayHarness()
	harness.RegisterEngine("mock-engine", &mockReplayEngine{})

	receipt := &replay.Receipt{
		IntentID:   "intent-replay-test",
		Status:     "Ok",
		Ref:        &replay.ReceiptRef{IntentID: "intent-replay-test", Engine: "mock-engine"},
		OutputHash: crypto.Blake3Hex([]byte{}),
	}

	if err := harness.VerifyReceipt(ctx, receipt); err != nil {
		t.Fatalf("replay verification failed: %v", err)
	}
}
