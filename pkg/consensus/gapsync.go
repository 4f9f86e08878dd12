package consensus

import (
	"fmt"
	"math"

	"github.com/worldkernel/node/pkg/crypto"
)

// maxGapSyncRetries bounds the per-height retry budget for gap recovery.
const maxGapSyncRetries = 3

// ReplicationClient is the narrow replication-network surface the gap-sync
// procedure needs: fetch a commit record by height, fetch the blob it
// references, and hand the verified pair to the replication runtime for
// persistence. Callers supply the implementation (the package tests use a
// fake); pkg/consensus never depends on a concrete type.
type ReplicationClient interface {
	FetchCommit(worldID string, height uint64) (found bool, blockHash string, contentHash string, err error)
	FetchBlob(contentHash string) (data []byte, found bool, err error)
	ApplyCommit(height uint64, blockHash string, payload []byte) error
}

// GapSync fills the gap between CommittedHeight and NetworkCommittedHeight
// by fetching each missing height's commit record and blob from repl,
// verifying the blob's BLAKE3 digest matches the advertised content hash,
// then applying it and recording the synced height.
func (e *Engine) GapSync(worldID string, repl ReplicationClient, nowMS int64) error {
	e.mu.Lock()
	committed := e.state.CommittedHeight
	network := e.state.NetworkCommittedHeight
	e.mu.Unlock()

	if repl == nil || network <= committed+1 {
		return nil
	}

	for h := committed + 1; h <= network; h++ {
		var found bool
		var blockHash, contentHash string
		var lastErr error
		for attempt := 0; attempt < maxGapSyncRetries; attempt++ {
			var err error
			found, blockHash, contentHash, err = repl.FetchCommit(worldID, h)
			if err == nil {
				lastErr = nil
				break
			}
			lastErr = err
		}
		if lastErr != nil {
			return newReplicationErr(fmt.Sprintf("gap sync height %d failed after %d attempts", h, maxGapSyncRetries))
		}
		if !found {
			return nil
		}

		payload, blobFound, err := repl.FetchBlob(contentHash)
		if err != nil || !blobFound {
			return newReplicationErr(fmt.Sprintf("gap sync height %d failed after %d attempts", h, maxGapSyncRetries))
		}
		if crypto.Blake3Hex(payload) != contentHash {
			return newReplicationErr(fmt.Sprintf("gap sync height %d failed after %d attempts: blob hash mismatch", h, maxGapSyncRetries))
		}

		if err := repl.ApplyCommit(h, blockHash, payload); err != nil {
			return newReplicationErr(fmt.Sprintf("gap sync height %d failed after %d attempts: apply failed", h, maxGapSyncRetries))
		}

		if err := e.RecordSyncedReplicationHeight(h, blockHash, nowMS); err != nil {
			return err
		}
	}
	return nil
}

// RecordSyncedReplicationHeight advances CommittedHeight/LastCommittedBlockHash
// after a gap-sync fetch confirms persistence at height h.
func (e *Engine) RecordSyncedReplicationHeight(h uint64, blockHash string, _ int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h == math.MaxUint64 {
		return newReplicationErr("height overflow")
	}
	e.state.CommittedHeight = h
	e.state.LastCommittedBlockHash = blockHash
	if h >= e.state.NextHeight {
		e.state.NextHeight = h + 1
	}
	return nil
}
