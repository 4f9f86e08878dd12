package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SingleWriterGuardState is the on-disk record backing SingleWriterReplicationGuard.
type SingleWriterGuardState struct {
	WriterID     string `json:"writer_id"`
	WriterEpoch  uint64 `json:"writer_epoch"`
	LastSequence uint64 `json:"last_sequence"`
}

// SingleWriterReplicationGuard enforces that only one writer_epoch's writer
// may mutate the replication store at a time, persisting its state next to
// the store so a restart can resume cleanly. Grounded on the teacher's
// pkg/store/outbox_store.go single-writer sequencing idiom, generalized from
// a Postgres-idempotency-key pattern into its own standalone, file-backed
// guard with epoch-based writer takeover.
type SingleWriterReplicationGuard struct {
	mu    sync.Mutex
	path  string
	state SingleWriterGuardState
}

// LoadSingleWriterGuard loads (or initializes) the guard file at path.
func LoadSingleWriterGuard(path string) (*SingleWriterReplicationGuard, error) {
	g := &SingleWriterReplicationGuard{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read replication guard: %w", err)
	}
	if err := json.Unmarshal(data, &g.state); err != nil {
		return nil, fmt.Errorf("store: parse replication guard: %w", err)
	}
	return g, nil
}

// State returns a copy of the guard's current persisted state.
func (g *SingleWriterReplicationGuard) State() SingleWriterGuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// AcquireWriter grants writer status to writerID at writerEpoch if either
// (a) writerID matches the current writer, or (b) writerEpoch strictly
// exceeds the persisted epoch (ties resolved by writer_id lexical order, per
// spec). On first acquisition of a fresh guard, any writer is accepted.
func (g *SingleWriterReplicationGuard) AcquireWriter(writerID string, writerEpoch uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.WriterID == "" {
		g.state.WriterID = writerID
		g.state.WriterEpoch = writerEpoch
		return g.persistLocked()
	}

	if writerID == g.state.WriterID {
		if writerEpoch > g.state.WriterEpoch {
			g.state.WriterEpoch = writerEpoch
		}
		return nil
	}

	switch {
	case writerEpoch > g.state.WriterEpoch:
		g.state.WriterID = writerID
		g.state.WriterEpoch = writerEpoch
		g.state.LastSequence = 0
		return g.persistLocked()
	case writerEpoch == g.state.WriterEpoch && strings.Compare(writerID, g.state.WriterID) < 0:
		g.state.WriterID = writerID
		g.state.LastSequence = 0
		return g.persistLocked()
	default:
		return fmt.Errorf("store: writer %s at epoch %d rejected: current writer %s at epoch %d",
			writerID, writerEpoch, g.state.WriterID, g.state.WriterEpoch)
	}
}

// NextSequence accepts a local write from the current writer, incrementing
// and persisting last_sequence, and returns the new value.
func (g *SingleWriterReplicationGuard) NextSequence(writerID string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if writerID != g.state.WriterID {
		return 0, fmt.Errorf("store: %s is not the current writer (%s)", writerID, g.state.WriterID)
	}
	g.state.LastSequence++
	if err := g.persistLocked(); err != nil {
		return 0, err
	}
	return g.state.LastSequence, nil
}

// AcceptRemoteWrite reports whether a write from writerID/writerEpoch/sequence
// should be accepted: a higher epoch always wins; within the same epoch,
// only a higher sequence than last_sequence is accepted.
func (g *SingleWriterReplicationGuard) AcceptRemoteWrite(writerID string, writerEpoch, sequence uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if writerEpoch > g.state.WriterEpoch {
		return true
	}
	if writerEpoch == g.state.WriterEpoch && writerID == g.state.WriterID {
		return sequence > g.state.LastSequence
	}
	return false
}

func (g *SingleWriterReplicationGuard) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("store: create replication guard dir: %w", err)
	}
	data, err := json.Marshal(g.state)
	if err != nil {
		return fmt.Errorf("store: marshal replication guard: %w", err)
	}
	return atomicWrite(g.path, data)
}
