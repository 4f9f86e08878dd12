package world

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/worldkernel/node/pkg/canonicalize"
	"github.com/worldkernel/node/pkg/capabilities"
	"github.com/worldkernel/node/pkg/governance"
)

// Snapshot is a point-in-time capture of everything needed to reconstruct
// the kernel without replaying from event 0: the world state itself, the
// journal length/last event id it was taken at, the in-flight effect
// queues, and the capability/policy/proposal tables governance mutates
// outside the journal's DomainEvent stream.
type Snapshot struct {
	State           WorldState                  `json:"state"`
	JournalLen      int                          `json:"journal_len"`
	LastEventID     EventID                      `json:"last_event_id"`
	NextActionID    ActionID                     `json:"next_action_id"`
	PendingEffects  []EffectIntent               `json:"pending_effects,omitempty"`
	InflightEffects []EffectIntent               `json:"inflight_effects,omitempty"`
	Capabilities    map[string]capabilities.Grant `json:"capabilities,omitempty"`
	PolicyRules     []governance.Rule            `json:"policy_rules,omitempty"`
	Proposals       map[string]*governance.Proposal `json:"proposals,omitempty"`
}

// Hash returns the canonical content hash identifying this snapshot,
// used as its filename and as SnapshotRecord.SnapshotHash.
func (s Snapshot) Hash() (string, error) {
	h, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return "", fmt.Errorf("world: hash snapshot: %w", err)
	}
	return h, nil
}

// SnapshotRecord is the catalog entry describing a persisted snapshot
// without holding its (potentially large) state payload in memory.
type SnapshotRecord struct {
	SnapshotHash string    `json:"snapshot_hash"`
	JournalLen   int       `json:"journal_len"`
	CreatedAt    WorldTime `json:"created_at"`
	ManifestHash string    `json:"manifest_hash"`
}

// SnapshotCatalog tracks known snapshots and enforces a retention policy:
// once more than MaxSnapshots records exist, the oldest are dropped and
// their backing files deleted. MaxSnapshots == 0 means "keep none": every
// CreateSnapshot call immediately prunes everything, including itself.
type SnapshotCatalog struct {
	Records      []SnapshotRecord `json:"records"`
	MaxSnapshots int              `json:"max_snapshots"`
}

// add appends rec and returns the hashes of any records evicted by
// retention so the caller can delete their backing files.
func (c *SnapshotCatalog) add(rec SnapshotRecord) []string {
	c.Records = append(c.Records, rec)
	return c.prune()
}

func (c *SnapshotCatalog) prune() []string {
	var evicted []string
	for len(c.Records) > c.MaxSnapshots {
		evicted = append(evicted, c.Records[0].SnapshotHash)
		c.Records = c.Records[1:]
	}
	return evicted
}

// pruneSnapshotFiles deletes any file in dir/snapshots not referenced by a
// surviving catalog record. CreateSnapshot calls it after every snapshot it
// writes to a directory.
func pruneSnapshotFiles(dir string, catalog SnapshotCatalog) error {
	snapDir := filepath.Join(dir, "snapshots")
	entries, err := os.ReadDir(snapDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return newErr(ErrIO, err.Error())
	}

	keep := make(map[string]bool, len(catalog.Records))
	for _, r := range catalog.Records {
		keep[r.SnapshotHash+".json"] = true
	}
	for _, e := range entries {
		if e.IsDir() || keep[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(snapDir, e.Name())); err != nil {
			return newErr(ErrIO, err.Error())
		}
	}
	return nil
}

// Snapshot captures the kernel's current state and bookkeeping into a
// Snapshot value. The replay law `from_snapshot(k.Snapshot(), k.Journal())
// .State() == k.State()` must hold for any kernel at any point.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Snapshot{
		State:           k.state.Clone(),
		JournalLen:      k.journal.Len(),
		LastEventID:     k.nextEventID - 1,
		NextActionID:    k.nextActionID,
		PendingEffects:  append([]EffectIntent(nil), k.pendingEffects...),
		InflightEffects: append([]EffectIntent(nil), k.inflightEffects...),
		Capabilities:    k.capabilities.Snapshot(),
		PolicyRules:     append([]governance.Rule(nil), k.policyRules...),
		Proposals:       k.lifecycle.SnapshotProposals(),
	}
}

// FromSnapshot reconstructs a Kernel from snap, replaying every journal
// event after snap.JournalLen to bring it current with journal's full
// length. journal.Len() must be >= snap.JournalLen or this returns
// ErrJournalMismatch: a snapshot can never be ahead of the journal it is
// restored against.
func FromSnapshot(snap Snapshot, journal *Journal) (*Kernel, error) {
	if snap.JournalLen > journal.Len() {
		return nil, newErr(ErrJournalMismatch, fmt.Sprintf("snapshot journal_len %d exceeds journal length %d", snap.JournalLen, journal.Len()))
	}

	caps := capabilities.NewRegistry()
	for _, g := range snap.Capabilities {
		caps.Put(g)
	}
	policySet, err := governance.NewPolicySet()
	if err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}
	if err := policySet.SetRules(snap.PolicyRules); err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}

	k := &Kernel{
		state:           snap.State.Clone(),
		journal:         journal,
		nextEventID:     snap.LastEventID + 1,
		nextActionID:    snap.NextActionID,
		pendingEffects:  append([]EffectIntent(nil), snap.PendingEffects...),
		inflightEffects: append([]EffectIntent(nil), snap.InflightEffects...),
		capabilities:    caps,
		policy:          policySet,
		policyRules:     append([]governance.Rule(nil), snap.PolicyRules...),
		lifecycle:       governance.NewLifecycleManager(),
		catalog:         SnapshotCatalog{MaxSnapshots: 1},
		now:             time.Now,
	}
	k.lifecycle.RestoreProposals(snap.Proposals)

	for _, ev := range journal.Slice(snap.JournalLen) {
		k.state.Time = ev.Time
		k.applyEventBody(ev.Body)
		k.nextEventID = ev.ID + 1
	}
	return k, nil
}

// CreateSnapshot captures the kernel, persists it under dir/snapshots, adds
// a SnapshotCreated event to the journal, and enforces retention,
// returning the new record.
func (k *Kernel) CreateSnapshot(dir string) (SnapshotRecord, error) {
	snap := k.Snapshot()
	hash, err := snap.Hash()
	if err != nil {
		return SnapshotRecord{}, err
	}
	manifestHash, err := snap.State.Manifest.Hash()
	if err != nil {
		return SnapshotRecord{}, newErr(ErrSerde, err.Error())
	}

	rec := SnapshotRecord{
		SnapshotHash: hash,
		JournalLen:   snap.JournalLen,
		CreatedAt:    k.state.Time,
		ManifestHash: manifestHash,
	}

	if dir != "" {
		snapDir := filepath.Join(dir, "snapshots")
		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			return SnapshotRecord{}, newErr(ErrIO, err.Error())
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return SnapshotRecord{}, newErr(ErrSerde, err.Error())
		}
		if err := os.WriteFile(filepath.Join(snapDir, hash+".json"), data, 0o644); err != nil {
			return SnapshotRecord{}, newErr(ErrIO, err.Error())
		}
	}

	k.catalog.add(rec)
	if dir != "" {
		if err := pruneSnapshotFiles(dir, k.catalog); err != nil {
			return SnapshotRecord{}, err
		}
	}

	k.appendEvent(NoneCause(), EventBody{Kind: BodySnapshotCreated, SnapshotMeta: &rec})
	return rec, nil
}

// RollbackToSnapshot truncates the journal back to snap.JournalLen,
// rebuilds state from snap, and appends a RollbackApplied event recording
// the journal length immediately before truncation.
func (k *Kernel) RollbackToSnapshot(snap Snapshot, reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if snap.JournalLen > k.journal.Len() {
		return newErr(ErrJournalMismatch, fmt.Sprintf("snapshot journal_len %d exceeds journal length %d", snap.JournalLen, k.journal.Len()))
	}

	priorLen := k.journal.Len()
	snapHash, err := snap.Hash()
	if err != nil {
		return err
	}

	k.journal.Truncate(snap.JournalLen)
	k.state = snap.State.Clone()
	k.nextEventID = snap.LastEventID + 1
	k.nextActionID = snap.NextActionID
	k.pendingEffects = append([]EffectIntent(nil), snap.PendingEffects...)
	k.inflightEffects = append([]EffectIntent(nil), snap.InflightEffects...)

	caps := capabilities.NewRegistry()
	for _, g := range snap.Capabilities {
		caps.Put(g)
	}
	k.capabilities = caps
	if err := k.policy.SetRules(snap.PolicyRules); err != nil {
		return newErr(ErrSerde, err.Error())
	}
	k.policyRules = append([]governance.Rule(nil), snap.PolicyRules...)
	k.lifecycle = governance.NewLifecycleManager()
	k.lifecycle.RestoreProposals(snap.Proposals)

	// Residual replay: after truncation journal.Len() == snap.JournalLen,
	// so this loop replays no events.
	for _, ev := range k.journal.Slice(snap.JournalLen) {
		k.applyEventBody(ev.Body)
	}

	k.appendEventLocked(NoneCause(), EventBody{Kind: BodyRollbackApplied, Rollback: &RollbackRecord{
		PriorJournalLen: priorLen,
		SnapshotHash:    snapHash,
		Reason:          reason,
	}})
	return nil
}

// SaveToDir persists the journal and the latest snapshot pointer to dir, so
// LoadFromDir can reconstruct an equivalent kernel after a process restart.
func (k *Kernel) SaveToDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newErr(ErrIO, err.Error())
	}
	journalData, err := json.Marshal(k.journal.Events())
	if err != nil {
		return newErr(ErrSerde, err.Error())
	}
	if err := os.WriteFile(filepath.Join(dir, "journal.json"), journalData, 0o644); err != nil {
		return newErr(ErrIO, err.Error())
	}

	rec, err := k.CreateSnapshot(dir)
	if err != nil {
		return err
	}
	pointer := struct {
		Current SnapshotRecord  `json:"current"`
		Catalog SnapshotCatalog `json:"catalog"`
	}{Current: rec, Catalog: k.catalog}
	pointerData, err := json.Marshal(pointer)
	if err != nil {
		return newErr(ErrSerde, err.Error())
	}
	return writeFileAtomic(filepath.Join(dir, "snapshot.json"), pointerData)
}

// LoadFromDir reconstructs a Kernel from the journal and latest snapshot
// persisted by a prior SaveToDir call.
func LoadFromDir(dir string) (*Kernel, error) {
	journalData, err := os.ReadFile(filepath.Join(dir, "journal.json"))
	if err != nil {
		return nil, newErr(ErrIO, err.Error())
	}
	var events []WorldEvent
	if err := json.Unmarshal(journalData, &events); err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}
	journal := &Journal{events: events}

	pointerData, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		return nil, newErr(ErrIO, err.Error())
	}
	var pointer struct {
		Current SnapshotRecord  `json:"current"`
		Catalog SnapshotCatalog `json:"catalog"`
	}
	if err := json.Unmarshal(pointerData, &pointer); err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}

	snapData, err := os.ReadFile(filepath.Join(dir, "snapshots", pointer.Current.SnapshotHash+".json"))
	if err != nil {
		return nil, newErr(ErrIO, err.Error())
	}
	var snap Snapshot
	if err := json.Unmarshal(snapData, &snap); err != nil {
		return nil, newErr(ErrSerde, err.Error())
	}

	k, err := FromSnapshot(snap, journal)
	if err != nil {
		return nil, err
	}
	k.catalog = pointer.Catalog
	return k, nil
}

// writeFileAtomic writes data to path via a temp file + rename, matching
// pkg/store's replication guard persistence idiom so a crash mid-write
// never leaves a truncated pointer file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return newErr(ErrIO, err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		return newErr(ErrIO, err.Error())
	}
	return nil
}
