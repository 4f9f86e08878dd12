package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleWriterGuard_FreshAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication_guard.json")
	g, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)

	require.NoError(t, g.AcquireWriter("node-a", 1))
	assert.Equal(t, "node-a", g.State().WriterID)

	seq, err := g.NextSequence("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestSingleWriterGuard_HigherEpochTakesOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication_guard.json")
	g, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)

	require.NoError(t, g.AcquireWriter("node-a", 1))
	_, _ = g.NextSequence("node-a")
	_, _ = g.NextSequence("node-a")

	require.NoError(t, g.AcquireWriter("node-b", 2))
	assert.Equal(t, "node-b", g.State().WriterID)
	assert.Equal(t, uint64(0), g.State().LastSequence)

	_, err = g.NextSequence("node-a")
	assert.Error(t, err, "old writer must be rejected after epoch bump")
}

func TestSingleWriterGuard_LowerEpochRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication_guard.json")
	g, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)

	require.NoError(t, g.AcquireWriter("node-a", 5))
	err = g.AcquireWriter("node-b", 3)
	assert.Error(t, err)
}

func TestSingleWriterGuard_AcceptRemoteWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication_guard.json")
	g, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)
	require.NoError(t, g.AcquireWriter("node-a", 1))
	_, _ = g.NextSequence("node-a")

	assert.True(t, g.AcceptRemoteWrite("node-a", 1, 2))
	assert.False(t, g.AcceptRemoteWrite("node-a", 1, 1))
	assert.True(t, g.AcceptRemoteWrite("node-b", 2, 1))
}

func TestSingleWriterGuard_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication_guard.json")
	g, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)
	require.NoError(t, g.AcquireWriter("node-a", 1))
	_, _ = g.NextSequence("node-a")
	_, _ = g.NextSequence("node-a")

	reloaded, err := LoadSingleWriterGuard(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reloaded.State().LastSequence)
	assert.Equal(t, "node-a", reloaded.State().WriterID)
}
