package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBlobStore_PutIdempotentByContentHash(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskBlobStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("hello world")

	h1, err := s.Put(ctx, "", data)
	require.NoError(t, err)
	h2, err := s.Put(ctx, "", data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	got, err := s.Get(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDiskBlobStore_GetByPath(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskBlobStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte(`{"height":1}`)
	hash, err := s.Put(ctx, "consensus/commits/00000000000000000001.json", data)
	require.NoError(t, err)

	gotHash, gotData, err := s.GetByPath(ctx, "consensus/commits/00000000000000000001.json")
	require.NoError(t, err)
	assert.Equal(t, hash, gotHash)
	assert.Equal(t, data, gotData)

	_, _, err = s.GetByPath(ctx, "missing/path.json")
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestDiskBlobStore_VerifyBlobDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskBlobStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	hash, err := s.Put(ctx, "", []byte("original"))
	require.NoError(t, err)

	require.NoError(t, s.VerifyBlob(ctx, hash))

	tamperPath := filepath.Join(dir, "blobs", hash)
	require.NoError(t, writeFileForTest(tamperPath, []byte("tampered")))

	err = s.VerifyBlob(ctx, hash)
	assert.Error(t, err)
}

func writeFileForTest(path string, data []byte) error {
	return atomicWrite(path, data)
}
