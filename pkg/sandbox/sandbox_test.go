package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/world"
)

func TestWazeroSandboxRejectsEmptyWasm(t *testing.T) {
	ctx := context.Background()
	s, err := NewWazeroSandbox(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, failure := s.Call(world.ModuleCallRequest{ModuleID: "m1", TraceID: "t1"})
	require.NotNil(t, failure)
	require.Equal(t, world.ModuleFailureSandboxUnavailable, failure.Code)
}

func TestWazeroSandboxRejectsWasmHashMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewWazeroSandbox(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, failure := s.Call(world.ModuleCallRequest{
		ModuleID:  "m1",
		TraceID:   "t1",
		WasmBytes: []byte{0x00, 0x61, 0x73, 0x6d},
		WasmHash:  "not-the-real-hash",
	})
	require.NotNil(t, failure)
	require.Equal(t, world.ModuleFailureTrap, failure.Code)
}

func TestWazeroSandboxRejectsInvalidWasm(t *testing.T) {
	ctx := context.Background()
	s, err := NewWazeroSandbox(ctx)
	require.NoError(t, err)
	defer s.Close(ctx)

	_, failure := s.Call(world.ModuleCallRequest{
		ModuleID:  "m1",
		TraceID:   "t1",
		WasmBytes: []byte("not a real wasm module"),
	})
	require.NotNil(t, failure)
	require.Equal(t, world.ModuleFailureTrap, failure.Code)
}

func TestIsMemoryError(t *testing.T) {
	require.False(t, isMemoryError(nil))
	require.True(t, isMemoryError(errString("memory limit exceeded")))
	require.True(t, isMemoryError(errString("failed to grow memory")))
	require.False(t, isMemoryError(errString("unreachable instruction executed")))
}

type errString string

func (e errString) Error() string { return string(e) }
