package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldkernel/node/pkg/world"
)

func TestFakeSandboxDefaultsToOK(t *testing.T) {
	f := NewFakeSandbox()
	out, failure := f.Call(world.ModuleCallRequest{ModuleID: "m1", TraceID: "t1"})
	require.Nil(t, failure)
	require.Equal(t, "ok", out.TickLifecycle)
	require.Len(t, f.Calls(), 1)
}

func TestFakeSandboxRegisteredResponse(t *testing.T) {
	f := NewFakeSandbox()
	f.SetResponse("m1", &world.ModuleOutput{OutputBytes: []byte("hi"), TickLifecycle: "ok"})
	out, failure := f.Call(world.ModuleCallRequest{ModuleID: "m1"})
	require.Nil(t, failure)
	require.Equal(t, []byte("hi"), out.OutputBytes)
}

func TestFakeSandboxRegisteredFailure(t *testing.T) {
	f := NewFakeSandbox()
	f.SetFailure("m1", &world.ModuleCallFailure{ModuleID: "m1", Code: world.ModuleFailureTrap, Detail: "boom"})
	out, failure := f.Call(world.ModuleCallRequest{ModuleID: "m1"})
	require.Nil(t, out)
	require.NotNil(t, failure)
	require.Equal(t, world.ModuleFailureTrap, failure.Code)
}
