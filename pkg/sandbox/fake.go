package sandbox

import "github.com/worldkernel/node/pkg/world"

// FakeSandbox is a deterministic, non-wazero ModuleExecutor for tests:
// each module ID registered via SetResponse or SetFailure returns a canned ModuleOutput or
// ModuleCallFailure rather than running any actual WASM, matching the
// teacher's InProcessSandbox dev-mode escape hatch (kept in-memory here
// rather than echoing input, since module tests want fixed outputs).
type FakeSandbox struct {
	responses map[string]fakeResponse
	calls     []world.ModuleCallRequest
}

type fakeResponse struct {
	output  *world.ModuleOutput
	failure *world.ModuleCallFailure
}

// NewFakeSandbox returns an empty FakeSandbox; calls to modules with no
// registered response succeed with an empty ModuleOutput.
func NewFakeSandbox() *FakeSandbox {
	return &FakeSandbox{responses: make(map[string]fakeResponse)}
}

// SetResponse registers the ModuleOutput returned for calls to moduleID.
func (f *FakeSandbox) SetResponse(moduleID string, out *world.ModuleOutput) {
	f.responses[moduleID] = fakeResponse{output: out}
}

// SetFailure registers the ModuleCallFailure returned for calls to moduleID.
func (f *FakeSandbox) SetFailure(moduleID string, failure *world.ModuleCallFailure) {
	f.responses[moduleID] = fakeResponse{failure: failure}
}

// Calls returns every request this sandbox has received, in call order.
func (f *FakeSandbox) Calls() []world.ModuleCallRequest { return f.calls }

// Call implements world.ModuleExecutor.
func (f *FakeSandbox) Call(req world.ModuleCallRequest) (*world.ModuleOutput, *world.ModuleCallFailure) {
	f.calls = append(f.calls, req)
	resp, ok := f.responses[req.ModuleID]
	if !ok {
		return &world.ModuleOutput{TickLifecycle: "ok"}, nil
	}
	if resp.failure != nil {
		return nil, resp.failure
	}
	return resp.output, nil
}
