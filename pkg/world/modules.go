package world

import "github.com/worldkernel/node/pkg/crypto"

// ModuleCallRequest is the full input to a sandboxed module invocation:
// which module, which content-addressed wasm binary, what entrypoint, and
// the resource limits the sandbox must enforce. Mirrors the contract a
// wazero-backed ModuleSandbox implementation (pkg/sandbox) actually
// receives; kept here rather than importing pkg/sandbox so pkg/world never
// depends on a concrete sandbox implementation.
type ModuleCallRequest struct {
	ModuleID   string
	WasmHash   string
	TraceID    string
	Entrypoint string
	Input      []byte
	Limits     ModuleLimits
	WasmBytes  []byte
}

// ModuleLimits bounds a single module invocation.
type ModuleLimits struct {
	MemoryLimitBytes int64
	CPUTimeLimitMS   int64
	MaxOutputBytes   int64
}

// ModuleOutput is a successful module call's result: an optional updated
// state blob, any effects it wants queued, any domain-facing emits, and an
// optional lifecycle marker (e.g. "halt") the kernel should record.
type ModuleOutput struct {
	NewState      []byte
	Effects       []ModuleEffectRequest
	Emits         [][]byte
	TickLifecycle string
	OutputBytes   []byte
}

// ModuleEffectRequest is an EffectIntent a module asked the kernel to emit
// on its behalf, subject to the same capability/policy checks as any other
// emit_effect call.
type ModuleEffectRequest struct {
	Kind   string
	Params map[string]interface{}
	CapRef string
}

// ModuleCallFailure is the structured error a sandbox call reports instead
// of a Go error, matching the spec's typed failure-code contract rather
// than an opaque error string.
type ModuleCallFailure struct {
	ModuleID string
	TraceID  string
	Code     ModuleFailureCode
	Detail   string
}

func (f *ModuleCallFailure) Error() string {
	return string(f.Code) + ": " + f.Detail
}

// ModuleFailureCode enumerates why a module call failed.
type ModuleFailureCode string

const (
	ModuleFailureTrap               ModuleFailureCode = "Trap"
	ModuleFailureSandboxUnavailable  ModuleFailureCode = "SandboxUnavailable"
	ModuleFailureCapsDenied          ModuleFailureCode = "CapsDenied"
	ModuleFailurePolicyDenied        ModuleFailureCode = "PolicyDenied"
	ModuleFailureLimitExceeded       ModuleFailureCode = "LimitExceeded"
)

// ModuleExecutor is the kernel's view of a module sandbox: call one
// entrypoint with bounded resources and get back either a ModuleOutput or
// a typed ModuleCallFailure. pkg/sandbox's WazeroSandbox and FakeSandbox
// implement it directly; pkg/world does not import pkg/sandbox.
type ModuleExecutor interface {
	Call(req ModuleCallRequest) (*ModuleOutput, *ModuleCallFailure)
}

// ExecuteModuleCall invokes moduleExec for the named module's entrypoint,
// recording a ModuleEvent lifecycle marker, any emitted effects (each
// passed through the ordinary EmitEffect capability/policy gate), a
// ModuleStateUpdated record if the call produced new state, and a
// ModuleCallFailed record (with no state mutation) if the call fails.
func (k *Kernel) ExecuteModuleCall(moduleID, wasmHash, entrypoint string, input []byte, wasmBytes []byte, limits ModuleLimits) error {
	if k.moduleExec == nil {
		return newErr(ErrIO, "no module executor configured")
	}

	traceID := moduleID + "/" + entrypoint
	out, failure := k.moduleExec.Call(ModuleCallRequest{
		ModuleID: moduleID, WasmHash: wasmHash, TraceID: traceID,
		Entrypoint: entrypoint, Input: input, Limits: limits, WasmBytes: wasmBytes,
	})

	if failure != nil {
		k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleCallFailed, Module: &ModuleEventPayload{
			PayloadKind: ModulePayloadCallFailed, ModuleID: moduleID, TraceID: traceID,
			Code: string(failure.Code), Detail: failure.Detail,
		}})
		return failure
	}

	k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleEvent, Module: &ModuleEventPayload{
		PayloadKind: ModulePayloadLifecycle, ModuleID: moduleID, TraceID: traceID, Detail: out.TickLifecycle,
	}})

	for _, req := range out.Effects {
		if _, err := k.EmitEffect(req.Kind, req.Params, req.CapRef, Origin{Kind: OriginModule, Name: moduleID}); err != nil {
			k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleEvent, Module: &ModuleEventPayload{
				PayloadKind: ModulePayloadLifecycle, ModuleID: moduleID, TraceID: traceID, Detail: "effect denied: " + err.Error(),
			}})
		}
	}

	for _, emit := range out.Emits {
		k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleEvent, Module: &ModuleEventPayload{
			PayloadKind: ModulePayloadEmitted, ModuleID: moduleID, TraceID: traceID, Detail: string(emit),
		}})
	}

	if out.NewState != nil {
		hash := stateHashHex(out.NewState)
		k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleStateUpdated, Module: &ModuleEventPayload{
			PayloadKind: ModulePayloadStateUpdated, ModuleID: moduleID, TraceID: traceID, NewStateHash: hash,
		}})
	}

	k.appendEvent(NoneCause(), EventBody{Kind: BodyModuleRuntimeCharged, Module: &ModuleEventPayload{
		PayloadKind: ModulePayloadRuntimeCharged, ModuleID: moduleID, TraceID: traceID,
		ChargedUnits: limits.CPUTimeLimitMS,
	}})
	return nil
}

// StepWithModules calls Step and then ticks every installed module whose
// NextTickAt has arrived, in module-id sorted order for determinism.
func (k *Kernel) StepWithModules(wasmBytesByHash map[string][]byte, defaultLimits ModuleLimits) []WorldEvent {
	produced := k.Step()

	k.mu.Lock()
	var due []ModuleManifestEntry
	for _, m := range k.state.Modules {
		if m.NextTickAt <= k.state.Time {
			due = append(due, m)
		}
	}
	k.mu.Unlock()

	sortModulesByID(due)
	for _, m := range due {
		wasm := wasmBytesByHash[m.WasmHash]
		_ = k.ExecuteModuleCall(m.ModuleID, m.WasmHash, "tick", nil, wasm, defaultLimits)
	}
	return produced
}

func sortModulesByID(entries []ModuleManifestEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].ModuleID > entries[j].ModuleID; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func stateHashHex(data []byte) string {
	return crypto.Blake3Hex(data)
}
