// Package sandbox implements the wazero-backed WASI sandbox a module call
// runs inside: memory/time/output limits enforced around a compiled WASM
// binary, with no filesystem or network access by default. Grounded
// directly on the teacher's core/pkg/runtime/sandbox/{sandbox.go,
// wasi_sandbox.go}, generalized from a single Run(packRef, input) call to
// the kernel's ModuleCallRequest/ModuleOutput contract and wired to the
// kernel's world.ModuleExecutor interface so a Kernel can drive it without
// importing this package's concrete types.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/worldkernel/node/pkg/crypto"
	"github.com/worldkernel/node/pkg/world"
)

// OutputMaxBytes bounds stdout+stderr captured from a single module call,
// matching the teacher's hard-coded 1MB ceiling.
const OutputMaxBytes = 1024 * 1024

// WazeroSandbox runs module calls as compiled WASI modules under wazero,
// caching compiled modules by their content-addressed wasm_hash so a
// module installed once doesn't recompile on every tick.
type WazeroSandbox struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled map[string]wazero.CompiledModule
}

// NewWazeroSandbox creates a sandbox with its own wazero runtime. ctx is
// used only for runtime/WASI setup, not held past this call.
func NewWazeroSandbox(ctx context.Context) (*WazeroSandbox, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}
	return &WazeroSandbox{runtime: r, compiled: make(map[string]wazero.CompiledModule)}, nil
}

// Close releases the underlying wazero runtime and every cached module.
func (s *WazeroSandbox) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

// Call implements world.ModuleExecutor: compiles (or reuses a cached
// compile of) req.WasmBytes keyed by req.WasmHash, runs it under the
// time limit in req.Limits with req.Input on stdin, and returns either the
// captured stdout as ModuleOutput.OutputBytes or a typed
// ModuleCallFailure. req.Limits.MemoryLimitBytes is not applied here; the
// only memory ceiling is the one NewLimitedWazeroSandbox sets on the runtime.
func (s *WazeroSandbox) Call(req world.ModuleCallRequest) (*world.ModuleOutput, *world.ModuleCallFailure) {
	if len(req.WasmBytes) == 0 {
		return nil, &world.ModuleCallFailure{
			ModuleID: req.ModuleID, TraceID: req.TraceID,
			Code: world.ModuleFailureSandboxUnavailable, Detail: "no wasm bytes supplied for module",
		}
	}
	if req.WasmHash != "" {
		if got := crypto.Blake3Hex(req.WasmBytes); got != req.WasmHash {
			return nil, &world.ModuleCallFailure{
				ModuleID: req.ModuleID, TraceID: req.TraceID,
				Code: world.ModuleFailureTrap, Detail: "wasm bytes do not match wasm_hash",
			}
		}
	}

	ctx := context.Background()
	if req.Limits.CPUTimeLimitMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Limits.CPUTimeLimitMS)*time.Millisecond)
		defer cancel()
	}

	compiled, err := s.compileCached(ctx, req.WasmHash, req.WasmBytes)
	if err != nil {
		return nil, &world.ModuleCallFailure{
			ModuleID: req.ModuleID, TraceID: req.TraceID,
			Code: world.ModuleFailureTrap, Detail: err.Error(),
		}
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(req.Input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithName(req.ModuleID + "-" + req.TraceID).
		WithArgs(req.Entrypoint)

	mod, runErr := s.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, &world.ModuleCallFailure{
				ModuleID: req.ModuleID, TraceID: req.TraceID,
				Code: world.ModuleFailureLimitExceeded, Detail: "module exceeded CPU time limit",
			}
		}
		if isMemoryError(runErr) {
			return nil, &world.ModuleCallFailure{
				ModuleID: req.ModuleID, TraceID: req.TraceID,
				Code: world.ModuleFailureLimitExceeded, Detail: "module exceeded memory limit",
			}
		}
		return nil, &world.ModuleCallFailure{
			ModuleID: req.ModuleID, TraceID: req.TraceID,
			Code: world.ModuleFailureTrap, Detail: runErr.Error(),
		}
	}
	defer func() { _ = mod.Close(ctx) }()

	maxOut := int64(OutputMaxBytes)
	if req.Limits.MaxOutputBytes > 0 {
		maxOut = req.Limits.MaxOutputBytes
	}
	if int64(stdout.Len()+stderr.Len()) > maxOut {
		return nil, &world.ModuleCallFailure{
			ModuleID: req.ModuleID, TraceID: req.TraceID,
			Code: world.ModuleFailureLimitExceeded, Detail: "module output exceeded limit",
		}
	}

	return &world.ModuleOutput{OutputBytes: stdout.Bytes(), TickLifecycle: "ok"}, nil
}

func (s *WazeroSandbox) compileCached(ctx context.Context, wasmHash string, wasmBytes []byte) (wazero.CompiledModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := wasmHash
	if key == "" {
		key = crypto.Blake3Hex(wasmBytes)
	}
	if c, ok := s.compiled[key]; ok {
		return c, nil
	}
	compiled, err := s.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}
	s.compiled[key] = compiled
	return compiled, nil
}

// NewLimitedWazeroSandbox is like NewWazeroSandbox but pins the runtime's
// page limit up front, for a deployment that hosts only one module kind
// per sandbox instance (the common case: one sandbox per installed
// module, sized to that module's declared limits).
func NewLimitedWazeroSandbox(ctx context.Context, memoryLimitBytes int64) (*WazeroSandbox, error) {
	rConfig := wazero.NewRuntimeConfig()
	if memoryLimitBytes > 0 {
		pages := uint32(memoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		rConfig = rConfig.WithMemoryLimitPages(pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate WASI: %w", err)
	}
	return &WazeroSandbox{runtime: r, compiled: make(map[string]wazero.CompiledModule)}, nil
}

func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "memory") && (strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded") || strings.Contains(msg, "out of bounds"))
}
