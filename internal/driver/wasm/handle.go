package wasm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"slate-core/internal/domain"
)

// Guest ABI. A wasm agent must export malloc, free, agent_info,
// agent_capabilities, and agent_execute; agent_on_load, agent_on_unload, and
// agent_health are optional. Functions exchanging data return (ptr, len)
// pairs into guest linear memory; see pkg/agentsdk for the wire types.
const (
	fnInfo         = "agent_info"
	fnCapabilities = "agent_capabilities"
	fnExecute      = "agent_execute"
	fnOnLoad       = "agent_on_load"
	fnOnUnload     = "agent_on_unload"
	fnHealth       = "agent_health"
)

// handle adapts one instantiated guest module to the agent contract.
// Identity and capabilities are read once at instantiation: capabilities are
// immutable after declaration, and the routing path needs them cheap.
type handle struct {
	driver *Driver
	module api.Module
	info   domain.AgentInfo
	caps   []domain.Capability
}

// Compile-time check: handle implements domain.Agent.
var _ domain.Agent = (*handle)(nil)

// newHandle instantiates the compiled module and probes it for structural
// conformance to the agent contract.
func newHandle(ctx context.Context, d *Driver, compiled wazero.CompiledModule, source string) (*handle, error) {
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous: the same module may instantiate repeatedly
		WithStartFunctions()

	mod, err := d.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate %s: %v", domain.ErrWASMLoad, source, err)
	}

	for _, name := range []string{"malloc", fnInfo, fnCapabilities, fnExecute} {
		if mod.ExportedFunction(name) == nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("%w: %s does not export %s", domain.ErrWASMLoad, source, name)
		}
	}

	h := &handle{driver: d, module: mod}
	if err := h.callJSON(ctx, fnInfo, nil, &h.info); err != nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrWASMLoad, fnInfo, err)
	}
	if err := h.callJSON(ctx, fnCapabilities, nil, &h.caps); err != nil {
		_ = mod.Close(ctx)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrWASMLoad, fnCapabilities, err)
	}
	return h, nil
}

func (h *handle) Info() domain.AgentInfo            { return h.info }
func (h *handle) Capabilities() []domain.Capability { return h.caps }

// OnLoad calls the guest's load hook. A module without one loads
// unconditionally; a zero return refuses the load.
func (h *handle) OnLoad(ctx context.Context) (bool, error) {
	fn := h.module.ExportedFunction(fnOnLoad)
	if fn == nil {
		return true, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, h.driver.cfg.ExecTimeout)
	defer cancel()

	results, err := fn.Call(execCtx)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrWASMExec, fnOnLoad, err)
	}
	return len(results) > 0 && results[0] != 0, nil
}

// OnUnload calls the guest's unload hook and closes the module instance.
func (h *handle) OnUnload(ctx context.Context) error {
	var hookErr error
	if fn := h.module.ExportedFunction(fnOnUnload); fn != nil {
		execCtx, cancel := context.WithTimeout(ctx, h.driver.cfg.ExecTimeout)
		if _, err := fn.Call(execCtx); err != nil {
			hookErr = fmt.Errorf("%w: %s: %v", domain.ErrWASMExec, fnOnUnload, err)
		}
		cancel()
	}
	if err := h.module.Close(context.Background()); err != nil && hookErr == nil {
		hookErr = fmt.Errorf("%w: close: %v", domain.ErrWASMExec, err)
	}
	return hookErr
}

// Execute marshals the work item into guest memory, runs agent_execute, and
// decodes the returned result.
func (h *handle) Execute(ctx context.Context, item domain.WorkItem) (domain.Result, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: marshal work item: %v", domain.ErrWASMExec, err)
	}

	var res domain.Result
	if err := h.callJSON(ctx, fnExecute, payload, &res); err != nil {
		return domain.Result{}, err
	}
	return res, nil
}

// HealthCheck calls the guest's health probe. Modules without one report
// healthy; a trapped probe reports unhealthy with the trap message.
func (h *handle) HealthCheck(ctx context.Context) domain.Health {
	if h.module.ExportedFunction(fnHealth) == nil {
		return domain.Health{Healthy: true}
	}

	var health domain.Health
	if err := h.callJSON(ctx, fnHealth, nil, &health); err != nil {
		return domain.Health{Healthy: false, Detail: map[string]any{"error": err.Error()}}
	}
	return health
}

// callJSON invokes a guest function with an optional JSON input and decodes
// its (ptr, len) JSON return. Guest calls are bounded by the exec timeout.
func (h *handle) callJSON(ctx context.Context, name string, input []byte, out any) error {
	fn := h.module.ExportedFunction(name)
	if fn == nil {
		return fmt.Errorf("%w: module does not export %s", domain.ErrWASMExec, name)
	}

	execCtx, cancel := context.WithTimeout(ctx, h.driver.cfg.ExecTimeout)
	defer cancel()

	var args []uint64
	if len(input) > 0 {
		ptr, size, err := writeBytes(h.module, input)
		if err != nil {
			return err
		}
		defer freeBytes(h.module, ptr, size)
		args = []uint64{uint64(ptr), uint64(size)}
	}

	results, err := fn.Call(execCtx, args...)
	if err != nil {
		if execCtx.Err() != nil {
			return fmt.Errorf("%w: %s timed out", domain.ErrWASMExec, name)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrWASMExec, name, err)
	}
	if len(results) < 2 {
		return fmt.Errorf("%w: %s returned no (ptr, len) pair", domain.ErrWASMExec, name)
	}

	data, err := readBytes(h.module, uint32(results[0]), uint32(results[1]))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s output: %v", domain.ErrWASMExec, name, err)
	}
	return nil
}
