// Package wasm documents the guest ABI for out-of-tree slate agents and
// declares the wire types both sides of the boundary marshal.
//
// This package is designed for use with TinyGo and the WASI target. The host
// runs guests under wasi_snapshot_preview1 with a memory limit and a per-call
// deadline; a guest that outlives the deadline is interrupted.
//
// # Calling convention
//
// All structured data crosses the boundary as JSON in guest linear memory.
// The host passes input by calling the guest's malloc, copying the encoded
// bytes in, and invoking the export with (ptr uint32, len uint32). Exports
// that produce output return a (ptr uint32, len uint32) pair pointing at
// JSON the guest encoded; the host copies it out immediately, so the guest
// may reuse the buffer on the next call.
//
// # Required exports
//
//   - malloc(size uint32) uint32 — allocate guest memory for host input
//   - agent_info() (ptr, len uint32) — JSON-encoded Info
//   - agent_capabilities() (ptr, len uint32) — JSON-encoded []Capability
//   - agent_execute(ptr, len uint32) (ptr, len uint32) — WorkItem in, Result out
//
// # Optional exports
//
//   - free(ptr uint32, size uint32) — release host input buffers; may be a
//     no-op under a garbage-collected allocator
//   - agent_on_load() uint32 — nonzero accepts the load, zero refuses it;
//     absent means the agent always loads
//   - agent_on_unload() — cleanup before the instance is discarded
//   - agent_health() (ptr, len uint32) — JSON-encoded Health; absent means
//     always healthy
//
// # Skeleton (TinyGo)
//
//	//go:build tinygo
//
//	package main
//
//	//export agent_info
//	func agentInfo() (uint32, uint32) {
//		return writeJSON(wasm.Info{ID: "ECHO", Name: "Echo", Version: "1.0.0"})
//	}
//
//	//export agent_execute
//	func agentExecute(ptr, size uint32) (uint32, uint32) {
//		var item wasm.WorkItem
//		readJSON(ptr, size, &item)
//		return writeJSON(wasm.Result{Success: true,
//			Payload: map[string]any{"echo": item.Title}})
//	}
//
//	func main() {}
package wasm

// Info is the identity a guest reports from agent_info.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	RequiresGPU  bool     `json:"requires_gpu,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Capability is one routing advertisement in the agent_capabilities list.
type Capability struct {
	Name        string   `json:"name"`
	Patterns    []string `json:"patterns"`
	RequiresGPU bool     `json:"requires_gpu,omitempty"`
	GPUMemoryMB int      `json:"gpu_memory_mb,omitempty"`
	CPUCores    int      `json:"cpu_cores,omitempty"`
	Priority    int      `json:"priority"`
	Description string   `json:"description,omitempty"`
}

// WorkItem is the task payload passed to agent_execute.
type WorkItem struct {
	ID          string            `json:"id,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Result is the execution outcome agent_execute returns.
type Result struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Health is the probe outcome agent_health returns.
type Health struct {
	Healthy bool           `json:"healthy"`
	Detail  map[string]any `json:"detail,omitempty"`
}
