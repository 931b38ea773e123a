package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"slate-core/internal/domain"
)

// readBytes copies raw bytes out of guest linear memory.
func readBytes(mod api.Module, ptr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("%w: memory read out of bounds at ptr=%d len=%d", domain.ErrWASMExec, ptr, size)
	}
	// Copy so the caller owns the slice.
	out := make([]byte, size)
	copy(out, buf)
	return out, nil
}

// writeBytes copies data into guest memory via the guest's exported malloc.
// Returns the pointer and length.
func writeBytes(mod api.Module, data []byte) (uint32, uint32, error) {
	size := uint32(len(data))
	if size == 0 {
		return 0, 0, nil
	}

	malloc := mod.ExportedFunction("malloc")
	if malloc == nil {
		return 0, 0, fmt.Errorf("%w: guest does not export malloc", domain.ErrWASMExec)
	}

	results, err := malloc.Call(context.Background(), uint64(size))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malloc(%d): %v", domain.ErrWASMExec, size, err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, 0, fmt.Errorf("%w: malloc(%d) returned null", domain.ErrWASMExec, size)
	}

	ptr := uint32(results[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, 0, fmt.Errorf("%w: memory write out of bounds at ptr=%d len=%d", domain.ErrWASMExec, ptr, size)
	}
	return ptr, size, nil
}

// freeBytes releases guest memory through the guest's exported free.
func freeBytes(mod api.Module, ptr, size uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	free := mod.ExportedFunction("free")
	if free == nil {
		return
	}
	_, _ = free.Call(context.Background(), uint64(ptr), uint64(size))
}
