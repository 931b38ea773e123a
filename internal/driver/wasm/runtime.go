// Package wasm executes agents compiled to WebAssembly through an embedded
// wazero runtime. It is the hot-reload carrier: reload recompiles the .wasm
// from disk, so on-disk edits are observed without restarting the kernel.
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"slate-core/internal/domain"
)

// Config bounds the embedded runtime.
type Config struct {
	// MaxMemoryPages is the maximum number of 64KB wasm memory pages per
	// module. Default 1024 = 64MB.
	MaxMemoryPages uint32
	// ExecTimeout bounds a single guest call. Default 30s.
	ExecTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxMemoryPages: 1024, // 64MB
		ExecTimeout:    30 * time.Second,
	}
}

// Driver resolves wasm module references. Compiled modules are cached per
// source path — that cache is the descriptor's "module slot": Instantiate
// reuses it, Invalidate drops it so the next load recompiles from disk.
type Driver struct {
	runtime wazero.Runtime
	cfg     Config
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]wazero.CompiledModule
}

// Compile-time check: Driver implements domain.Driver.
var _ domain.Driver = (*Driver)(nil)

// New creates the wasm driver and its shared runtime. The caller must Close
// it when done.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Driver {
	if cfg.MaxMemoryPages == 0 {
		cfg.MaxMemoryPages = 1024
	}
	if cfg.ExecTimeout == 0 {
		cfg.ExecTimeout = 30 * time.Second
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(cfg.MaxMemoryPages)

	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	logger.Info("wasm runtime created",
		"max_memory_pages", cfg.MaxMemoryPages,
		"max_memory_mb", cfg.MaxMemoryPages*64/1024,
	)

	return &Driver{
		runtime: rt,
		cfg:     cfg,
		logger:  logger,
		cache:   make(map[string]wazero.CompiledModule),
	}
}

func (d *Driver) Name() string { return domain.DriverWASM }

// Resolve fails when the .wasm file does not exist.
func (d *Driver) Resolve(ref domain.ModuleRef) error {
	info, err := os.Stat(ref.Source)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrWASMLoad, ref.Source, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrWASMLoad, ref.Source)
	}
	return nil
}

// Instantiate builds a live agent handle from the module slot, compiling the
// source on a cache miss.
func (d *Driver) Instantiate(ctx context.Context, ref domain.ModuleRef) (domain.Agent, error) {
	compiled, err := d.compiled(ctx, ref.Source)
	if err != nil {
		return nil, err
	}
	return newHandle(ctx, d, compiled, ref.Source)
}

// Invalidate drops the cached compilation for the reference. The next
// Instantiate re-reads and recompiles the file, observing on-disk edits.
func (d *Driver) Invalidate(ref domain.ModuleRef) {
	d.mu.Lock()
	compiled, ok := d.cache[ref.Source]
	delete(d.cache, ref.Source)
	d.mu.Unlock()

	if ok {
		_ = compiled.Close(context.Background())
		d.logger.Debug("wasm module slot invalidated", "source", ref.Source)
	}
}

// Close releases the runtime and every cached module.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	d.cache = make(map[string]wazero.CompiledModule)
	d.mu.Unlock()
	return d.runtime.Close(ctx)
}

func (d *Driver) compiled(ctx context.Context, source string) (wazero.CompiledModule, error) {
	d.mu.Lock()
	if c, ok := d.cache[source]; ok {
		d.mu.Unlock()
		return c, nil
	}
	d.mu.Unlock()

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrWASMLoad, source, err)
	}
	compiled, err := d.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", domain.ErrWASMLoad, source, err)
	}

	d.mu.Lock()
	// A concurrent compile of the same source may have won; keep the first.
	if prior, ok := d.cache[source]; ok {
		d.mu.Unlock()
		_ = compiled.Close(ctx)
		return prior, nil
	}
	d.cache[source] = compiled
	d.mu.Unlock()

	d.logger.Debug("wasm module compiled", "source", source)
	return compiled, nil
}
