package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
	"slate-core/internal/infra/logger"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	ctx := context.Background()
	d := New(ctx, DefaultConfig(), logger.Discard())
	t.Cleanup(func() { d.Close(ctx) })
	return d
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint32(1024), cfg.MaxMemoryPages)
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout)
}

func TestResolveMissingFile(t *testing.T) {
	d := newTestDriver(t)
	err := d.Resolve(domain.ModuleRef{Driver: domain.DriverWASM, Source: "/nope/agent.wasm"})
	assert.ErrorIs(t, err, domain.ErrWASMLoad)
}

func TestResolveDirectory(t *testing.T) {
	d := newTestDriver(t)
	err := d.Resolve(domain.ModuleRef{Driver: domain.DriverWASM, Source: t.TempDir()})
	assert.ErrorIs(t, err, domain.ErrWASMLoad)
}

func TestResolveExistingFile(t *testing.T) {
	d := newTestDriver(t)
	path := filepath.Join(t.TempDir(), "agent.wasm")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x61, 0x73, 0x6d}, 0o600))

	// Resolve is a structural check only; compilation happens at load.
	assert.NoError(t, d.Resolve(domain.ModuleRef{Driver: domain.DriverWASM, Source: path}))
}

func TestInstantiateRejectsGarbage(t *testing.T) {
	d := newTestDriver(t)
	path := filepath.Join(t.TempDir(), "agent.wasm")
	require.NoError(t, os.WriteFile(path, []byte("not wasm at all"), 0o600))

	_, err := d.Instantiate(context.Background(), domain.ModuleRef{
		Driver: domain.DriverWASM, Source: path,
	})
	assert.ErrorIs(t, err, domain.ErrWASMLoad)
}

func TestInvalidateUnknownSourceIsNoOp(t *testing.T) {
	d := newTestDriver(t)
	assert.NotPanics(t, func() {
		d.Invalidate(domain.ModuleRef{Driver: domain.DriverWASM, Source: "/never/compiled.wasm"})
	})
}

func TestName(t *testing.T) {
	assert.Equal(t, domain.DriverWASM, newTestDriver(t).Name())
}
