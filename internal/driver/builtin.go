package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"slate-core/internal/domain"
)

// Factory constructs one fresh agent instance. Builtin agents register a
// factory under a stable key; the module reference's source names that key.
type Factory func() domain.Agent

// Builtin resolves module references against a compile-time factory table.
// Reload semantics are restart-and-reattach: every load constructs a fresh
// value from the same compiled-in constructor.
type Builtin struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Compile-time check: Builtin implements domain.Driver.
var _ domain.Driver = (*Builtin)(nil)

// NewBuiltin creates an empty builtin driver.
func NewBuiltin() *Builtin {
	return &Builtin{factories: make(map[string]Factory)}
}

// Add registers a factory under key. Later registrations replace earlier
// ones; wiring happens once at startup.
func (b *Builtin) Add(key string, f Factory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factories[key] = f
}

// Keys returns the registered factory keys, sorted.
func (b *Builtin) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.factories))
	for k := range b.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Builtin) Name() string { return domain.DriverBuiltin }

// Resolve fails when no factory is registered for the reference's source.
func (b *Builtin) Resolve(ref domain.ModuleRef) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.factories[ref.Source]; !ok {
		return fmt.Errorf("no builtin factory %q", ref.Source)
	}
	return nil
}

// Instantiate constructs a fresh agent from the factory table.
func (b *Builtin) Instantiate(_ context.Context, ref domain.ModuleRef) (domain.Agent, error) {
	b.mu.RLock()
	f, ok := b.factories[ref.Source]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no builtin factory %q", ref.Source)
	}
	return f(), nil
}

// Invalidate is a no-op: builtin constructors are compiled in, there is no
// cached module to drop.
func (b *Builtin) Invalidate(domain.ModuleRef) {}
