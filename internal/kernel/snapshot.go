package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slate-core/internal/domain"
)

// snapshotAgent is one agent's persisted row: informational history only,
// never used to resurrect instances.
type snapshotAgent struct {
	State          domain.AgentState `json:"state"`
	LoadError      string            `json:"load_error,omitempty"`
	TasksProcessed uint64            `json:"tasks_processed"`
	TasksFailed    uint64            `json:"tasks_failed"`
}

// snapshot is the on-disk registry state. Unknown keys are ignored on load;
// missing keys default to empty.
type snapshot struct {
	FallbackRoutes map[string]string        `json:"fallback_routes"`
	Agents         map[string]snapshotAgent `json:"agents"`
	SavedAt        time.Time                `json:"saved_at"`
}

// SaveState writes the fallback table, per-agent counters, and a timestamp
// to path, replacing any previous snapshot. The write is atomic (temp file
// plus rename) so a crash never leaves a torn state file.
func (r *Registry) SaveState(path string) error {
	r.mu.Lock()
	snap := snapshot{
		FallbackRoutes: make(map[string]string, len(r.fallback)),
		Agents:         make(map[string]snapshotAgent, len(r.entries)),
		SavedAt:        time.Now().UTC(),
	}
	for k, v := range r.fallback {
		snap.FallbackRoutes[k] = v
	}
	for id, e := range r.entries {
		snap.Agents[id] = snapshotAgent{
			State:          e.state,
			LoadError:      e.loadError,
			TasksProcessed: e.processed,
			TasksFailed:    e.failed,
		}
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry state: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write registry state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace registry state: %w", err)
	}

	r.logger.Debug("registry state saved", "path", path, "agents", len(snap.Agents))
	return nil
}

// LoadState restores the fallback table from a previous snapshot. Per-agent
// counters in the file are history, not live state, and are never restored;
// agents always restart UNLOADED. A missing or corrupt file returns false
// without an error escaping.
func (r *Registry) LoadState(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read registry state", "path", path, "error", err)
		}
		return false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("failed to parse registry state", "path", path, "error", err)
		return false
	}

	r.mu.Lock()
	r.fallback = make(map[string]string, len(snap.FallbackRoutes))
	for k, v := range snap.FallbackRoutes {
		if k != "" && v != "" {
			r.fallback[k] = v
		}
	}
	n := len(r.fallback)
	r.mu.Unlock()

	r.logger.Info("registry state restored", "path", path, "fallback_routes", n)
	return true
}
