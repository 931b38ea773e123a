package kernel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"

	"slate-core/internal/domain"
)

// Manifest is one agent registration file in the agents directory.
type Manifest struct {
	domain.AgentInfo `yaml:",inline"`
	Driver           string `yaml:"driver"`
	Source           string `yaml:"source"`
}

// manifestSchema validates manifests before they touch the registry.
// Unknown keys pass through for forward compatibility.
const manifestSchema = `{
	"type": "object",
	"required": ["id", "driver", "source"],
	"properties": {
		"id":           {"type": "string", "minLength": 1},
		"name":         {"type": "string"},
		"version":      {"type": "string"},
		"description":  {"type": "string"},
		"requires_gpu": {"type": "boolean"},
		"dependencies": {"type": "array", "items": {"type": "string"}},
		"driver":       {"type": "string", "minLength": 1},
		"source":       {"type": "string", "minLength": 1}
	}
}`

// Discover scans dir for agent manifests (*.yaml, *.yml) and registers a
// descriptor for each valid one, without loading anything. Files whose name
// starts with "_" are skipped. Files register in lexical order, which is
// also LoadAll order — operators sequence dependencies by file naming.
//
// Each manifest is schema-validated, then probed: the driver instantiates a
// throwaway candidate and discovery checks it structurally satisfies the
// agent contract with a non-empty ID matching the manifest. The driver keeps
// the compiled module slot from the probe, so a later reload re-resolves
// from the same slot. Invalid or unprobeable files are logged and skipped,
// never fatal. Returns the newly registered agent IDs.
func (r *Registry) Discover(ctx context.Context, dir string) ([]string, error) {
	schema, err := jsonschema.NewCompiler().Compile([]byte(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents dir %s: %w", dir, err)
	}

	var files []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || strings.HasPrefix(name, "_") {
			continue
		}
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	var discovered []string
	for _, name := range files {
		path := filepath.Join(dir, name)
		m, err := r.probeManifest(ctx, path, schema)
		if err != nil {
			r.logger.Warn("skipping agent manifest", "file", name, "error", err)
			continue
		}

		inserted, err := r.Register(domain.Descriptor{
			Info: m.AgentInfo,
			Ref:  domain.ModuleRef{Driver: m.Driver, Source: m.Source},
		})
		if err != nil {
			r.logger.Warn("agent registration failed", "file", name, "error", err)
			continue
		}
		if inserted {
			discovered = append(discovered, m.ID)
		}
	}

	r.logger.Info("discovery complete", "dir", dir, "discovered", len(discovered))
	return discovered, nil
}

// probeManifest parses and validates one manifest file and verifies its
// module reference actually yields a conforming agent.
func (r *Registry) probeManifest(ctx context.Context, path string, schema *jsonschema.Schema) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if result := schema.Validate(raw); !result.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrManifestInvalid, result.Error())
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	// Wasm sources are relative to the manifest's directory.
	if m.Driver == domain.DriverWASM && !filepath.IsAbs(m.Source) {
		m.Source = filepath.Join(filepath.Dir(path), m.Source)
	}

	r.mu.Lock()
	drv, ok := r.drivers[m.Driver]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDriverNotFound, m.Driver)
	}

	ref := domain.ModuleRef{Driver: m.Driver, Source: m.Source}
	probe, err := instantiate(ctx, drv, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModuleUnresolved, err)
	}
	probedID := probe.Info().ID
	// The candidate was only ever a probe; release it before judging.
	_ = probe.OnUnload(ctx)
	if probedID == "" {
		return nil, fmt.Errorf("%w: agent declares empty id", domain.ErrManifestInvalid)
	}
	if probedID != m.ID {
		return nil, fmt.Errorf("%w: manifest id %q but agent declares %q",
			domain.ErrManifestInvalid, m.ID, probedID)
	}
	return &m, nil
}
