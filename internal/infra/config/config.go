package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level kernel configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Agents   AgentsConfig   `yaml:"agents"`
	Health   HealthConfig   `yaml:"health"`
	Autosave AutosaveConfig `yaml:"autosave"`
	Runner   RunnerConfig   `yaml:"runner"`
	WASM     WASMConfig     `yaml:"wasm"`
	Journal  JournalConfig  `yaml:"journal"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// AgentsConfig holds discovery and persistence settings for the registry.
type AgentsConfig struct {
	// Dir is scanned for agent manifests. Files starting with "_" are
	// skipped; the rest register in lexical order.
	Dir string `yaml:"dir"`
	// StateFile is the JSON snapshot of fallback routes and counters.
	StateFile string `yaml:"state_file"`
}

// HealthConfig drives the periodic health monitor.
type HealthConfig struct {
	Interval  string `yaml:"interval"`   // duration string; empty disables
	WarnEvery string `yaml:"warn_every"` // min gap between repeated unhealthy warnings
}

// AutosaveConfig periodically snapshots registry state while serving.
type AutosaveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"` // duration string (default: 5m)
}

// RunnerConfig configures the external model-runner subprocess client.
type RunnerConfig struct {
	Command            string  `yaml:"command"`              // binary name (default: ollama)
	Timeout            string  `yaml:"timeout"`              // per-invocation deadline
	MaxPromptTokens    int     `yaml:"max_prompt_tokens"`    // 0 = no budget
	RatePerSecond      float64 `yaml:"rate_per_second"`      // 0 = unlimited
	RateBurst          int     `yaml:"rate_burst"`
	BreakerMaxFailures uint32  `yaml:"breaker_max_failures"` // consecutive failures before opening
	BreakerCooldown    string  `yaml:"breaker_cooldown"`     // open-state duration
}

// WASMConfig bounds the embedded wasm agent runtime.
type WASMConfig struct {
	MaxMemoryPages uint32 `yaml:"max_memory_pages"` // 64KB pages, default 1024 = 64MB
	ExecTimeout    string `yaml:"exec_timeout"`     // per guest call, default "30s"
}

// JournalConfig controls the sqlite lifecycle journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
	Output string `yaml:"output"` // stdout|stderr|discard|<file path>
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout|noop
}

// defaultDataDir returns the persistent data directory under $HOME/.slate/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".slate", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		DataDir: dataDir,
		Agents: AgentsConfig{
			Dir:       "./agents.d",
			StateFile: filepath.Join(dataDir, ".slate_agent_registry.json"),
		},
		Health: HealthConfig{
			Interval:  "30s",
			WarnEvery: "1m",
		},
		Autosave: AutosaveConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Runner: RunnerConfig{
			Command:            "ollama",
			Timeout:            "120s",
			MaxPromptTokens:    4096,
			RatePerSecond:      1,
			RateBurst:          2,
			BreakerMaxFailures: 3,
			BreakerCooldown:    "30s",
		},
		WASM: WASMConfig{
			MaxMemoryPages: 1024, // 64MB
			ExecTimeout:    "30s",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "lifecycle.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validatePermissions(path); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SLATE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLATE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SLATE_AGENTS_DIR"); v != "" {
		cfg.Agents.Dir = v
	}
	if v := os.Getenv("SLATE_STATE_FILE"); v != "" {
		cfg.Agents.StateFile = v
	}
	if v := os.Getenv("SLATE_HEALTH_INTERVAL"); v != "" {
		cfg.Health.Interval = v
	}
	if v := os.Getenv("SLATE_AUTOSAVE_ENABLED"); v != "" {
		cfg.Autosave.Enabled = v == "true"
	}
	if v := os.Getenv("SLATE_AUTOSAVE_INTERVAL"); v != "" {
		cfg.Autosave.Interval = v
	}
	if v := os.Getenv("SLATE_RUNNER_COMMAND"); v != "" {
		cfg.Runner.Command = v
	}
	if v := os.Getenv("SLATE_RUNNER_TIMEOUT"); v != "" {
		cfg.Runner.Timeout = v
	}
	if v := os.Getenv("SLATE_RUNNER_MAX_PROMPT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runner.MaxPromptTokens = n
		}
	}
	if v := os.Getenv("SLATE_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true"
	}
	if v := os.Getenv("SLATE_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SLATE_WASM_EXEC_TIMEOUT"); v != "" {
		cfg.WASM.ExecTimeout = v
	}
	if v := os.Getenv("SLATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SLATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SLATE_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("SLATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SLATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// ParseDurationOr parses a duration string, returning def when s is empty
// or malformed. Validate reports malformed strings, so use sites can rely
// on the default without double error handling.
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
