package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgents(cfg, ve)
	validateHealth(cfg, ve)
	validateAutosave(cfg, ve)
	validateRunner(cfg, ve)
	validateWASM(cfg, ve)
	validateJournal(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.Dir == "" {
		ve.Add("agents.dir must not be empty")
	}
	if cfg.Agents.StateFile == "" {
		ve.Add("agents.state_file must not be empty")
	}
}

func validateHealth(cfg *Config, ve *ValidationError) {
	checkDuration(ve, "health.interval", cfg.Health.Interval)
	checkDuration(ve, "health.warn_every", cfg.Health.WarnEvery)
}

func validateAutosave(cfg *Config, ve *ValidationError) {
	if !cfg.Autosave.Enabled {
		return
	}
	if cfg.Autosave.Interval == "" {
		ve.Add("autosave.interval is required when autosave is enabled")
		return
	}
	if d, err := time.ParseDuration(cfg.Autosave.Interval); err != nil {
		ve.Add("autosave.interval %q is not a valid duration", cfg.Autosave.Interval)
	} else if d < time.Second {
		ve.Add("autosave.interval must be at least 1s (got %s)", d)
	}
}

func validateRunner(cfg *Config, ve *ValidationError) {
	if cfg.Runner.Command == "" {
		ve.Add("runner.command must not be empty")
	}
	checkDuration(ve, "runner.timeout", cfg.Runner.Timeout)
	checkDuration(ve, "runner.breaker_cooldown", cfg.Runner.BreakerCooldown)
	if cfg.Runner.MaxPromptTokens < 0 {
		ve.Add("runner.max_prompt_tokens must be >= 0")
	}
	if cfg.Runner.RatePerSecond < 0 {
		ve.Add("runner.rate_per_second must be >= 0")
	}
	if cfg.Runner.RatePerSecond > 0 && cfg.Runner.RateBurst <= 0 {
		ve.Add("runner.rate_burst must be > 0 when rate limiting is enabled")
	}
}

func validateWASM(cfg *Config, ve *ValidationError) {
	if cfg.WASM.MaxMemoryPages == 0 || cfg.WASM.MaxMemoryPages > 8192 {
		ve.Add("wasm.max_memory_pages must be between 1 and 8192 (got %d)", cfg.WASM.MaxMemoryPages)
	}
	if cfg.WASM.ExecTimeout != "" {
		d, err := time.ParseDuration(cfg.WASM.ExecTimeout)
		if err != nil {
			ve.Add("wasm.exec_timeout %q is not a valid duration", cfg.WASM.ExecTimeout)
		} else if d < time.Second || d > 5*time.Minute {
			ve.Add("wasm.exec_timeout must be between 1s and 5m (got %s)", d)
		}
	}
}

func validateJournal(cfg *Config, ve *ValidationError) {
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		ve.Add("journal.path is required when journal is enabled")
	}
}

var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[cfg.Logger.Level] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"":       true,
	"stdout": true,
	"noop":   true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}

// checkDuration validates an optional duration string field.
func checkDuration(ve *ValidationError, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		ve.Add("%s %q is not a valid duration", field, value)
	}
}
