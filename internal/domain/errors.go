package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the kernel. Control operations surface these (wrapped
// with operation context); handler hook failures never do — they are
// converted to structured results or recorded in the descriptor instead.
var (
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrAgentBusy        = fmt.Errorf("agent operation in progress")
	ErrHasDependents    = fmt.Errorf("agent has loaded dependents")
	ErrNotLoaded        = fmt.Errorf("agent not loaded")
	ErrDriverNotFound   = fmt.Errorf("module driver not found")
	ErrModuleUnresolved = fmt.Errorf("module reference cannot be resolved")
	ErrManifestInvalid  = fmt.Errorf("agent manifest invalid")
	ErrFallbackInvalid  = fmt.Errorf("fallback route invalid")
	ErrRunnerFailure    = fmt.Errorf("model runner invocation failed")
	ErrRunnerTimeout    = fmt.Errorf("model runner timed out")
	ErrWASMLoad         = fmt.Errorf("wasm module load failed")
	ErrWASMExec         = fmt.Errorf("wasm call failed")
	ErrJournalWrite     = fmt.Errorf("journal write failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "kernel.load")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for management surfaces.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentBusy        ErrorCode = "AGENT_BUSY"
	CodeHasDependents    ErrorCode = "AGENT_HAS_DEPENDENTS"
	CodeNotLoaded        ErrorCode = "AGENT_NOT_LOADED"
	CodeDriverNotFound   ErrorCode = "DRIVER_NOT_FOUND"
	CodeModuleUnresolved ErrorCode = "MODULE_UNRESOLVED"
	CodeManifestInvalid  ErrorCode = "MANIFEST_INVALID"
	CodeFallbackInvalid  ErrorCode = "FALLBACK_INVALID"
	CodeRunnerFailure    ErrorCode = "RUNNER_FAILURE"
	CodeRunnerTimeout    ErrorCode = "RUNNER_TIMEOUT"
	CodeWASMLoad         ErrorCode = "WASM_LOAD"
	CodeWASMExec         ErrorCode = "WASM_EXEC"
	CodeJournalWrite     ErrorCode = "JOURNAL_WRITE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrAgentBusy:        CodeAgentBusy,
	ErrHasDependents:    CodeHasDependents,
	ErrNotLoaded:        CodeNotLoaded,
	ErrDriverNotFound:   CodeDriverNotFound,
	ErrModuleUnresolved: CodeModuleUnresolved,
	ErrManifestInvalid:  CodeManifestInvalid,
	ErrFallbackInvalid:  CodeFallbackInvalid,
	ErrRunnerFailure:    CodeRunnerFailure,
	ErrRunnerTimeout:    CodeRunnerTimeout,
	ErrWASMLoad:         CodeWASMLoad,
	ErrWASMExec:         CodeWASMExec,
	ErrJournalWrite:     CodeJournalWrite,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
