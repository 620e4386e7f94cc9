package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Replay or scenario failure (handler error, nondeterminism, failed scenarios)
	ExitCommandError = 2 // Command error (invalid paths, unknown recording, etc.)
)

// Error codes reported in JSON responses.
const (
	CodeNotFound       = "E_NOT_FOUND"
	CodeExists         = "E_EXISTS"
	CodeReplay         = "E_REPLAY"
	CodeNondeterminism = "E_NONDETERMINISTIC"
	CodeTestFailed     = "E_TEST_FAILED"
	CodeInternal       = "E_INTERNAL"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // command result, also on error when partial
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// newCLIError classifies err. Replay errors carry their SimError code and
// the failing event as details.
func newCLIError(err error) *CLIError {
	var simErr *ir.SimError
	switch {
	case errors.As(err, &simErr):
		details := map[string]any{"sim_code": string(simErr.Code)}
		if simErr.EventType != "" {
			details["event_id"] = simErr.EventID
			details["event_type"] = simErr.EventType
			details["seq"] = simErr.Seq
		}
		return &CLIError{Code: CodeReplay, Message: err.Error(), Details: details}
	case errors.Is(err, store.ErrRecordingNotFound):
		return &CLIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrRecordingExists):
		return &CLIError{Code: CodeExists, Message: err.Error()}
	default:
		return &CLIError{Code: CodeInternal, Message: err.Error()}
	}
}

// writeJSON encodes resp indented.
func writeJSON(w io.Writer, resp CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// writeOK writes a successful JSON response.
func writeOK(w io.Writer, data any) error {
	return writeJSON(w, CLIResponse{Status: "ok", Data: data})
}

// writeFailed writes an error JSON response that still carries data.
func writeFailed(w io.Writer, data any, err error) error {
	return writeJSON(w, CLIResponse{Status: "error", Data: data, Error: newCLIError(err)})
}
