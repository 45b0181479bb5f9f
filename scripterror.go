package ivbridge

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ScriptError represents an error raised by interpreter code. Interpreter
// error types never cross the boundary directly; they are translated into a
// ScriptError carrying the error class, message, and backtrace.
type ScriptError struct {
	// Exception is the error class (e.g., "EvalError", "SyntaxError").
	Exception string `yaml:"exception"`

	// Message is the error message without position information.
	Message string `yaml:"message"`

	// Traceback is the interpreter call stack at the point of failure.
	Traceback string `yaml:"traceback"`

	// Cause is the script error that triggered this one, if any.
	Cause *ScriptError `yaml:"cause,omitempty"`

	// hostErr is a host error raised from inside a builtin.
	hostErr error
}

// ToString formats the error with its traceback and any chained causes.
func (e *ScriptError) ToString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Exception, e.Message)
	if e.Traceback != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Traceback)
	}
	if e.Cause != nil {
		sb.WriteString("\nCaused by: ")
		sb.WriteString(e.Cause.ToString())
	}
	return sb.String()
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Exception, e.Message)
}

// Unwrap returns the host error raised inside a builtin, if any.
func (e *ScriptError) Unwrap() error {
	if e.hostErr != nil {
		return e.hostErr
	}
	if e.Cause != nil {
		return e.Cause
	}
	return nil
}

// translateScriptError converts interpreter errors into *ScriptError and
// passes host errors through unchanged.
func translateScriptError(err error) error {
	if err == nil {
		return nil
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		se := &ScriptError{
			Exception: "EvalError",
			Message:   evalErr.Msg,
			Traceback: evalErr.Backtrace(),
		}
		if cause := evalErr.Unwrap(); cause != nil {
			if inner, ok := translateScriptError(cause).(*ScriptError); ok {
				se.Cause = inner
			} else {
				se.hostErr = cause
			}
		}
		return se
	}
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &ScriptError{Exception: "SyntaxError", Message: synErr.Msg, Traceback: synErr.Pos.String()}
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		lines := make([]string, len(resolveErrs))
		for i, re := range resolveErrs {
			lines[i] = re.Pos.String() + ": " + re.Msg
		}
		return &ScriptError{
			Exception: "ResolveError",
			Message:   resolveErrs[0].Msg,
			Traceback: strings.Join(lines, "\n"),
		}
	}
	return err
}
