package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInHarness       = errors.New("offload: remote invocation is only allowed from within a running harness")
	ErrNoEndpoint         = errors.New("offload: no endpoint specified")
	ErrPayloadUnavailable = errors.New("offload: payload reference unavailable (already consumed or store missing)")
	ErrTaskCanceled       = errors.New("offload: task canceled")
)

// VariantNotFoundError reports a dotted target path segment that does not
// exist in the embedded configuration.
type VariantNotFoundError struct {
	Segment string // the missing segment
	Path    string // the path resolved so far
}

func (e *VariantNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("offload: target %q not found in embedded config", e.Segment)
	}
	return fmt.Sprintf("offload: variant %q not found under %q", e.Segment, e.Path)
}

// InvalidVariantError reports a path segment that resolved to a scalar value
// where a variant table was required.
type InvalidVariantError struct {
	Segment string
	Path    string
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("offload: %q under %q is not a valid variant (expected a config table)", e.Segment, e.Path)
}

// ConfigValueError reports an embedded or call-site config field that failed
// validation.
type ConfigValueError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigValueError) Error() string {
	return fmt.Sprintf("offload: invalid config value for %q (%v): %s", e.Field, e.Value, e.Reason)
}

// PayloadTooLargeError is raised when an encoded payload exceeds the
// transport size limit. Size and Limit are in bytes.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("offload: payload size (%.2f MB) exceeds the %.2f MB transport limit; "+
		"consider redirect encoding for large arguments",
		float64(e.Size)/(1024*1024), float64(e.Limit)/(1024*1024))
}

// RemoteExecutionError is the failure mode of a remote task: the shell unit
// exited nonzero on the endpoint.
type RemoteExecutionError struct {
	Message  string
	Cmd      string
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *RemoteExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nexit code: %d\n\n   cmd:\n%s\n\n   stdout:\n%s",
		e.Message, e.ExitCode, e.Cmd, TailLines(e.Stdout, 10, 1024))
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, "\n\n   stderr:\n%s", TailLines(e.Stderr, 10, 1024))
	}
	return b.String()
}

// TailLines returns at most the last maxLines lines of the last maxBytes
// bytes of s, prefixing a truncation notice when anything was dropped.
func TailLines(s string, maxLines, maxBytes int) string {
	trimmed := strings.TrimRight(strings.TrimLeft(s, "\n"), " \n\t")
	tail := trimmed
	if len(tail) > maxBytes {
		tail = tail[len(tail)-maxBytes:]
	}
	lines := strings.Split(tail, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := strings.Join(lines, "\n")
	if out != trimmed {
		out = "[... truncated ...]\n" + out
	}
	return out
}

// LocalExecutionError is the local-only analogue of RemoteExecutionError,
// raised when an isolated subprocess exits nonzero.
type LocalExecutionError struct {
	Stderr   string
	ExitCode int
	Err      error
}

func (e *LocalExecutionError) Error() string {
	msg := fmt.Sprintf("offload: isolated subprocess failed (exit code %d)", e.ExitCode)
	if e.Stderr != "" {
		msg += "\n" + TailLines(e.Stderr, 10, 1024)
	}
	return msg
}

func (e *LocalExecutionError) Unwrap() error {
	return e.Err
}

// ModuleInitError is raised when a remote-triggering method is invoked while
// the owning unit is still initializing. CallChain describes where the call
// came from.
type ModuleInitError struct {
	Function  string
	Method    string
	Unit      string
	CallChain string
}

func (e *ModuleInitError) Error() string {
	return fmt.Sprintf(
		"offload: cannot call %s.%s.%s() while unit %q is still initializing\n"+
			"\n"+
			"Call chain:\n%s\n"+
			"\n"+
			"Move the call into a harness, or call Unit.Ready() once registration is complete.",
		e.Unit, e.Function, e.Method, e.Unit, e.CallChain)
}
