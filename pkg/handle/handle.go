// Package handle adapts raw asynchronous task handles into ones that decode
// results and translate remote failures.
package handle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/payload"
)

// Handle wraps a raw submission handle. Result decodes the transport payload
// into the function's declared return type and raises a translated error
// when the remote exit indicates failure.
//
// Endpoint, Config, and FunctionName are attached by the dispatcher for
// diagnostics.
type Handle struct {
	Endpoint     string
	Config       *core.EndpointConfig
	FunctionName string

	raw        core.RawHandle
	resultType reflect.Type
	onDone     func(*core.ShellResult, error)

	mu      sync.Mutex
	settled bool
	result  any
	userOut string
	err     error
}

// Wrap adapts a raw handle. resultType may be nil for functions that return
// only an error.
func Wrap(raw core.RawHandle, resultType reflect.Type) *Handle {
	return &Handle{raw: raw, resultType: resultType}
}

// SetOnDone registers a hook invoked once when the task settles. Used by the
// dispatcher to record completion in the history ledger.
func (h *Handle) SetOnDone(fn func(*core.ShellResult, error)) {
	h.onDone = fn
}

// TaskID returns the submission interface's task identifier.
func (h *Handle) TaskID() string {
	return h.raw.TaskID()
}

// Done reports whether the task has finished.
func (h *Handle) Done() bool {
	return h.raw.Done()
}

// Cancel asks the submission interface to stop the task. It returns false
// when the task was already running and could not be stopped.
func (h *Handle) Cancel(ctx context.Context) (bool, error) {
	return h.raw.Cancel(ctx)
}

// Result blocks until the task finishes or ctx is done, then returns the
// decoded return value. A nonzero remote exit surfaces as a
// *core.RemoteExecutionError. Terminal outcomes are memoized; a ctx
// deadline is not, so callers can poll with short timeouts.
func (h *Handle) Result(ctx context.Context) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.settled {
		return h.result, h.err
	}

	sr, err := h.raw.Result(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		h.settle(sr, nil, "", err)
		return nil, err
	}

	if sr.ExitCode != 0 {
		rerr := &core.RemoteExecutionError{
			Message:  fmt.Sprintf("remote execution of %s failed", h.FunctionName),
			Cmd:      sr.Cmd,
			Stdout:   sr.Stdout,
			Stderr:   sr.Stderr,
			ExitCode: sr.ExitCode,
		}
		h.settle(sr, nil, "", rerr)
		return nil, rerr
	}

	result, userOut, err := decodeResult(sr.Stdout, h.resultType)
	h.settle(sr, result, userOut, err)
	return result, err
}

func decodeResult(stdout string, resultType reflect.Type) (any, string, error) {
	if resultType == nil {
		var discard any
		userOut, err := payload.DecodeStdout(stdout, &discard)
		return nil, userOut, err
	}
	ptr := reflect.New(resultType)
	userOut, err := payload.DecodeStdout(stdout, ptr.Interface())
	if err != nil {
		return nil, userOut, err
	}
	return ptr.Elem().Interface(), userOut, nil
}

func (h *Handle) settle(sr *core.ShellResult, result any, userOut string, err error) {
	h.settled = true
	h.result = result
	h.userOut = userOut
	h.err = err
	if h.onDone != nil {
		h.onDone(sr, err)
		h.onDone = nil
	}
}

// UserOutput returns whatever the remote function printed before the result
// delimiter. Only meaningful after Result has settled.
func (h *Handle) UserOutput() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userOut
}

// Await waits on h and returns its result as T.
func Await[T any](ctx context.Context, h *Handle) (T, error) {
	var zero T
	res, err := h.Result(ctx)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("offload: result is %T, not %T", res, zero)
	}
	return typed, nil
}
