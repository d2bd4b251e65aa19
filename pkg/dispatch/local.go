package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/payload"
)

// Local runs the function in an isolated subprocess: the current binary is
// re-executed in runner mode with the encoded args parked in a temp file.
// The child inherits the shared payload store and runs with the size limit
// disabled.
//
// When the owning unit has not finished initializing and the call is not
// inside a harness, Local falls back to a direct in-process call. Spawning
// there would re-run the same initialization in the child and recurse
// without bound.
func (f *Function) Local(ctx context.Context, args any) (any, error) {
	if f.unit.State() != StateReady && !InHarness(ctx) {
		return f.handler.Invoke(ctx, args)
	}

	encoded, err := payload.Encode(args, payload.WithSizeLimit(payload.NoSizeLimit))
	if err != nil {
		return nil, err
	}

	// Materialize the shared store before spawning so the child inherits
	// its directory and can resolve redirected payloads.
	if _, err := payload.Shared(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "offload-local-")
	if err != nil {
		return nil, fmt.Errorf("offload: staging local call: %w", err)
	}
	defer os.RemoveAll(dir)

	payloadPath := filepath.Join(dir, "payload")
	if err := os.WriteFile(payloadPath, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("offload: staging local call: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("offload: locating executable: %w", err)
	}

	spec := &core.CommandSpec{
		Path: exe,
		Args: []string{core.RunnerArg, f.unit.name, f.name, payloadPath},
		Env:  append(os.Environ(), core.EnvNoSizeLimit+"=1"),
	}
	sr, err := f.env.Runner.Run(ctx, spec)
	if err != nil {
		return nil, &core.LocalExecutionError{Err: err}
	}
	if sr.Stderr != "" {
		writePrefixed(f.env.ErrOutput, "[local]", sr.Stderr)
	}
	if sr.ExitCode != 0 {
		return nil, &core.LocalExecutionError{Stderr: sr.Stderr, ExitCode: sr.ExitCode}
	}

	result, userOut, err := decodeShellResult(sr.Stdout, f.handler.ResultType)
	if userOut != "" {
		writePrefixed(f.env.Output, "[local]", userOut)
	}
	return result, err
}

func decodeShellResult(stdout string, resultType reflect.Type) (any, string, error) {
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

// writePrefixed relays captured subprocess output one line at a time, each
// line tagged with its origin.
func writePrefixed(w io.Writer, prefix, text string) {
	if w == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(w, "%s %s\n", prefix, line)
	}
}
