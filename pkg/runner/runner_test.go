package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadlab/offload/pkg/dispatch"
	"github.com/offloadlab/offload/pkg/payload"
)

func writePayload(t *testing.T, v any) string {
	t.Helper()
	encoded, err := payload.Encode(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o600))
	return path
}

func newRunnerUnit(t *testing.T) *dispatch.Unit {
	t.Helper()
	u := dispatch.NewUnit("sim", nil)
	u.Function("double", func(ctx context.Context, n int) (int, error) { return n * 2, nil })
	u.Function("fail", func(ctx context.Context, n int) (int, error) { return 0, errors.New("boom") })
	return u
}

func TestRun_InvokesAndPrintsResult(t *testing.T) {
	u := newRunnerUnit(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"sim", "double", writePayload(t, 21)}, []*dispatch.Unit{u}, &stdout, &stderr)

	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), payload.ResultDelimiter)

	var n int
	_, err := payload.DecodeStdout(stdout.String(), &n)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRun_FunctionErrorExitsOne(t *testing.T) {
	u := newRunnerUnit(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"sim", "fail", writePayload(t, 1)}, []*dispatch.Unit{u}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "boom")
	assert.NotContains(t, stdout.String(), payload.ResultDelimiter)
}

func TestRun_UnknownUnit(t *testing.T) {
	u := newRunnerUnit(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"other", "double", writePayload(t, 1)}, []*dispatch.Unit{u}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "unknown unit")
}

func TestRun_UnknownFunction(t *testing.T) {
	u := newRunnerUnit(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"sim", "missing", writePayload(t, 1)}, []*dispatch.Unit{u}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "missing")
}

func TestRun_BadUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"sim"}, nil, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "usage:"))
}

func TestRun_MissingPayloadFile(t *testing.T) {
	u := newRunnerUnit(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"sim", "double", "/does/not/exist"}, []*dispatch.Unit{u}, &stdout, &stderr)

	assert.Equal(t, 2, code)
}

func TestMaybe_NoMarkerReturns(t *testing.T) {
	// os.Args carries the test binary's arguments, never the runner marker,
	// so Maybe must return without exiting the process.
	Maybe(newRunnerUnit(t))
}
