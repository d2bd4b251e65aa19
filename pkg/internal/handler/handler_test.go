package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadlab/offload/pkg/payload"
)

type addArgs struct {
	A, B int
}

func TestNew_AcceptedSignatures(t *testing.T) {
	cases := []struct {
		name       string
		fn         any
		hasContext bool
		hasArgs    bool
		hasResult  bool
	}{
		{"error only", func() error { return nil }, false, false, false},
		{"ctx, error", func(ctx context.Context) error { return nil }, true, false, false},
		{"args, error", func(n int) error { return nil }, false, true, false},
		{"ctx, args, error", func(ctx context.Context, n int) error { return nil }, true, true, false},
		{"result", func() (string, error) { return "", nil }, false, false, true},
		{"ctx, args, result", func(ctx context.Context, a addArgs) (int, error) { return 0, nil }, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := New(tc.fn)
			require.NoError(t, err)
			assert.Equal(t, tc.hasContext, h.HasContext)
			assert.Equal(t, tc.hasArgs, h.ArgsType != nil)
			assert.Equal(t, tc.hasResult, h.ResultType != nil)
		})
	}
}

func TestNew_RejectedSignatures(t *testing.T) {
	cases := []struct {
		name string
		fn   any
	}{
		{"nil", nil},
		{"not a function", 42},
		{"no return", func() {}},
		{"non-error return", func() int { return 0 }},
		{"wrong second return", func() (int, string) { return 0, "" }},
		{"three returns", func() (int, int, error) { return 0, 0, nil }},
		{"too many params", func(ctx context.Context, a, b int) error { return nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.fn)
			assert.Error(t, err)
		})
	}
}

func TestInvoke_PassesArgsAndContext(t *testing.T) {
	h, err := New(func(ctx context.Context, a addArgs) (int, error) {
		return a.A + a.B, nil
	})
	require.NoError(t, err)

	res, err := h.Invoke(context.Background(), addArgs{A: 2, B: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, res)
}

func TestInvoke_ErrorOnlyFunctionReturnsNilResult(t *testing.T) {
	called := false
	h, err := New(func() error {
		called = true
		return nil
	})
	require.NoError(t, err)

	res, err := h.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, called)
}

func TestInvoke_PropagatesFunctionError(t *testing.T) {
	boom := errors.New("boom")
	h, err := New(func() (int, error) { return 0, boom })
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestInvoke_CoercesLooselyTypedArgs(t *testing.T) {
	h, err := New(func(a addArgs) (int, error) { return a.A + a.B, nil })
	require.NoError(t, err)

	// A map stands in for the struct, as it would after a legacy decode.
	res, err := h.Invoke(context.Background(), map[string]any{"A": 4, "B": 6})
	require.NoError(t, err)
	assert.Equal(t, 10, res)
}

func TestInvokeEncoded_DecodesIntoDeclaredType(t *testing.T) {
	h, err := New(func(ctx context.Context, a addArgs) (int, error) {
		return a.A * a.B, nil
	})
	require.NoError(t, err)

	encoded, err := payload.Encode(addArgs{A: 3, B: 7})
	require.NoError(t, err)

	res, err := h.InvokeEncoded(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, 21, res)
}

func TestInvokeEncoded_MalformedPayload(t *testing.T) {
	h, err := New(func(a addArgs) error { return nil })
	require.NoError(t, err)

	_, err = h.InvokeEncoded(context.Background(), "garbage")
	assert.Error(t, err)
}
