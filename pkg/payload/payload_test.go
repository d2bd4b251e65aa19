package payload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offloadlab/offload/pkg/core"
)

type simArgs struct {
	Steps int
	Label string
	Grid  []float64
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := simArgs{Steps: 100, Label: "baseline", Grid: []float64{1.5, 2.5}}

	encoded, err := Encode(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, MarkerDirect))

	var out simArgs
	require.NoError(t, Decode(encoded, &out))
	assert.Equal(t, in, out)
}

func TestEncodeDecode_NilValue(t *testing.T) {
	encoded, err := Encode(nil)
	require.NoError(t, err)

	var out any
	require.NoError(t, Decode(encoded, &out))
	assert.Nil(t, out)
}

func TestEncode_SizeLimit(t *testing.T) {
	big := strings.Repeat("x", 512)

	_, err := Encode(big, WithSizeLimit(64))

	var tooLarge *core.PayloadTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 64, tooLarge.Limit)
	assert.Greater(t, tooLarge.Size, 512)
}

func TestEncode_NoSizeLimit(t *testing.T) {
	big := strings.Repeat("x", 512)

	encoded, err := Encode(big, WithSizeLimit(NoSizeLimit))
	require.NoError(t, err)

	var out string
	require.NoError(t, Decode(encoded, &out))
	assert.Equal(t, big, out)
}

func TestEncode_RedirectRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	in := simArgs{Steps: 7, Label: "redirected"}

	encoded, err := Encode(in, WithRedirect(), WithStore(store))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, MarkerRef))

	var out simArgs
	require.NoError(t, Decode(encoded, &out))
	assert.Equal(t, in, out)
}

func TestDecode_ReferenceIsSingleUse(t *testing.T) {
	store := NewStore(t.TempDir())
	encoded, err := Encode("once", WithRedirect(), WithStore(store))
	require.NoError(t, err)

	var out string
	require.NoError(t, Decode(encoded, &out))

	err = Decode(encoded, &out)
	assert.ErrorIs(t, err, core.ErrPayloadUnavailable)
}

func TestEncode_RedirectThreshold(t *testing.T) {
	store := NewStore(t.TempDir())

	small, err := Encode("tiny", WithRedirectThreshold(1024), WithStore(store))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(small, MarkerDirect))

	big, err := Encode(strings.Repeat("x", 2048), WithRedirectThreshold(1024), WithStore(store))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(big, MarkerRef))
}

func TestDecode_LegacyJSON(t *testing.T) {
	var out map[string]any
	require.NoError(t, Decode(`{"steps": 3, "label": "plain"}`, &out))

	assert.Equal(t, "plain", out["label"])
}

func TestDecode_GarbageInput(t *testing.T) {
	var out any
	assert.Error(t, Decode("not json and not tagged", &out))
}

func TestDecode_CorruptBase64(t *testing.T) {
	var out any
	assert.Error(t, Decode(MarkerDirect+"!!!not-base64!!!", &out))
}

func TestDecodeStdout_SplitsUserOutput(t *testing.T) {
	encoded, err := Encode(42)
	require.NoError(t, err)
	stdout := "progress 1\nprogress 2\n" + ResultDelimiter + "\n" + encoded + "\n"

	var out int
	userOut, err := DecodeStdout(stdout, &out)
	require.NoError(t, err)

	assert.Equal(t, "progress 1\nprogress 2", userOut)
	assert.Equal(t, 42, out)
}

func TestDecodeStdout_NoDelimiter(t *testing.T) {
	encoded, err := Encode("bare")
	require.NoError(t, err)

	var out string
	userOut, err := DecodeStdout(encoded+"\n", &out)
	require.NoError(t, err)

	assert.Empty(t, userOut)
	assert.Equal(t, "bare", out)
}
