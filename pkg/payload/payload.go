// Package payload turns call arguments and results into transport-safe
// strings and back.
//
// The wire form is a tagged string: CBOR-serialized, base64-encoded data
// behind the __CBOR__: marker, or a small store reference behind the
// __CBORREF__: marker when the value was redirected to the out-of-band
// store. Untagged strings are decoded as plain JSON for compatibility with
// simple hand-written payloads.
package payload

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	ucodec "github.com/ugorji/go/codec"

	"github.com/offloadlab/offload/pkg/core"
)

const (
	// MarkerDirect tags an inline CBOR+base64 payload.
	MarkerDirect = "__CBOR__:"

	// MarkerRef tags a redirect reference payload.
	MarkerRef = "__CBORREF__:"

	// ResultDelimiter separates user-printed output from the encoded result
	// in captured process stdout.
	ResultDelimiter = "__OFFLOAD_RESULT__"

	// DefaultSizeLimit is the transport payload ceiling (10 MiB).
	DefaultSizeLimit = 10 * 1024 * 1024

	// NoSizeLimit disables the size check.
	NoSizeLimit = -1
)

var cborHandle ucodec.CborHandle

func marshal(v any) ([]byte, error) {
	var buf []byte
	if err := ucodec.NewEncoderBytes(&buf, &cborHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("offload: payload serialization failed: %w", err)
	}
	return buf, nil
}

func unmarshal(data []byte, out any) error {
	if err := ucodec.NewDecoderBytes(data, &cborHandle).Decode(out); err != nil {
		return fmt.Errorf("offload: payload deserialization failed: %w", err)
	}
	return nil
}

// reference points at a value parked in the out-of-band store. Dir travels
// inside the reference so a child process can resolve payloads its parent
// encoded.
type reference struct {
	Dir string `codec:"dir"`
	Key string `codec:"key"`
}

type options struct {
	redirect  bool
	threshold int
	limit     int
	store     *Store
}

// Option configures Encode.
type Option func(*options)

// WithRedirect forces redirect encoding regardless of payload size.
func WithRedirect() Option {
	return func(o *options) { o.redirect = true }
}

// WithRedirectThreshold enables automatic redirect encoding for values whose
// serialized size exceeds n bytes.
func WithRedirectThreshold(n int) Option {
	return func(o *options) { o.threshold = n }
}

// WithSizeLimit overrides the transport size ceiling in bytes. Pass
// NoSizeLimit to allow arbitrarily large inline payloads.
func WithSizeLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// WithStore routes redirect encoding to a specific store instead of the
// process-wide shared one.
func WithStore(s *Store) Option {
	return func(o *options) { o.store = s }
}

// Encode serializes v into a tagged transport string.
//
// The default path is inline CBOR+base64 checked against the size limit.
// Redirect encoding (forced or threshold-triggered) parks the serialized
// bytes in the shared store and encodes a single-use reference instead.
func Encode(v any, opts ...Option) (string, error) {
	o := options{limit: DefaultSizeLimit}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := marshal(v)
	if err != nil {
		return "", err
	}

	if o.redirect || (o.threshold > 0 && len(raw) > o.threshold) {
		return encodeRef(raw, o.store)
	}

	encoded := MarkerDirect + base64.StdEncoding.EncodeToString(raw)
	if o.limit >= 0 && len(encoded) > o.limit {
		return "", &core.PayloadTooLargeError{Size: len(encoded), Limit: o.limit}
	}
	return encoded, nil
}

func encodeRef(raw []byte, store *Store) (string, error) {
	if store == nil {
		var err error
		store, err = Shared()
		if err != nil {
			return "", err
		}
	}
	key, err := store.Put(raw)
	if err != nil {
		return "", err
	}
	refRaw, err := marshal(reference{Dir: store.Dir(), Key: key})
	if err != nil {
		return "", err
	}
	return MarkerRef + base64.StdEncoding.EncodeToString(refRaw), nil
}

// Decode parses a tagged transport string into out, which must be a pointer.
// Reference payloads are resolved from the store and evicted: they decode
// exactly once. Untagged payloads are parsed as plain JSON.
func Decode(s string, out any) error {
	switch {
	case strings.HasPrefix(s, MarkerRef):
		refRaw, err := base64.StdEncoding.DecodeString(s[len(MarkerRef):])
		if err != nil {
			return fmt.Errorf("offload: malformed reference payload: %w", err)
		}
		var ref reference
		if err := unmarshal(refRaw, &ref); err != nil {
			return err
		}
		raw, err := resolveRef(ref)
		if err != nil {
			return err
		}
		return unmarshal(raw, out)

	case strings.HasPrefix(s, MarkerDirect):
		raw, err := base64.StdEncoding.DecodeString(s[len(MarkerDirect):])
		if err != nil {
			return fmt.Errorf("offload: malformed payload: %w", err)
		}
		return unmarshal(raw, out)

	default:
		if err := sonic.Unmarshal([]byte(s), out); err != nil {
			return fmt.Errorf("offload: payload is neither tagged nor valid JSON: %w", err)
		}
		return nil
	}
}

func resolveRef(ref reference) ([]byte, error) {
	if ref.Key == "" {
		return nil, core.ErrPayloadUnavailable
	}
	dir := ref.Dir
	if dir == "" {
		store, err := Shared()
		if err != nil {
			return nil, err
		}
		dir = store.Dir()
	}
	return NewStore(dir).Take(ref.Key)
}

// DecodeStdout splits captured process stdout into user-printed output and
// the encoded result, decoding the result into out. When no delimiter is
// present the whole string is treated as the result and user output is
// empty.
func DecodeStdout(stdout string, out any) (string, error) {
	if i := strings.Index(stdout, ResultDelimiter); i >= 0 {
		userOut := strings.TrimRight(stdout[:i], "\n")
		encoded := strings.Trim(stdout[i+len(ResultDelimiter):], "\n")
		return userOut, Decode(encoded, out)
	}
	return "", Decode(strings.TrimSpace(stdout), out)
}
