package handler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/offloadlab/offload/pkg/payload"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds metadata about a wrapped function.
//
// Supported signatures: func([ctx context.Context][, args T]) error and
// func([ctx context.Context][, args T]) (R, error).
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type // nil when the function takes no args value
	ResultType reflect.Type // nil when the function returns only error
	HasContext bool
}

// New validates fn's signature and builds a Handler for it.
func New(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("function cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("function cannot be nil")
	}

	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("wrapped value must be a function")
	}

	h := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn > 2 {
		return nil, fmt.Errorf("function must take at most (ctx, args)")
	}
	argIdx := 0
	if numIn > 0 && fnType.In(0).Implements(ctxType) {
		h.HasContext = true
		argIdx = 1
	}
	switch numIn - argIdx {
	case 0:
	case 1:
		h.ArgsType = fnType.In(argIdx)
	default:
		return nil, fmt.Errorf("function must take at most one args value")
	}

	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errType) {
			return nil, fmt.Errorf("function must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errType) {
			return nil, fmt.Errorf("function must return (T, error)")
		}
		h.ResultType = fnType.Out(0)
	default:
		return nil, fmt.Errorf("function must return error or (T, error)")
	}

	return h, nil
}

// Invoke runs the function with args, coercing args to the declared type
// through a codec round trip when the caller passed a looser value.
func (h *Handler) Invoke(ctx context.Context, args any) (any, error) {
	var in []reflect.Value

	if h.HasContext {
		in = append(in, reflect.ValueOf(ctx))
	}

	if h.ArgsType != nil {
		argVal := reflect.ValueOf(args)
		if !argVal.IsValid() || argVal.Type() != h.ArgsType {
			coerced, err := h.coerceArgs(args)
			if err != nil {
				return nil, err
			}
			argVal = coerced
		}
		in = append(in, argVal)
	}

	out := h.Fn.Call(in)

	switch len(out) {
	case 1:
		if !out[0].IsNil() {
			return nil, out[0].Interface().(error)
		}
		return nil, nil
	default:
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// InvokeEncoded decodes a transport payload into the declared args type and
// invokes the function.
func (h *Handler) InvokeEncoded(ctx context.Context, encoded string) (any, error) {
	var args any
	if h.ArgsType != nil {
		ptr := reflect.New(h.ArgsType)
		if err := payload.Decode(encoded, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decoding args: %w", err)
		}
		args = ptr.Elem().Interface()
	}
	return h.Invoke(ctx, args)
}

func (h *Handler) coerceArgs(args any) (reflect.Value, error) {
	encoded, err := payload.Encode(args, payload.WithSizeLimit(payload.NoSizeLimit))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("coercing args: %w", err)
	}
	ptr := reflect.New(h.ArgsType)
	if err := payload.Decode(encoded, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("coercing args to %s: %w", h.ArgsType, err)
	}
	return ptr.Elem(), nil
}
