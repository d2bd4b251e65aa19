package dispatch

import (
	"context"

	"github.com/offloadlab/offload/pkg/payload"
)

// HarnessFunc is the signature of an orchestration entry point.
type HarnessFunc func(ctx context.Context) error

// Harness is the sanctioned orchestration context: the only place from which
// Submit and Remote calls are permitted.
type Harness struct {
	name string
	unit *Unit
	fn   HarnessFunc
}

// Name returns the harness name.
func (h *Harness) Name() string {
	return h.name
}

// Run marks the owning unit Ready, executes the harness body inside an
// orchestration context, and tears down the shared payload store on the way
// out.
func (h *Harness) Run(ctx context.Context) error {
	h.unit.Ready()
	defer payload.CleanupShared()
	return h.fn(ContextWithHarness(ctx))
}

type harnessKey struct{}

// ContextWithHarness marks ctx as being inside an orchestration context.
// Harness.Run applies it automatically; tests and embedding frameworks with
// their own entry points may apply it directly.
func ContextWithHarness(ctx context.Context) context.Context {
	return context.WithValue(ctx, harnessKey{}, true)
}

// InHarness reports whether ctx is inside an orchestration context.
func InHarness(ctx context.Context) bool {
	ok, _ := ctx.Value(harnessKey{}).(bool)
	return ok
}
