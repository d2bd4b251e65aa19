package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offloadlab/offload/pkg/config"
	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/handle"
	"github.com/offloadlab/offload/pkg/history"
	"github.com/offloadlab/offload/pkg/internal/handler"
	"github.com/offloadlab/offload/pkg/payload"
)

// CallOptions collects the per-call (or decoration-time) execution settings.
type CallOptions struct {
	// Endpoint is a target path: a UUID, a base name, or a dotted variant
	// path like "anvil.gpu".
	Endpoint string

	// Walltime overrides the resolved execution time bound.
	Walltime time.Duration

	// Config is merged as the corresponding precedence layer.
	Config *core.EndpointConfig
}

// CallOption adjusts one call (when passed to Submit/Remote) or sets the
// wrapped function's defaults (when passed to Unit.Function).
type CallOption func(*CallOptions)

// OnEndpoint selects the target the work should run on.
func OnEndpoint(target string) CallOption {
	return func(o *CallOptions) { o.Endpoint = target }
}

// WithWalltime bounds execution time.
func WithWalltime(d time.Duration) CallOption {
	return func(o *CallOptions) { o.Walltime = d }
}

// WithConfig supplies endpoint configuration for the corresponding layer.
func WithConfig(cfg *core.EndpointConfig) CallOption {
	return func(o *CallOptions) { o.Config = cfg }
}

func gatherCallOptions(opts []CallOption) *CallOptions {
	co := &CallOptions{}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Function is a wrapped callable: the original function plus its default
// target, its decoration-time config seed, and a lazily built, cached remote
// submittable.
type Function struct {
	name    string
	unit    *Unit
	env     *Environment
	handler *handler.Handler

	endpoint string
	walltime time.Duration
	defaults *core.EndpointConfig

	subOnce sync.Once
	sub     *core.Submittable
	subErr  error
}

// Name returns the function's registered name.
func (f *Function) Name() string {
	return f.name
}

// QualifiedName returns "<unit>.<function>".
func (f *Function) QualifiedName() string {
	return f.unit.name + "." + f.name
}

// ResultType returns the function's declared result type, or nil when it
// returns only an error.
func (f *Function) ResultType() reflect.Type {
	return f.handler.ResultType
}

// Call invokes the function in-process. No configuration is resolved and
// nothing is serialized; side effects are the function's own.
func (f *Function) Call(ctx context.Context, args any) (any, error) {
	return f.handler.Invoke(ctx, args)
}

// InvokeEncoded decodes a transport payload into the function's args type
// and invokes it in-process. The runner entry point uses this in child
// processes.
func (f *Function) InvokeEncoded(ctx context.Context, encoded string) (any, error) {
	return f.handler.InvokeEncoded(ctx, encoded)
}

// Submit hands the call to the external submission interface and returns a
// wrapped handle. It must be called from within a running harness, on a unit
// that has finished initializing. Configuration resolution strictly precedes
// payload encoding, which strictly precedes submission, so config and
// payload-size errors surface here rather than from the handle.
func (f *Function) Submit(ctx context.Context, args any, opts ...CallOption) (*handle.Handle, error) {
	if state := f.unit.State(); state != StateReady {
		return nil, &core.ModuleInitError{
			Function:  f.name,
			Method:    "Submit",
			Unit:      f.unit.name,
			CallChain: callChain(1),
		}
	}
	if !InHarness(ctx) {
		return nil, core.ErrNotInHarness
	}
	if f.env.Submitter == nil {
		return nil, fmt.Errorf("offload: environment has no submitter configured")
	}

	co := gatherCallOptions(opts)

	target := co.Endpoint
	if target == "" {
		target = f.endpoint
	}

	cfg, err := f.env.Resolver().Resolve(target, f.decorationLayer(), callTimeLayer(co))
	if err != nil {
		return nil, err
	}

	// The embedded config's endpoint field maps friendly names to UUIDs;
	// without one, the target itself must be the UUID.
	endpointStr := cfg.Endpoint
	if endpointStr == "" {
		endpointStr = target
	}
	if endpointStr == "" {
		if targets := f.env.Resolver().Targets(); len(targets) > 0 {
			return nil, fmt.Errorf("%w; targets available in embedded config: %s",
				core.ErrNoEndpoint, strings.Join(targets, ", "))
		}
		return nil, core.ErrNoEndpoint
	}
	endpointID, err := uuid.Parse(endpointStr)
	if err != nil {
		return nil, fmt.Errorf("offload: target %q resolved to %q, which is not an endpoint UUID: %w",
			target, endpointStr, err)
	}

	walltime := cfg.Walltime
	if walltime == 0 {
		walltime = config.DefaultWalltime
	}

	userCfg := cfg.UserConfig()
	if f.env.Schemas != nil {
		if allowed, ok := f.env.Schemas.AllowedKeys(endpointID); ok {
			userCfg = core.FilterKeys(userCfg, allowed)
		}
	}

	sub, err := f.submittable(walltime)
	if err != nil {
		return nil, err
	}

	encoded, err := payload.Encode(args)
	if err != nil {
		return nil, err
	}

	raw, err := f.env.Submitter.Submit(ctx, &core.SubmitRequest{
		Endpoint:    endpointID,
		Config:      userCfg,
		Submittable: sub,
		Payload:     encoded,
	})
	if err != nil {
		return nil, fmt.Errorf("offload: submitting %s: %w", f.QualifiedName(), err)
	}

	h := handle.Wrap(raw, f.handler.ResultType)
	h.Endpoint = endpointStr
	h.Config = cfg
	h.FunctionName = f.QualifiedName()
	f.recordSubmission(ctx, h)
	return h, nil
}

// Remote submits the call and blocks until it completes, polling the handle
// at the environment's interval and rendering a status line. The wait is
// interruptible: see the package's cancellation semantics.
func (f *Function) Remote(ctx context.Context, args any, opts ...CallOption) (any, error) {
	h, err := f.Submit(ctx, args, opts...)
	if err != nil {
		return nil, err
	}
	if err := waitForResult(ctx, f.env, h); err != nil {
		return nil, err
	}
	res, err := h.Result(ctx)
	if userOut := h.UserOutput(); userOut != "" {
		writePrefixed(f.env.Output, "[remote]", userOut)
	}
	return res, err
}

// decorationLayer assembles the decoration-time config layer from the
// wrapped function's defaults.
func (f *Function) decorationLayer() *core.EndpointConfig {
	layer := f.defaults.Clone()
	if f.walltime != 0 {
		layer.Walltime = f.walltime
	}
	return layer
}

// callTimeLayer assembles the highest-precedence layer from per-call
// options.
func callTimeLayer(co *CallOptions) *core.EndpointConfig {
	layer := co.Config.Clone()
	if co.Walltime != 0 {
		layer.Walltime = co.Walltime
	}
	return layer
}

// submittable returns the cached remote-invocation template, building it on
// first use. The first submission's walltime is baked into the template;
// later calls reuse it.
func (f *Function) submittable(walltime time.Duration) (*core.Submittable, error) {
	f.subOnce.Do(func() {
		f.sub, f.subErr = f.env.Builder.Build(f.env.ScriptPath, f.QualifiedName(), walltime)
	})
	return f.sub, f.subErr
}

func (f *Function) recordSubmission(ctx context.Context, h *handle.Handle) {
	ledger := f.env.History
	if ledger == nil {
		return
	}
	rec := &history.TaskRecord{
		TaskID:   h.TaskID(),
		Function: h.FunctionName,
		Endpoint: h.Endpoint,
	}
	if err := ledger.RecordSubmitted(ctx, rec); err != nil {
		fmt.Fprintf(f.env.ErrOutput, "offload: recording submission %s: %v\n", h.TaskID(), err)
		return
	}
	h.SetOnDone(func(sr *core.ShellResult, taskErr error) {
		exitCode := 0
		if sr != nil {
			exitCode = sr.ExitCode
		}
		if err := ledger.RecordSettled(context.WithoutCancel(ctx), h.TaskID(), exitCode, taskErr); err != nil {
			fmt.Fprintf(f.env.ErrOutput, "offload: recording completion %s: %v\n", h.TaskID(), err)
		}
	})
}
