// Package offload wraps plain Go functions for uniform in-process, isolated
// subprocess, and remote execution.
//
// This is the main package users should import. It re-exports all public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	env := offload.NewEnvironment(
//	    offload.WithScriptPath("analysis.go"),
//	    offload.WithSubmitter(submitter),
//	)
//	unit := offload.NewUnit("analysis", env)
//
//	simulate := unit.Function("simulate", func(ctx context.Context, n int) (float64, error) {
//	    return runSimulation(n)
//	}, offload.OnEndpoint("anvil.gpu"))
//
//	main := unit.Harness("main", func(ctx context.Context) error {
//	    res, err := simulate.Remote(ctx, 1000)
//	    ...
//	})
//
//	func main() {
//	    offload.MaybeExec(unit)
//	    main.Run(context.Background())
//	}
package offload

import (
	"context"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/offloadlab/offload/pkg/config"
	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/dispatch"
	"github.com/offloadlab/offload/pkg/handle"
	"github.com/offloadlab/offload/pkg/history"
	"github.com/offloadlab/offload/pkg/payload"
	"github.com/offloadlab/offload/pkg/runner"
	"github.com/offloadlab/offload/pkg/schedule"
)

// Type aliases re-exporting the pkg/ surface
type (
	// EndpointConfig is the typed endpoint configuration with its Extra
	// side-map for unrecognized keys.
	EndpointConfig = core.EndpointConfig

	// Environment carries the collaborators wrapped functions share.
	Environment = dispatch.Environment

	// EnvOption configures an Environment.
	EnvOption = dispatch.EnvOption

	// Unit owns a set of wrapped functions sharing a defining script.
	Unit = dispatch.Unit

	// Function is a wrapped callable with Call/Local/Submit/Remote.
	Function = dispatch.Function

	// CallOption adjusts one call or a function's registered defaults.
	CallOption = dispatch.CallOption

	// Harness is the sanctioned orchestration entry point.
	Harness = dispatch.Harness

	// HarnessFunc is the signature of a harness body.
	HarnessFunc = dispatch.HarnessFunc

	// LifecycleState tracks unit initialization progress.
	LifecycleState = dispatch.LifecycleState

	// Handle is a decoded-result view over an asynchronous task.
	Handle = handle.Handle

	// Resolver performs layered endpoint-config resolution.
	Resolver = config.Resolver

	// History is the optional gorm-backed task ledger.
	History = history.Store

	// TaskRecord is one history ledger row.
	TaskRecord = history.TaskRecord

	// Schedule computes periodic submission times.
	Schedule = schedule.Schedule

	// Submitter is the external submission interface.
	Submitter = core.Submitter

	// SubmitRequest is everything a Submitter needs for one task.
	SubmitRequest = core.SubmitRequest

	// RawHandle is the raw asynchronous handle a Submitter returns.
	RawHandle = core.RawHandle

	// ShellResult is the raw outcome of a shell unit.
	ShellResult = core.ShellResult

	// MetadataReader parses embedded config out of script text.
	MetadataReader = core.MetadataReader

	// SchemaLookup supplies per-endpoint config key allow-lists.
	SchemaLookup = core.SchemaLookup

	// ProcessRunner spawns isolated subprocesses for Local calls.
	ProcessRunner = core.ProcessRunner

	// SubmittableBuilder renders remote-invocation templates.
	SubmittableBuilder = core.SubmittableBuilder

	// RemoteExecutionError reports a nonzero remote exit.
	RemoteExecutionError = core.RemoteExecutionError

	// LocalExecutionError reports an isolated subprocess failure.
	LocalExecutionError = core.LocalExecutionError

	// ModuleInitError reports a remote-triggering call before the owning
	// unit finished initializing.
	ModuleInitError = core.ModuleInitError

	// PayloadTooLargeError reports an inline payload over the size limit.
	PayloadTooLargeError = core.PayloadTooLargeError

	// VariantNotFoundError reports an unknown config target segment.
	VariantNotFoundError = core.VariantNotFoundError

	// InvalidVariantError reports a variant path through a non-mapping.
	InvalidVariantError = core.InvalidVariantError

	// ConfigValueError reports a malformed embedded config value.
	ConfigValueError = core.ConfigValueError
)

// Lifecycle states
const (
	StateNew          = dispatch.StateNew
	StateInitializing = dispatch.StateInitializing
	StateReady        = dispatch.StateReady
)

// Payload and config defaults
const (
	DefaultSizeLimit   = payload.DefaultSizeLimit
	NoSizeLimit        = payload.NoSizeLimit
	ResultDelimiter    = payload.ResultDelimiter
	DefaultWalltime    = config.DefaultWalltime
	PayloadPlaceholder = dispatch.PayloadPlaceholder
)

// Error variables
var (
	ErrNotInHarness       = core.ErrNotInHarness
	ErrNoEndpoint         = core.ErrNoEndpoint
	ErrTaskCanceled       = core.ErrTaskCanceled
	ErrPayloadUnavailable = core.ErrPayloadUnavailable
)

// NewEnvironment builds an Environment with working defaults for everything
// but the Submitter.
func NewEnvironment(opts ...EnvOption) *Environment {
	return dispatch.NewEnvironment(opts...)
}

// NewUnit creates a unit in the Initializing state. A nil env gets defaults.
func NewUnit(name string, env *Environment) *Unit {
	return dispatch.NewUnit(name, env)
}

// NewHistory creates a gorm-backed task ledger.
func NewHistory(db *gorm.DB) *History {
	return history.NewStore(db)
}

// MaybeExec checks whether this process was spawned in runner mode and, if
// so, executes the requested function and exits. Call it first thing in main
// after all units are registered.
func MaybeExec(units ...*Unit) {
	runner.Maybe(units...)
}

// Await waits on h and returns its decoded result as T.
func Await[T any](ctx context.Context, h *Handle) (T, error) {
	return handle.Await[T](ctx, h)
}

// Periodic submits f on sched until ctx is done, handing each submission's
// handle or error to report.
func Periodic(ctx context.Context, f *Function, sched Schedule, args any, report func(*Handle, error), opts ...CallOption) error {
	return dispatch.Periodic(ctx, f, sched, args, report, opts...)
}

// Environment options

// WithScriptPath sets the script whose embedded config block is consulted.
func WithScriptPath(path string) EnvOption { return dispatch.WithScriptPath(path) }

// WithSubmitter sets the external submission interface.
func WithSubmitter(s Submitter) EnvOption { return dispatch.WithSubmitter(s) }

// WithMetadataReader replaces the embedded config reader.
func WithMetadataReader(r MetadataReader) EnvOption { return dispatch.WithMetadataReader(r) }

// WithSchemaLookup enables schema filtering of resolved configs.
func WithSchemaLookup(s SchemaLookup) EnvOption { return dispatch.WithSchemaLookup(s) }

// WithProcessRunner replaces the isolated-subprocess runner.
func WithProcessRunner(r ProcessRunner) EnvOption { return dispatch.WithProcessRunner(r) }

// WithBuilder replaces the submittable builder.
func WithBuilder(b SubmittableBuilder) EnvOption { return dispatch.WithBuilder(b) }

// WithHistory records every submission in the given ledger.
func WithHistory(h *History) EnvOption { return dispatch.WithHistory(h) }

// WithStatusWriter enables the live status line on the given writer.
func WithStatusWriter(w io.Writer) EnvOption { return dispatch.WithStatusWriter(w) }

// WithPollInterval sets the blocking-wait polling cadence.
func WithPollInterval(d time.Duration) EnvOption { return dispatch.WithPollInterval(d) }

// WithConfigDefaults replaces the built-in defaults configuration layer.
func WithConfigDefaults(cfg *EndpointConfig) EnvOption { return dispatch.WithConfigDefaults(cfg) }

// Call options

// OnEndpoint selects the target the work should run on: a UUID, a base name
// from the embedded config, or a dotted variant path like "anvil.gpu".
func OnEndpoint(target string) CallOption { return dispatch.OnEndpoint(target) }

// WithWalltime bounds execution time.
func WithWalltime(d time.Duration) CallOption { return dispatch.WithWalltime(d) }

// WithConfig supplies endpoint configuration for the corresponding
// precedence layer.
func WithConfig(cfg *EndpointConfig) CallOption { return dispatch.WithConfig(cfg) }

// Schedules

// Every creates a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule { return schedule.Every(d) }

// Daily creates a schedule that fires at a specific UTC time each day.
func Daily(hour, minute int) Schedule { return schedule.Daily(hour, minute) }

// Cron creates a schedule from a standard five-field cron expression.
func Cron(expr string) (Schedule, error) { return schedule.Cron(expr) }
