// Package dispatch wraps functions for uniform in-process, isolated-process,
// and remote-submitted execution.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/offloadlab/offload/pkg/config"
	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/history"
)

// DefaultPollInterval is how often a blocking Remote call polls its handle.
const DefaultPollInterval = 300 * time.Millisecond

// Environment carries the collaborators and settings one script's worth of
// wrapped functions share: the script location, the submission interface,
// and the knobs that were ambient process state in earlier designs.
type Environment struct {
	// ScriptPath locates the script whose embedded config block configures
	// targets, and whose contents seed the submittable template.
	ScriptPath string

	// Submitter is the external submission interface. Required for Submit
	// and Remote.
	Submitter core.Submitter

	// Metadata parses embedded config out of script text. Defaults to the
	// standard comment-block reader.
	Metadata core.MetadataReader

	// Schemas optionally supplies per-endpoint allow-lists used to filter
	// the resolved config before submission.
	Schemas core.SchemaLookup

	// Runner spawns isolated subprocesses for Local calls.
	Runner core.ProcessRunner

	// Builder renders submittables. Defaults to the shell template builder.
	Builder core.SubmittableBuilder

	// History, when set, receives a ledger row per submission.
	History *history.Store

	// Output receives user output captured from isolated and remote
	// executions. Defaults to os.Stdout.
	Output io.Writer

	// ErrOutput receives captured subprocess stderr. Defaults to os.Stderr.
	ErrOutput io.Writer

	// StatusWriter receives the live status line while Remote blocks.
	// Defaults to io.Discard.
	StatusWriter io.Writer

	// PollInterval is the handle polling cadence for blocking waits.
	PollInterval time.Duration

	// Interrupts overrides the interrupt source for blocking waits. Tests
	// inject a channel here; nil means watch os.Interrupt.
	Interrupts chan os.Signal

	// Exit is called to force-quit on a second interrupt. Defaults to
	// os.Exit.
	Exit func(code int)

	// ConfigDefaults overrides the built-in defaults layer of the resolver.
	ConfigDefaults *core.EndpointConfig

	resolverOnce sync.Once
	resolver     *config.Resolver
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithScriptPath sets the script whose embedded config block is consulted.
func WithScriptPath(path string) EnvOption {
	return func(e *Environment) { e.ScriptPath = path }
}

// WithSubmitter sets the external submission interface.
func WithSubmitter(s core.Submitter) EnvOption {
	return func(e *Environment) { e.Submitter = s }
}

// WithMetadataReader replaces the embedded config reader.
func WithMetadataReader(r core.MetadataReader) EnvOption {
	return func(e *Environment) { e.Metadata = r }
}

// WithSchemaLookup enables schema filtering of resolved configs.
func WithSchemaLookup(s core.SchemaLookup) EnvOption {
	return func(e *Environment) { e.Schemas = s }
}

// WithProcessRunner replaces the isolated-subprocess runner.
func WithProcessRunner(r core.ProcessRunner) EnvOption {
	return func(e *Environment) { e.Runner = r }
}

// WithBuilder replaces the submittable builder.
func WithBuilder(b core.SubmittableBuilder) EnvOption {
	return func(e *Environment) { e.Builder = b }
}

// WithHistory records every submission in the given ledger.
func WithHistory(h *history.Store) EnvOption {
	return func(e *Environment) { e.History = h }
}

// WithStatusWriter enables the live status line on the given writer.
func WithStatusWriter(w io.Writer) EnvOption {
	return func(e *Environment) { e.StatusWriter = w }
}

// WithPollInterval sets the blocking-wait polling cadence.
func WithPollInterval(d time.Duration) EnvOption {
	return func(e *Environment) { e.PollInterval = d }
}

// WithConfigDefaults replaces the built-in defaults configuration layer.
func WithConfigDefaults(cfg *core.EndpointConfig) EnvOption {
	return func(e *Environment) { e.ConfigDefaults = cfg }
}

// NewEnvironment builds an Environment with working defaults for everything
// but the Submitter.
func NewEnvironment(opts ...EnvOption) *Environment {
	env := &Environment{
		Runner:       execRunner{},
		Builder:      ShellBuilder{},
		Output:       os.Stdout,
		ErrOutput:    os.Stderr,
		StatusWriter: io.Discard,
		PollInterval: DefaultPollInterval,
		Exit:         os.Exit,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// Resolver returns the environment's config resolver, created lazily so the
// script's metadata is parsed at most once.
func (e *Environment) Resolver() *config.Resolver {
	e.resolverOnce.Do(func() {
		var opts []config.Option
		if e.ConfigDefaults != nil {
			opts = append(opts, config.WithDefaults(e.ConfigDefaults))
		}
		e.resolver = config.NewResolver(e.ScriptPath, e.Metadata, opts...)
	})
	return e.resolver
}

// execRunner runs isolated subprocesses with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, spec *core.CommandSpec) (*core.ShellResult, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &core.ShellResult{
		Cmd:    spec.Path + " " + strings.Join(spec.Args, " "),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, err
	}
	return result, nil
}
