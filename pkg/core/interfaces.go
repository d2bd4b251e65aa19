package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Environment keys and argv markers shared across process boundaries. The
// store dir is the one sanctioned ambient value: a child isolated process
// must be able to resolve references its parent encoded.
const (
	EnvStoreDir    = "OFFLOAD_STORE_DIR"
	EnvNoSizeLimit = "OFFLOAD_NO_SIZE_LIMIT"

	// RunnerArg marks an argv vector as a runner-mode invocation of the
	// current binary: <exe> offload-exec <unit> <function> <payload-file>.
	RunnerArg = "offload-exec"
)

// MetadataReader parses embedded configuration out of script text. It
// returns a nested mapping keyed by target name (nested mappings are
// variants), or nil when the script carries no config block.
type MetadataReader interface {
	Read(script string) (map[string]any, error)
}

// SchemaLookup optionally supplies the allow-list of config keys an endpoint
// recognizes. When available, the resolved config is filtered down to these
// keys before submission.
type SchemaLookup interface {
	AllowedKeys(endpoint uuid.UUID) ([]string, bool)
}

// Submittable is the prebuilt remote-invocation template for one wrapped
// function. It is built lazily on first submission and reused.
type Submittable struct {
	Cmd          string // shell command template; payload substituted per call
	FunctionName string
	ScriptHash   string
	Walltime     time.Duration
}

// SubmitRequest is everything the submission interface needs for one task.
type SubmitRequest struct {
	Endpoint    uuid.UUID
	Config      map[string]any
	Submittable *Submittable
	Payload     string
}

// Submitter is the external submission interface. The core constructs the
// request; queueing, scheduling, and sandboxing belong to the remote service.
type Submitter interface {
	Submit(ctx context.Context, req *SubmitRequest) (RawHandle, error)
}

// ShellResult is the raw outcome of a shell unit, local or remote.
type ShellResult struct {
	Cmd      string
	Stdout   string
	Stderr   string
	ExitCode int
}

// RawHandle is the asynchronous handle returned by the submission interface.
//
// Result blocks until the task finishes or ctx is done; a ctx deadline
// surfaces as ctx.Err(). A nonzero task exit is not an error at this level:
// it comes back in the ShellResult. Cancel is best-effort; it returns false
// when the task was already running and could not be stopped.
type RawHandle interface {
	TaskID() string
	Done() bool
	Result(ctx context.Context) (*ShellResult, error)
	Cancel(ctx context.Context) (bool, error)
}

// CommandSpec describes an isolated-process invocation.
type CommandSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// ProcessRunner runs isolated subprocesses for Local calls. Injectable so
// tests can assert no process was spawned.
type ProcessRunner interface {
	Run(ctx context.Context, spec *CommandSpec) (*ShellResult, error)
}

// SubmittableBuilder turns a script and function name into a Submittable.
// The default builder renders a shell template around the runner entry
// point; remote services with their own packaging can substitute theirs.
type SubmittableBuilder interface {
	Build(scriptPath, functionName string, walltime time.Duration) (*Submittable, error)
}
