package dispatch

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/offloadlab/offload/pkg/internal/handler"
)

// LifecycleState tracks how far a unit has gotten through initialization.
// Remote-triggering calls are rejected until the unit is Ready, which
// prevents the isolated/remote equivalents of infinite respawn loops from
// registration-time invocations.
type LifecycleState int32

const (
	// StateNew is the zero value: no unit has been constructed yet.
	StateNew LifecycleState = iota

	// StateInitializing covers the window between NewUnit and Ready, i.e.
	// while functions are still being registered.
	StateInitializing

	// StateReady permits Submit, Remote, and isolated Local calls.
	StateReady
)

func (s LifecycleState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "new"
	}
}

var nameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

const maxNameLength = 255

// Unit owns a set of wrapped functions that share a defining script and an
// Environment. It is the Go stand-in for the defining module: a unit starts
// Initializing and must reach Ready (explicitly, or by running one of its
// harnesses) before its functions may trigger subprocesses or submissions.
type Unit struct {
	name  string
	env   *Environment
	state atomic.Int32

	mu  sync.RWMutex
	fns map[string]*Function
}

// NewUnit creates a unit in the Initializing state.
func NewUnit(name string, env *Environment) *Unit {
	if err := validateName(name); err != nil {
		panic(fmt.Sprintf("offload: invalid unit name %q: %v", name, err))
	}
	if env == nil {
		env = NewEnvironment()
	}
	u := &Unit{
		name: name,
		env:  env,
		fns:  make(map[string]*Function),
	}
	u.state.Store(int32(StateInitializing))
	return u
}

// Name returns the unit name.
func (u *Unit) Name() string {
	return u.name
}

// Environment returns the unit's environment.
func (u *Unit) Environment() *Environment {
	return u.env
}

// State returns the current lifecycle state.
func (u *Unit) State() LifecycleState {
	return LifecycleState(u.state.Load())
}

// Ready marks initialization complete, permitting remote-triggering calls.
// Running a harness does this implicitly; Ready is the escape hatch for
// contexts without a natural completion signal.
func (u *Unit) Ready() {
	u.state.Store(int32(StateReady))
}

// Function wraps fn for dispatch under the given name. The function must
// have signature func([ctx context.Context][, args T]) error or
// func([ctx,] [args T]) (R, error). Invalid names or signatures panic, as
// they are registration-time programmer errors.
func (u *Unit) Function(name string, fn any, opts ...CallOption) *Function {
	if err := validateName(name); err != nil {
		panic(fmt.Sprintf("offload: invalid function name %q: %v", name, err))
	}

	h, err := handler.New(fn)
	if err != nil {
		panic(fmt.Sprintf("offload: function %q: %v", name, err))
	}

	co := gatherCallOptions(opts)
	f := &Function{
		name:     name,
		unit:     u,
		env:      u.env,
		handler:  h,
		endpoint: co.Endpoint,
		walltime: co.Walltime,
		defaults: co.Config.Clone(),
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.fns[name]; exists {
		panic(fmt.Sprintf("offload: function %q already registered on unit %q", name, u.name))
	}
	u.fns[name] = f
	return f
}

// Lookup returns the wrapped function registered under name.
func (u *Unit) Lookup(name string) (*Function, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	f, ok := u.fns[name]
	return f, ok
}

// Harness wraps fn as the unit's sanctioned orchestration entry point.
func (u *Unit) Harness(name string, fn HarnessFunc) *Harness {
	if err := validateName(name); err != nil {
		panic(fmt.Sprintf("offload: invalid harness name %q: %v", name, err))
	}
	return &Harness{name: name, unit: u, fn: fn}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name must start with a letter and contain only letters, digits, '_', '-'")
	}
	return nil
}

// callChain renders the caller's stack for module-initialization-call
// diagnostics.
func callChain(skip int) string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return "  (call stack unavailable)"
	}
	frames := runtime.CallersFrames(pc[:n])
	var lines []string
	for {
		frame, more := frames.Next()
		lines = append(lines, fmt.Sprintf("  %s:%d in %s", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}
