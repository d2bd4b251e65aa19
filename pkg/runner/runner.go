// Package runner is the child-process entry point for isolated and remote
// execution. A binary that registers units calls Maybe first thing in main;
// when the process was spawned in runner mode, Maybe executes the requested
// function and exits instead of returning to the normal program flow.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/dispatch"
	"github.com/offloadlab/offload/pkg/payload"
)

// Maybe inspects os.Args for the runner marker. In runner mode it decodes
// the payload file, invokes the named function on the named unit, writes the
// result delimiter plus the encoded result to stdout, and exits. Otherwise
// it returns immediately.
func Maybe(units ...*dispatch.Unit) {
	if len(os.Args) < 2 || os.Args[1] != core.RunnerArg {
		return
	}
	os.Exit(run(os.Args[2:], units, os.Stdout, os.Stderr))
}

func run(args []string, units []*dispatch.Unit, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintf(stderr, "usage: <binary> %s <unit> <function> <payload-file>\n", core.RunnerArg)
		return 2
	}
	unitName, fnName, payloadPath := args[0], args[1], args[2]

	var unit *dispatch.Unit
	for _, u := range units {
		if u.Name() == unitName {
			unit = u
			break
		}
	}
	if unit == nil {
		fmt.Fprintf(stderr, "offload: unknown unit %q\n", unitName)
		return 2
	}
	fn, ok := unit.Lookup(fnName)
	if !ok {
		fmt.Fprintf(stderr, "offload: unit %q has no function %q\n", unitName, fnName)
		return 2
	}

	encoded, err := os.ReadFile(payloadPath)
	if err != nil {
		fmt.Fprintf(stderr, "offload: reading payload: %v\n", err)
		return 2
	}

	result, err := fn.InvokeEncoded(context.Background(), strings.TrimSpace(string(encoded)))
	if err != nil {
		fmt.Fprintf(stderr, "offload: %s.%s: %v\n", unitName, fnName, err)
		return 1
	}

	var opts []payload.Option
	if os.Getenv(core.EnvNoSizeLimit) != "" {
		opts = append(opts, payload.WithSizeLimit(payload.NoSizeLimit))
	}
	out, err := payload.Encode(result, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "offload: encoding result of %s.%s: %v\n", unitName, fnName, err)
		return 1
	}

	fmt.Fprintf(stdout, "\n%s\n%s\n", payload.ResultDelimiter, out)
	return 0
}
