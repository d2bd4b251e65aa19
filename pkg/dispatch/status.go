package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/offloadlab/offload/pkg/core"
	"github.com/offloadlab/offload/pkg/handle"
)

// waitForResult blocks until h settles, ctx is done, or the user interrupts.
// It polls the handle at the environment's interval, rendering an elapsed-time
// status line between polls. A settled task error is left for the caller to
// read from the handle; waitForResult itself returns nil for it.
//
// Interrupts are two-stage: the first asks the submission interface to cancel
// and keeps waiting (a task already running cannot be stopped), the second
// force-quits through env.Exit with code 130.
func waitForResult(ctx context.Context, env *Environment, h *handle.Handle) error {
	interval := env.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	interrupts := env.Interrupts
	if interrupts == nil {
		interrupts = make(chan os.Signal, 2)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)
	}

	start := time.Now()
	canceling := false
	var cancelDone chan bool

	for {
		pollCtx, cancel := context.WithTimeout(ctx, interval)
		_, err := h.Result(pollCtx)
		cancel()

		switch {
		case err == nil:
			endStatus(env)
			return nil
		case ctx.Err() != nil:
			endStatus(env)
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			// poll timeout, task still running
		default:
			// task settled with an error; the caller reads it from the handle
			endStatus(env)
			return nil
		}

		status := "running"
		if canceling {
			status = "canceling"
		}
		fmt.Fprintf(env.StatusWriter, "\rtask %s %s (%s elapsed)",
			shortTaskID(h.TaskID()), status, formatElapsed(time.Since(start)))

		select {
		case <-interrupts:
			if canceling {
				fmt.Fprintln(env.ErrOutput, "\nForce quitting...")
				env.Exit(130)
				endStatus(env)
				return core.ErrTaskCanceled
			}
			canceling = true
			fmt.Fprintln(env.ErrOutput, "\nCanceling task... press Ctrl-C again to force quit")
			cancelDone = make(chan bool, 1)
			go func() {
				ok, err := h.Cancel(context.WithoutCancel(ctx))
				cancelDone <- ok && err == nil
			}()
		case ok := <-cancelDone:
			if ok {
				fmt.Fprintln(env.ErrOutput, "Task canceled")
				endStatus(env)
				return core.ErrTaskCanceled
			}
			fmt.Fprintln(env.ErrOutput, "Task is already running and could not be stopped; waiting")
			cancelDone = nil
		default:
		}
	}
}

func endStatus(env *Environment) {
	fmt.Fprint(env.StatusWriter, "\n")
}

func shortTaskID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
