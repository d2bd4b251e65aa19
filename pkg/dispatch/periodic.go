package dispatch

import (
	"context"
	"time"

	"github.com/offloadlab/offload/pkg/handle"
	"github.com/offloadlab/offload/pkg/schedule"
)

// Periodic submits f on sched until ctx is done, handing each submission's
// handle (or submission error) to report. Submission failures do not stop
// the loop. Returns ctx.Err().
func Periodic(ctx context.Context, f *Function, sched schedule.Schedule, args any, report func(*handle.Handle, error), opts ...CallOption) error {
	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		h, err := f.Submit(ctx, args, opts...)
		if report != nil {
			report(h, err)
		}
	}
}
