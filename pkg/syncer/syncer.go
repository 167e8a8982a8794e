// Package syncer runs repository and overlay syncs concurrently while
// keeping their output readable: every task writes into its own buffer and
// the buffers reach the shared writer in registration order.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/sourcegraph/conc/stream"
)

// Task is one unit of sync work
type Task struct {
	Name string
	Run  func(ctx context.Context, out io.Writer) error
}

// Run executes tasks with at most limit running at once (limit <= 0 means
// unbounded). Each task's output is written to out as a whole, in the
// order tasks were given, once every earlier task has been written. Every
// task runs even when another failed; failures are returned joined.
func Run(ctx context.Context, tasks []Task, out io.Writer, limit int) error {
	logger := logging.GetLogger("syncer")
	defer logging.LogOperationStart(logger, "sync")()

	s := stream.New()
	if limit > 0 {
		s = s.WithMaxGoroutines(limit)
	}

	var errs []error
	for _, task := range tasks {
		task := task
		s.Go(func() stream.Callback {
			var buf bytes.Buffer
			err := task.Run(ctx, &buf)
			return func() {
				// callbacks run sequentially, so out and errs need no lock
				_, _ = out.Write(buf.Bytes())
				if err != nil {
					logger.Error().Err(err).Str("task", task.Name).Msg("sync failed")
					_, _ = fmt.Fprintf(out, "ERROR: %s: %v\n", task.Name, err)
					errs = append(errs, errors.Wrapf(err, errors.GetErrorCode(err), "%s", task.Name))
				}
			}
		})
	}
	s.Wait()
	return errors.Join(errs...)
}
