package syncer_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(name string, delay time.Duration, err error) syncer.Task {
	return syncer.Task{
		Name: name,
		Run: func(_ context.Context, out io.Writer) error {
			_, _ = fmt.Fprintf(out, "start %s\n", name)
			time.Sleep(delay)
			_, _ = fmt.Fprintf(out, "end %s\n", name)
			return err
		},
	}
}

func TestRunKeepsRegistrationOrder(t *testing.T) {
	tasks := []syncer.Task{
		task("gentoo", 30*time.Millisecond, nil),
		task("guru", 10*time.Millisecond, nil),
		task("foo", 0, nil),
	}
	var out strings.Builder
	require.NoError(t, syncer.Run(context.Background(), tasks, &out, 0))
	assert.Equal(t, "start gentoo\nend gentoo\nstart guru\nend guru\nstart foo\nend foo\n", out.String())
}

func TestRunCollectsErrors(t *testing.T) {
	tasks := []syncer.Task{
		task("gentoo", 0, errors.New(errors.ErrRepositoryCheck, "boom")),
		task("guru", 0, nil),
		task("foo", 0, errors.New(errors.ErrCommandFailed, "bang")),
	}
	var out strings.Builder
	err := syncer.Run(context.Background(), tasks, &out, 2)
	require.Error(t, err)

	parts := errors.Split(err)
	require.Len(t, parts, 2)
	assert.True(t, errors.IsErrorCode(parts[0], errors.ErrRepositoryCheck))
	assert.Contains(t, parts[0].Error(), "gentoo")
	assert.True(t, errors.IsErrorCode(parts[1], errors.ErrCommandFailed))
	assert.Contains(t, out.String(), "end guru", "a failure does not stop other tasks")
	assert.Contains(t, out.String(), "ERROR: foo")
}

func TestRunRespectsLimit(t *testing.T) {
	var running, peak int32
	var tasks []syncer.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, syncer.Task{
			Name: fmt.Sprint(i),
			Run: func(context.Context, io.Writer) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			},
		})
	}
	require.NoError(t, syncer.Run(context.Background(), tasks, io.Discard, 2))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
