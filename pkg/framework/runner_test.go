package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())

	errA, errB := errors.New("a"), errors.New("b")
	errs.Add(errA)
	err := errs.Aggregate()
	require.Equal(t, "a", err.Error())
	errs.Add(nil, errB)
	err = errs.Aggregate()
	require.Equal(t, "Multiple errors:\na\nb", err.Error())
	require.True(t, errors.Is(err, errB))
	require.False(t, errors.Is(err, context.Canceled))
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failure := errors.New("failure")
	runner := NewRunnerWith(ctx).Go(
		NamedRun("canceled", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error {
			cancel()
			return failure
		}),
	)
	err := runner.Wait()
	require.Equal(t, failure.Error(), err.Error())
	require.True(t, errors.Is(err, failure))
	require.Len(t, runner.Runners, 2)
}
