package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := New(Config{MaxFailures: 2, Timeout: time.Minute})
	ctx := context.Background()

	require.ErrorIs(t, cb.Call(ctx, failing), errBoom)
	require.Equal(t, StateClosed, cb.State())
	require.ErrorIs(t, cb.Call(ctx, failing), errBoom)
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	var transitions []string
	cb := New(Config{
		Name:        "counter-store",
		MaxFailures: 1,
		Timeout:     time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Call(ctx, failing))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Call(ctx, passing))
	require.Equal(t, StateClosed, cb.State())
	require.Equal(t, []string{
		"counter-store:closed->open",
		"counter-store:open->half-open",
		"counter-store:half-open->closed",
	}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := New(Config{MaxFailures: 1, Timeout: time.Second})
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Call(ctx, failing))
	now = now.Add(2 * time.Second)
	require.ErrorIs(t, cb.Call(ctx, failing), errBoom)
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	t.Parallel()

	cb := New(Config{MaxFailures: 1})
	err := cb.Call(context.Background(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := New(Config{MaxFailures: 1, Timeout: time.Hour})
	require.Error(t, cb.Call(context.Background(), failing))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	m := cb.Metrics()
	require.Equal(t, StateClosed, m.State)
	require.Zero(t, m.FailureCount)
}
