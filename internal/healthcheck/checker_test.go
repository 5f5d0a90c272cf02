package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecker_Transitions(t *testing.T) {
	var redisDown atomic.Bool
	checker := NewChecker(Config{
		Probes: map[string]Probe{
			"redis": func(context.Context) error {
				if redisDown.Load() {
					return errors.New("connection refused")
				}
				return nil
			},
			"postgres": func(context.Context) error { return nil },
		},
		MaxFailures: 2,
	})
	ctx := context.Background()

	checker.CheckAll(ctx)
	require.Equal(t, Healthy, checker.OverallHealth())

	redisDown.Store(true)
	checker.CheckAll(ctx)
	require.Equal(t, Healthy, checker.OverallHealth(), "one failure is below the threshold")

	checker.CheckAll(ctx)
	require.Equal(t, Degraded, checker.OverallHealth())

	status := checker.GetAllStatus()["redis"]
	require.False(t, status.IsHealthy)
	require.Equal(t, 2, status.FailureCount)
	require.Equal(t, "connection refused", status.LastError)

	redisDown.Store(false)
	checker.CheckAll(ctx)
	require.Equal(t, Healthy, checker.OverallHealth())
	require.Empty(t, checker.GetAllStatus()["redis"].LastError)
}

func TestChecker_CriticalDependency(t *testing.T) {
	checker := NewChecker(Config{
		Probes: map[string]Probe{
			"postgres": func(context.Context) error { return errors.New("down") },
		},
		Critical:    []string{"postgres"},
		MaxFailures: 1,
	})

	checker.CheckAll(context.Background())
	require.Equal(t, Unhealthy, checker.OverallHealth())
}

func TestChecker_NoProbes(t *testing.T) {
	checker := NewChecker(Config{})
	checker.CheckAll(context.Background())
	require.Equal(t, Healthy, checker.OverallHealth())
	require.Empty(t, checker.GetAllStatus())
}

func TestChecker_StartStop(t *testing.T) {
	var calls atomic.Int32
	checker := NewChecker(Config{
		Probes: map[string]Probe{
			"redis": func(context.Context) error {
				calls.Add(1)
				return nil
			},
		},
	})

	checker.Start()
	checker.Start()
	checker.Stop()
	checker.Stop()

	require.GreaterOrEqual(t, calls.Load(), int32(1))
}
