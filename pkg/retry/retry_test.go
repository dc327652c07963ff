package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

// fastPolicy keeps test delays negligible
func fastPolicy(attempts int) *Policy {
	return &Policy{
		MaxAttempts:     attempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RandomizeFactor: 0,
	}
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return syncerrors.New(syncerrors.ErrorTypeThrottling, "slow down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	permanent := syncerrors.New(syncerrors.ErrorTypeNotFound, "gone")
	err := fastPolicy(3).Execute(context.Background(), "op", func() error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeNotFound))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), "op", func() error {
		calls++
		return syncerrors.New(syncerrors.ErrorTypeConnection, "refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts")
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeConnection))
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: time.Hour, // would hang without cancellation
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, "op", func() error {
		calls++
		return syncerrors.New(syncerrors.ErrorTypeTimeout, "timed out")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestExecuteWithCondition(t *testing.T) {
	calls := 0
	sentinel := errors.New("special")

	err := fastPolicy(3).ExecuteWithCondition(context.Background(), "op", func() error {
		calls++
		return sentinel
	}, func(err error) bool {
		return errors.Is(err, sentinel)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestCalculateDelayGrowthAndCap(t *testing.T) {
	policy := &Policy{
		MaxAttempts:     5,
		InitialDelay:    time.Second,
		MaxDelay:        4 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0,
	}

	assert.Equal(t, time.Second, policy.GetDelay(0))
	assert.Equal(t, 2*time.Second, policy.GetDelay(1))
	assert.Equal(t, 4*time.Second, policy.GetDelay(2))
	// Capped from here on
	assert.Equal(t, 4*time.Second, policy.GetDelay(3))
	assert.Equal(t, 4*time.Second, policy.GetDelay(10))
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	policy := &Policy{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}

	for i := 0; i < 100; i++ {
		d := policy.GetDelay(0)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestCloneAndModifiers(t *testing.T) {
	base := DefaultPolicy()
	modified := base.WithMaxAttempts(7).WithDelay(2*time.Second, time.Minute)

	assert.Equal(t, 3, base.MaxAttempts)
	assert.Equal(t, time.Second, base.InitialDelay)

	assert.Equal(t, 7, modified.MaxAttempts)
	assert.Equal(t, 2*time.Second, modified.InitialDelay)
	assert.Equal(t, time.Minute, modified.MaxDelay)
}

func TestPolicyTiers(t *testing.T) {
	standard := DefaultPolicy()
	assert.Equal(t, 3, standard.MaxAttempts)
	assert.Equal(t, time.Second, standard.InitialDelay)
	assert.Equal(t, 30*time.Second, standard.MaxDelay)

	throttled := ThrottledPolicy()
	assert.Equal(t, 5, throttled.MaxAttempts)
	assert.Equal(t, 2*time.Second, throttled.InitialDelay)
	assert.Equal(t, 60*time.Second, throttled.MaxDelay)

	none := NoRetryPolicy()
	assert.Equal(t, 1, none.MaxAttempts)
}
