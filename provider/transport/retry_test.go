package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitErr(retryAfterSeconds float64) *Error {
	return &Error{Kind: KindRateLimit, Message: "rate limited", RetryAfter: retryAfterSeconds}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), DefaultRetryPolicy(), func(_ context.Context, _ int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableErrorsUntilSuccess(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Factor: 2}
	calls := 0
	err := Do(context.Background(), policy, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return &Error{Kind: KindServerError, Message: "boom"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Factor: 2}
	calls := 0
	err := Do(context.Background(), policy, func(_ context.Context, _ int) error {
		calls++
		return &Error{Kind: KindInvalidRequest, Message: "bad request"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Factor: 2}
	calls := 0
	err := Do(context.Background(), policy, func(_ context.Context, _ int) error {
		calls++
		return &Error{Kind: KindServerError, Message: "still failing"}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

// TestDoRethrowsWhenRetryAfterExceedsMaxDelay pins scenario 5 (retry
// budget): a RetryAfter hint longer than the policy's MaxDelay must never
// be slept through — Do must rethrow the error on the spot instead.
func TestDoRethrowsWhenRetryAfterExceedsMaxDelay(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 30 * time.Millisecond, Factor: 2}
	calls := 0
	start := time.Now()
	err := Do(context.Background(), policy, func(_ context.Context, _ int) error {
		calls++
		return rateLimitErr(300) // 300s, far beyond a 30ms MaxDelay
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "must rethrow on the first retryable attempt whose RetryAfter exceeds MaxDelay")
	assert.Less(t, elapsed, 100*time.Millisecond, "must not sleep anywhere near the RetryAfter hint")
	te, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimit, te.Kind)
}

// TestDoHonorsRetryAfterWithinMaxDelay is the mirror case: a RetryAfter
// hint within MaxDelay is honored as the sleep duration and the op retries.
func TestDoHonorsRetryAfterWithinMaxDelay(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, Factor: 2}
	calls := 0
	start := time.Now()
	err := Do(context.Background(), policy, func(_ context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return rateLimitErr(0.01) // 10ms, well within MaxDelay
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestDoReturnsContextErrorWhenCanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, Factor: 2}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, policy, func(_ context.Context, _ int) error {
		calls++
		return &Error{Kind: KindServerError, Message: "boom"}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Factor: 10}
	assert.Equal(t, time.Second, policy.Backoff(1))
	assert.Equal(t, 5*time.Second, policy.Backoff(4))
}
