package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const (
	operationNameValue     = "bookings.fetch"
	caseValidationConflict = "validation conflict"
	caseClientRejected     = "client rejected"
)

// stubRechecker satisfies SessionRechecker with a programmable outcome.
type stubRechecker struct {
	mu         sync.Mutex
	calls      int
	recheckErr error
}

func (rechecker *stubRechecker) Recheck(ctx context.Context) error {
	rechecker.mu.Lock()
	defer rechecker.mu.Unlock()
	rechecker.calls++
	return rechecker.recheckErr
}

func (rechecker *stubRechecker) count() int {
	rechecker.mu.Lock()
	defer rechecker.mu.Unlock()
	return rechecker.calls
}

func mustPolicy(test *testing.T, maxRetries int) RetryPolicy {
	test.Helper()
	return RetryPolicy{
		MaxRetries:     maxRetries,
		AttemptTimeout: time.Second,
		BackoffBase:    time.Millisecond,
	}
}

func TestDoRetriesTransientFailuresThenSucceeds(test *testing.T) {
	test.Parallel()
	executor := mustExecutorWithoutBackoff(test, nil)

	attempts := 0
	err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 3), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewCallError(operationNameValue, ErrorKindServerError, 503, "", nil)
		}
		return nil
	})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		test.Fatalf(errorMismatchMessage, 3, attempts)
	}
}

func TestDoExhaustsRetryBudget(test *testing.T) {
	test.Parallel()
	executor := mustExecutorWithoutBackoff(test, nil)

	attempts := 0
	err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 2), func(ctx context.Context) error {
		attempts++
		return NewCallError(operationNameValue, ErrorKindServerError, 500, "", nil)
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		test.Fatalf(errorMismatchMessage, ErrRetriesExhausted, err)
	}
	if attempts != 3 {
		test.Fatalf(errorMismatchMessage, 3, attempts)
	}
}

func TestDoDoesNotRetryNonRetryableKinds(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		kind ErrorKind
		code int
	}{
		{name: caseValidationConflict, kind: ErrorKindValidationConflict, code: 409},
		{name: caseClientRejected, kind: ErrorKindClientRejected, code: 404},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			executor := mustExecutorWithoutBackoff(test, nil)
			attempts := 0
			err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 3), func(ctx context.Context) error {
				attempts++
				return NewCallError(operationNameValue, testCase.kind, testCase.code, "rejected", nil)
			})
			if KindOf(err) != testCase.kind {
				test.Fatalf(errorMismatchMessage, testCase.kind, KindOf(err))
			}
			if attempts != 1 {
				test.Fatalf(errorMismatchMessage, 1, attempts)
			}
		})
	}
}

func TestDoReauthenticatesOnceOnUnauthorized(test *testing.T) {
	test.Parallel()
	rechecker := &stubRechecker{}
	executor := mustExecutorWithoutBackoff(test, rechecker)

	attempts := 0
	err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 0), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return NewCallError(operationNameValue, ErrorKindUnauthorized, 401, "", nil)
		}
		return nil
	})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if rechecker.count() != 1 {
		test.Fatalf(errorMismatchMessage, 1, rechecker.count())
	}
	// One original attempt plus exactly one post-recheck attempt.
	if attempts != 2 {
		test.Fatalf(errorMismatchMessage, 2, attempts)
	}
}

func TestDoTreatsSecondUnauthorizedAsTerminal(test *testing.T) {
	test.Parallel()
	rechecker := &stubRechecker{}
	executor := mustExecutorWithoutBackoff(test, rechecker)

	attempts := 0
	err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 3), func(ctx context.Context) error {
		attempts++
		return NewCallError(operationNameValue, ErrorKindUnauthorized, 401, "", nil)
	})
	if KindOf(err) != ErrorKindUnauthorized {
		test.Fatalf(errorMismatchMessage, ErrorKindUnauthorized, KindOf(err))
	}
	if rechecker.count() != 1 {
		test.Fatalf(errorMismatchMessage, 1, rechecker.count())
	}
	if attempts != 2 {
		test.Fatalf(errorMismatchMessage, 2, attempts)
	}
}

func TestDoReturnsOriginalErrorWhenRecheckFails(test *testing.T) {
	test.Parallel()
	rechecker := &stubRechecker{recheckErr: errors.New("recheck failed")}
	executor := mustExecutorWithoutBackoff(test, rechecker)

	attempts := 0
	err := executor.Do(context.Background(), operationNameValue, mustPolicy(test, 3), func(ctx context.Context) error {
		attempts++
		return NewCallError(operationNameValue, ErrorKindUnauthorized, 401, "", nil)
	})
	if KindOf(err) != ErrorKindUnauthorized {
		test.Fatalf(errorMismatchMessage, ErrorKindUnauthorized, KindOf(err))
	}
	if attempts != 1 {
		test.Fatalf(errorMismatchMessage, 1, attempts)
	}
}

func TestDoClassifiesAttemptTimeout(test *testing.T) {
	test.Parallel()
	executor := NewExecutor(nil, nil)
	executor.sleepFn = noSleep

	policy := RetryPolicy{MaxRetries: 1, AttemptTimeout: 10 * time.Millisecond, BackoffBase: time.Millisecond}
	err := executor.Do(context.Background(), operationNameValue, policy, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		test.Fatalf(errorMismatchMessage, ErrRetriesExhausted, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		test.Fatalf(errorMismatchMessage, context.DeadlineExceeded, err)
	}
}

func TestDoStopsWhenCallerContextEnds(test *testing.T) {
	test.Parallel()
	executor := NewExecutor(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := executor.Do(ctx, operationNameValue, RetryPolicy{MaxRetries: 5, AttemptTimeout: time.Second, BackoffBase: time.Minute}, func(ctx context.Context) error {
		attempts++
		cancel()
		return NewCallError(operationNameValue, ErrorKindServerError, 500, "", nil)
	})
	if !errors.Is(err, context.Canceled) {
		test.Fatalf(errorMismatchMessage, context.Canceled, err)
	}
	if attempts != 1 {
		test.Fatalf(errorMismatchMessage, 1, attempts)
	}
}

func TestDoRecordsAttemptNumbers(test *testing.T) {
	test.Parallel()
	logger := &recordingLogger{}
	executor := NewExecutor(nil, logger)
	executor.sleepFn = noSleep

	attempts := 0
	_ = executor.Do(context.Background(), operationNameValue, mustPolicy(test, 1), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return NewCallError(operationNameValue, ErrorKindTransient, 0, "", nil)
		}
		return nil
	})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.logs) != 2 {
		test.Fatalf(errorMismatchMessage, 2, len(logger.logs))
	}
	if logger.logs[0].Attempt != 1 || logger.logs[1].Attempt != 2 {
		test.Fatalf("unexpected attempt numbering: %+v", logger.logs)
	}
}
