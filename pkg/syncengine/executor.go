package syncengine

import (
	"context"
	"fmt"
	"time"
)

// SessionRechecker re-establishes identity after an unauthorized failure.
// Implemented by the session guard.
type SessionRechecker interface {
	Recheck(ctx context.Context) error
}

// RetryPolicy bounds one executed call.
type RetryPolicy struct {
	// MaxRetries caps automatic retries after the first attempt.
	MaxRetries int
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
	// BackoffBase scales the delay before retry n to n*base.
	BackoffBase time.Duration
}

// Executor wraps a single remote call with per-attempt timeout, bounded
// retries, and linear backoff. The attempt counter is explicit data — never a
// recursive closure — which is what keeps the retry cap honest across the
// one-shot re-authentication path.
type Executor struct {
	session SessionRechecker
	logger  OperationLogger
	sleepFn func(ctx context.Context, delay time.Duration) error
}

// NewExecutor wires an executor. The session rechecker may be nil, in which
// case unauthorized failures are terminal.
func NewExecutor(session SessionRechecker, logger OperationLogger) *Executor {
	return &Executor{
		session: session,
		logger:  logger,
		sleepFn: sleepContext,
	}
}

// Do runs the call under the policy and resolves to a tagged error; it never
// panics past this boundary. Transient, timeout, and 5xx failures retry with
// backoff. A 401 re-runs the session guard once and then retries the original
// call exactly once more with the fresh identity — not an unbounded loop.
func (executor *Executor) Do(ctx context.Context, operation string, policy RetryPolicy, call func(ctx context.Context) error) error {
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = defaultRequestTimeout
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = defaultBackoffBase
	}

	var lastErr error
	reauthUsed := false
	maxAttempts := policy.MaxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * policy.BackoffBase
			if err := executor.sleepFn(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = executor.attempt(ctx, policy.AttemptTimeout, call)
		if lastErr == nil {
			executor.logAttempt(ctx, operation, attempt, nil)
			return nil
		}
		kind := KindOf(lastErr)
		executor.logAttempt(ctx, operation, attempt, lastErr)

		if kind == ErrorKindUnauthorized && !reauthUsed && executor.session != nil {
			reauthUsed = true
			if recheckErr := executor.session.Recheck(ctx); recheckErr != nil {
				return lastErr
			}
			lastErr = executor.attempt(ctx, policy.AttemptTimeout, call)
			executor.logAttempt(ctx, operation, attempt+1, lastErr)
			if lastErr == nil {
				return nil
			}
			if KindOf(lastErr) == ErrorKindUnauthorized {
				return lastErr
			}
			kind = KindOf(lastErr)
		}

		if !retryableKind(kind) {
			return lastErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, operation, lastErr)
}

func (executor *Executor) attempt(ctx context.Context, timeout time.Duration, call func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(attemptCtx)
}

func (executor *Executor) logAttempt(ctx context.Context, operation string, attempt int, err error) {
	if executor.logger == nil {
		return
	}
	status := operationStatusOK
	if err != nil {
		status = operationStatusError
	}
	executor.logger.LogOperation(ctx, OperationLog{
		Operation: operation,
		Attempt:   attempt + 1,
		Status:    status,
		Error:     err,
	})
}

// sleepContext waits for the delay or the context, whichever ends first. Using
// a stoppable timer keeps teardown from leaving a pending retry tick behind.
func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
