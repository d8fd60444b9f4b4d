package syncengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SessionAPI is the identity probe at the remote boundary.
type SessionAPI interface {
	CheckSession(ctx context.Context) (Identity, error)
}

// SessionGuard establishes and monitors the authenticated identity; every other
// fetch is gated on it. On success the identity lands in two places at once:
// the guarded session state and a plain atomically-readable cell. Dependents
// firing in the same tick as the success read the cell directly instead of
// waiting for a state propagation cycle, which would otherwise skip a
// legitimate post-login fetch as "not authenticated".
type SessionGuard struct {
	api     SessionAPI
	timeout time.Duration
	nowFn   func() time.Time
	logger  OperationLogger

	// onAuthFailure fires on terminal auth failure only, never on a transient
	// timeout. Hosts hang their login redirect here.
	onAuthFailure func()

	identityRef atomic.Pointer[Identity]

	mu            sync.RWMutex
	status        SessionStatus
	identity      Identity
	lastCheckedAt time.Time
}

// NewSessionGuard wires a guard around the identity probe.
func NewSessionGuard(api SessionAPI, timeout time.Duration, now func() time.Time, logger OperationLogger, onAuthFailure func()) *SessionGuard {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	return &SessionGuard{
		api:           api,
		timeout:       timeout,
		nowFn:         now,
		logger:        logger,
		onAuthFailure: onAuthFailure,
		status:        SessionUnauthenticated,
	}
}

// Check performs the bounded identity probe and records the outcome.
func (guard *SessionGuard) Check(ctx context.Context) (Identity, error) {
	guard.mu.Lock()
	guard.status = SessionAuthenticating
	guard.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, guard.timeout)
	defer cancel()

	identity, err := guard.api.CheckSession(checkCtx)
	checkedAt := guard.nowFn()
	if err != nil {
		kind := KindOf(err)
		terminal := kind == ErrorKindUnauthorized || kind == ErrorKindClientRejected

		guard.identityRef.Store(nil)
		guard.mu.Lock()
		guard.identity = Identity{}
		guard.lastCheckedAt = checkedAt
		if terminal {
			guard.status = SessionUnauthenticated
		} else {
			guard.status = SessionExpired
		}
		guard.mu.Unlock()

		guard.logCheck(ctx, err)
		if terminal && guard.onAuthFailure != nil {
			guard.onAuthFailure()
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrSessionCheckFailed, err)
	}

	// Dual write: the reference cell first, then the guarded state. Anything
	// scheduled off the success path can read the identity immediately.
	identityCopy := identity
	guard.identityRef.Store(&identityCopy)
	guard.mu.Lock()
	guard.status = SessionAuthenticated
	guard.identity = identity
	guard.lastCheckedAt = checkedAt
	guard.mu.Unlock()

	guard.logCheck(ctx, nil)
	return identity, nil
}

// Recheck satisfies SessionRechecker for the executor's one-shot 401 path.
func (guard *SessionGuard) Recheck(ctx context.Context) error {
	_, err := guard.Check(ctx)
	return err
}

// CurrentIdentity reads the immediately-consistent identity cell.
func (guard *SessionGuard) CurrentIdentity() (Identity, bool) {
	identity := guard.identityRef.Load()
	if identity == nil {
		return Identity{}, false
	}
	return *identity, true
}

// Status returns the guard's current authentication state.
func (guard *SessionGuard) Status() SessionStatus {
	guard.mu.RLock()
	defer guard.mu.RUnlock()
	return guard.status
}

// LastCheckedAt returns when the probe last resolved.
func (guard *SessionGuard) LastCheckedAt() time.Time {
	guard.mu.RLock()
	defer guard.mu.RUnlock()
	return guard.lastCheckedAt
}

// Authenticated reports whether fetches may proceed.
func (guard *SessionGuard) Authenticated() bool {
	return guard.Status() == SessionAuthenticated
}

func (guard *SessionGuard) logCheck(ctx context.Context, err error) {
	if guard.logger == nil {
		return
	}
	status := operationStatusOK
	if err != nil {
		status = operationStatusError
	}
	guard.logger.LogOperation(ctx, OperationLog{
		Operation: "session.check",
		Status:    status,
		Error:     err,
	})
}
