package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MutationAPI is the state-changing half of the remote boundary. Every call
// carries a client-generated idempotency key so the single allowed retry can
// never double a side effect on a well-behaved server.
type MutationAPI interface {
	AcceptBooking(ctx context.Context, bookingID string, idempotencyKey string) (BookingRecord, error)
	StartBooking(ctx context.Context, bookingID string, idempotencyKey string) (BookingRecord, error)
	CompleteBooking(ctx context.Context, bookingID string, idempotencyKey string, report CompletionReport) (BookingRecord, error)
	ConfirmCashPayment(ctx context.Context, bookingID string, idempotencyKey string, amountCents int64) (BookingRecord, error)
}

// MutationResult is surfaced to the consumer when a mutation resolves either way.
type MutationResult struct {
	BookingID string
	Action    BookingAction
	Record    BookingRecord
	Err       error
}

// Coordinator executes user-triggered actions as optimistic-then-reconciled
// operations against the store. At most one mutation is in flight per booking;
// a second trigger is rejected before any network call. Every optimistic patch
// resolves within the mutation's own timeout plus its single retry — no code
// path leaves a record permanently unreconciled.
type Coordinator struct {
	store      *Store
	api        MutationAPI
	executor   *Executor
	policy     RetryPolicy
	successTTL time.Duration
	nowFn      func() time.Time
	logger     OperationLogger
	onResult   func(MutationResult)

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu            sync.Mutex
	pending       map[string]PendingMutation
	successTimers map[string]*time.Timer
	closed        bool
}

// NewCoordinator wires a coordinator. onResult may be nil.
func NewCoordinator(store *Store, api MutationAPI, executor *Executor, policy RetryPolicy, successTTL time.Duration, now func() time.Time, logger OperationLogger, onResult func(MutationResult)) *Coordinator {
	if now == nil {
		now = time.Now
	}
	if successTTL <= 0 {
		successTTL = defaultSuccessIndicatorTTL
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Coordinator{
		store:         store,
		api:           api,
		executor:      executor,
		policy:        policy,
		successTTL:    successTTL,
		nowFn:         now,
		logger:        logger,
		onResult:      onResult,
		runCtx:        runCtx,
		cancelRun:     cancelRun,
		pending:       make(map[string]PendingMutation),
		successTimers: make(map[string]*time.Timer),
	}
}

// Accept moves a pending booking to confirmed.
func (coordinator *Coordinator) Accept(ctx context.Context, bookingID string) error {
	return coordinator.run(ctx, bookingID, ActionAccept, func(ctx context.Context, key string) (BookingRecord, error) {
		return coordinator.api.AcceptBooking(ctx, bookingID, key)
	})
}

// Start moves a confirmed or ready booking to in-progress.
func (coordinator *Coordinator) Start(ctx context.Context, bookingID string) error {
	return coordinator.run(ctx, bookingID, ActionStart, func(ctx context.Context, key string) (BookingRecord, error) {
		return coordinator.api.StartBooking(ctx, bookingID, key)
	})
}

// Complete moves an in-progress booking to awaiting-confirmation.
func (coordinator *Coordinator) Complete(ctx context.Context, bookingID string, report CompletionReport) error {
	return coordinator.run(ctx, bookingID, ActionComplete, func(ctx context.Context, key string) (BookingRecord, error) {
		return coordinator.api.CompleteBooking(ctx, bookingID, key, report)
	})
}

// ConfirmCashPayment settles a cash booking the client has claimed to have paid.
// The two-step confirmation prompt happens upstream; by the time this runs the
// user has already confirmed amount and counterparty.
func (coordinator *Coordinator) ConfirmCashPayment(ctx context.Context, bookingID string, amountCents int64) error {
	return coordinator.run(ctx, bookingID, ActionConfirmCashPayment, func(ctx context.Context, key string) (BookingRecord, error) {
		return coordinator.api.ConfirmCashPayment(ctx, bookingID, key, amountCents)
	})
}

func (coordinator *Coordinator) run(ctx context.Context, bookingID string, action BookingAction, call func(ctx context.Context, idempotencyKey string) (BookingRecord, error)) error {
	coordinator.mu.Lock()
	if coordinator.closed {
		coordinator.mu.Unlock()
		return ErrEngineDisposed
	}
	if _, exists := coordinator.pending[bookingID]; exists {
		coordinator.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMutationPending, bookingID)
	}
	idempotencyKey := uuid.NewString()
	coordinator.pending[bookingID] = PendingMutation{
		BookingID:      bookingID,
		Action:         action,
		IdempotencyKey: idempotencyKey,
		SubmittedAt:    coordinator.nowFn(),
	}
	coordinator.mu.Unlock()

	preImage, err := coordinator.store.ApplyOptimistic(bookingID, action)
	if err != nil {
		coordinator.clearPending(bookingID)
		return err
	}

	// The call runs under both the caller's context and the coordinator's
	// lifetime, so Close interrupts an in-flight mutation and its backoff.
	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	stopWatch := context.AfterFunc(coordinator.runCtx, cancelCall)
	defer stopWatch()

	var confirmed BookingRecord
	execErr := coordinator.executor.Do(callCtx, "mutation."+string(action), coordinator.policy, func(ctx context.Context) error {
		record, callErr := call(ctx, idempotencyKey)
		if callErr != nil {
			return callErr
		}
		confirmed = record
		return nil
	})

	coordinator.mu.Lock()
	closedMidFlight := coordinator.closed
	delete(coordinator.pending, bookingID)
	coordinator.mu.Unlock()
	if closedMidFlight {
		// Teardown won the race. The store is frozen from here on: no
		// rollback, no reconcile, no change signal.
		return ErrEngineDisposed
	}

	if execErr != nil {
		coordinator.store.Rollback(bookingID, preImage)
		coordinator.report(ctx, bookingID, action, BookingRecord{}, execErr)
		return execErr
	}

	coordinator.store.Reconcile(confirmed)
	coordinator.markSuccess(bookingID)
	coordinator.report(ctx, bookingID, action, confirmed, nil)
	return nil
}

// Pending reports whether a mutation is in flight for the booking.
func (coordinator *Coordinator) Pending(bookingID string) bool {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	_, exists := coordinator.pending[bookingID]
	return exists
}

// SuccessVisible reports whether the time-boxed success indicator is still lit.
func (coordinator *Coordinator) SuccessVisible(bookingID string) bool {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	_, lit := coordinator.successTimers[bookingID]
	return lit
}

// Close stops every pending success timer and cancels any mutation still in
// flight. After Close no timer fires, no further mutation is accepted, and an
// interrupted mutation leaves the store exactly as it was.
func (coordinator *Coordinator) Close() {
	coordinator.mu.Lock()
	coordinator.closed = true
	for bookingID, timer := range coordinator.successTimers {
		timer.Stop()
		delete(coordinator.successTimers, bookingID)
	}
	coordinator.mu.Unlock()
	coordinator.cancelRun()
}

func (coordinator *Coordinator) clearPending(bookingID string) {
	coordinator.mu.Lock()
	delete(coordinator.pending, bookingID)
	coordinator.mu.Unlock()
}

func (coordinator *Coordinator) markSuccess(bookingID string) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()
	if coordinator.closed {
		return
	}
	if existing, exists := coordinator.successTimers[bookingID]; exists {
		existing.Stop()
	}
	coordinator.successTimers[bookingID] = time.AfterFunc(coordinator.successTTL, func() {
		coordinator.mu.Lock()
		delete(coordinator.successTimers, bookingID)
		closed := coordinator.closed
		coordinator.mu.Unlock()
		if !closed {
			coordinator.store.signalChange()
		}
	})
	coordinator.store.signalChange()
}

func (coordinator *Coordinator) report(ctx context.Context, bookingID string, action BookingAction, record BookingRecord, err error) {
	if coordinator.logger != nil {
		status := operationStatusOK
		if err != nil {
			status = operationStatusError
		}
		coordinator.logger.LogOperation(ctx, OperationLog{
			Operation: "mutation.apply",
			BookingID: bookingID,
			Action:    action,
			Status:    status,
			Error:     err,
		})
	}
	if coordinator.onResult != nil {
		coordinator.onResult(MutationResult{
			BookingID: bookingID,
			Action:    action,
			Record:    record,
			Err:       err,
		})
	}
}
