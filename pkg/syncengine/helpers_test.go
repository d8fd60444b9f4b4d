package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"
)

const (
	bookingIDValue       = "booking-1"
	otherBookingIDValue  = "booking-2"
	providerIDValue      = "provider-1"
	providerEmailValue   = "provider@example.test"
	providerRoleValue    = "PROVIDER"
	errorMismatchMessage = "expected %v, got %v"
	valueMismatchMessage = "expected %q, got %q"
)

var baseTime = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func mustPendingRecord(test *testing.T, bookingID string) BookingRecord {
	test.Helper()
	return BookingRecord{
		ID:            bookingID,
		Status:        BookingStatusPending,
		PaymentMethod: PaymentMethodCash,
		ScheduledAt:   baseTime.Add(2 * time.Hour),
		AmountCents:   50000,
		UpdatedAt:     baseTime,
	}
}

func mustClaimedCashRecord(test *testing.T, bookingID string) BookingRecord {
	test.Helper()
	return BookingRecord{
		ID:            bookingID,
		Status:        BookingStatusAwaitingConfirmation,
		PaymentMethod: PaymentMethodCash,
		Payment: &Payment{
			Status:      PaymentStatusClaimedPaid,
			AmountCents: 30000,
		},
		ScheduledAt: baseTime.Add(-time.Hour),
		AmountCents: 30000,
		UpdatedAt:   baseTime,
	}
}

func mustStoreWith(test *testing.T, records ...BookingRecord) *Store {
	test.Helper()
	store := NewStore(fixedClock(baseTime))
	store.ApplySnapshot(BookingSnapshot{ProviderID: providerIDValue, Bookings: records})
	drainChanges(store)
	return store
}

func drainChanges(store *Store) {
	select {
	case <-store.Changes():
	default:
	}
}

// stubAPI implements the full remote boundary with programmable outcomes.
type stubAPI struct {
	mu sync.Mutex

	identity     Identity
	sessionError error
	sessionCalls int

	snapshot       BookingSnapshot
	fetchError     error
	fetchCalls     int
	fetchErrorOnce bool

	bankDetails      BankDetails
	bankDetailsError error
	bankDetailsCalls int

	mutationRecord BookingRecord
	mutationError  error
	mutationCalls  int
	mutationKeys   []string
}

func newStubAPI(test *testing.T) *stubAPI {
	test.Helper()
	return &stubAPI{
		identity: Identity{
			UserID: providerIDValue,
			Email:  providerEmailValue,
			Role:   providerRoleValue,
		},
		snapshot: BookingSnapshot{ProviderID: providerIDValue},
	}
}

func (api *stubAPI) CheckSession(ctx context.Context) (Identity, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.sessionCalls++
	if api.sessionError != nil {
		return Identity{}, api.sessionError
	}
	return api.identity, nil
}

func (api *stubAPI) FetchBookings(ctx context.Context) (BookingSnapshot, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.fetchCalls++
	if api.fetchError != nil {
		err := api.fetchError
		if api.fetchErrorOnce {
			api.fetchError = nil
		}
		return BookingSnapshot{}, err
	}
	return api.snapshot, nil
}

func (api *stubAPI) FetchBankDetails(ctx context.Context) (BankDetails, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.bankDetailsCalls++
	if api.bankDetailsError != nil {
		return BankDetails{}, api.bankDetailsError
	}
	return api.bankDetails, nil
}

func (api *stubAPI) AcceptBooking(ctx context.Context, bookingID string, idempotencyKey string) (BookingRecord, error) {
	return api.mutate(idempotencyKey)
}

func (api *stubAPI) StartBooking(ctx context.Context, bookingID string, idempotencyKey string) (BookingRecord, error) {
	return api.mutate(idempotencyKey)
}

func (api *stubAPI) CompleteBooking(ctx context.Context, bookingID string, idempotencyKey string, report CompletionReport) (BookingRecord, error) {
	return api.mutate(idempotencyKey)
}

func (api *stubAPI) ConfirmCashPayment(ctx context.Context, bookingID string, idempotencyKey string, amountCents int64) (BookingRecord, error) {
	return api.mutate(idempotencyKey)
}

func (api *stubAPI) mutate(idempotencyKey string) (BookingRecord, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.mutationCalls++
	api.mutationKeys = append(api.mutationKeys, idempotencyKey)
	if api.mutationError != nil {
		return BookingRecord{}, api.mutationError
	}
	return api.mutationRecord, nil
}

func (api *stubAPI) countFetches() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.fetchCalls
}

func (api *stubAPI) countSessionChecks() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.sessionCalls
}

func (api *stubAPI) countMutations() int {
	api.mu.Lock()
	defer api.mu.Unlock()
	return api.mutationCalls
}

// recordingLogger captures operation logs for assertions.
type recordingLogger struct {
	mu   sync.Mutex
	logs []OperationLog
}

func (logger *recordingLogger) LogOperation(ctx context.Context, log OperationLog) {
	logger.mu.Lock()
	logger.logs = append(logger.logs, log)
	logger.mu.Unlock()
}

func (logger *recordingLogger) operations() []string {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	operations := make([]string, 0, len(logger.logs))
	for _, log := range logger.logs {
		operations = append(operations, log.Operation)
	}
	return operations
}

// noSleep replaces the executor's backoff sleep so retry tests finish instantly.
func noSleep(ctx context.Context, delay time.Duration) error {
	return ctx.Err()
}

func mustExecutorWithoutBackoff(test *testing.T, session SessionRechecker) *Executor {
	test.Helper()
	executor := NewExecutor(session, nil)
	executor.sleepFn = noSleep
	return executor
}
