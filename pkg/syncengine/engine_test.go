package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func mustEngineConfig(test *testing.T) Config {
	test.Helper()
	cfg := DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.PollInterval = time.Hour
	cfg.BookingsCooldown = time.Hour
	return cfg
}

func mustStartedEngine(test *testing.T, api *stubAPI, options ...EngineOption) *Engine {
	test.Helper()
	engine, err := New(mustEngineConfig(test), api, options...)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	test.Cleanup(engine.Dispose)
	return engine
}

func TestNewRejectsMissingAPI(test *testing.T) {
	test.Parallel()
	if _, err := New(DefaultConfig(), nil); !errors.Is(err, ErrInvalidEngineConfig) {
		test.Fatalf(errorMismatchMessage, ErrInvalidEngineConfig, err)
	}
}

func TestStartLoadsInitialSnapshot(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.snapshot = BookingSnapshot{
		ProviderID: providerIDValue,
		Bookings:   []BookingRecord{mustPendingRecord(test, bookingIDValue)},
	}
	engine := mustStartedEngine(test, api)

	if engine.SessionStatus() != SessionAuthenticated {
		test.Fatalf(unexpectedStatusMessage, engine.SessionStatus())
	}
	if engine.ProviderID() != providerIDValue {
		test.Fatalf(valueMismatchMessage, providerIDValue, engine.ProviderID())
	}
	if _, found := engine.Booking(bookingIDValue); !found {
		test.Fatal("expected initial snapshot to populate the store")
	}
}

func TestStartIsLatched(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	engine := mustStartedEngine(test, api)

	fetchesAfterFirstStart := api.countFetches()
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if api.countFetches() != fetchesAfterFirstStart {
		test.Fatal("expected a second Start to issue no duplicate bootstrap fetch")
	}
	if api.countSessionChecks() != 1 {
		test.Fatalf(errorMismatchMessage, 1, api.countSessionChecks())
	}
}

func TestStartFailureLeavesLatchOpen(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.sessionError = NewCallError("session.check", ErrorKindUnauthorized, 401, "", nil)
	engine, err := New(mustEngineConfig(test), api)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if err := engine.Start(context.Background()); !errors.Is(err, ErrSessionCheckFailed) {
		test.Fatalf(errorMismatchMessage, ErrSessionCheckFailed, err)
	}

	// After the session recovers, an explicit Start succeeds.
	api.mu.Lock()
	api.sessionError = nil
	api.mu.Unlock()
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	engine.Dispose()
}

func TestStartSurvivesInitialFetchFailure(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.fetchError = NewCallError("bookings.fetch", ErrorKindClientRejected, 400, "", nil)
	logger := &recordingLogger{}
	engine, err := New(mustEngineConfig(test), api, WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("expected start to tolerate a failed initial fetch, got %v", err)
	}
	defer engine.Dispose()

	found := false
	for _, operation := range logger.operations() {
		if operation == "bootstrap.fetch" {
			found = true
		}
	}
	if !found {
		test.Fatal("expected the failed bootstrap fetch to be logged")
	}
}

func TestDisposeIsIdempotentAndBlocksRestart(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	engine, err := New(mustEngineConfig(test), api)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	engine.Dispose()
	engine.Dispose()

	if err := engine.Start(context.Background()); !errors.Is(err, ErrEngineDisposed) {
		test.Fatalf(errorMismatchMessage, ErrEngineDisposed, err)
	}
	if err := engine.AcceptBooking(context.Background(), bookingIDValue); !errors.Is(err, ErrEngineDisposed) {
		test.Fatalf(errorMismatchMessage, ErrEngineDisposed, err)
	}
}

func TestRefreshBookingsRequiresAuthentication(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	engine, err := New(mustEngineConfig(test), api)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	if err := engine.RefreshBookings(context.Background(), true); !errors.Is(err, ErrNotAuthenticated) {
		test.Fatalf(errorMismatchMessage, ErrNotAuthenticated, err)
	}
	if api.countFetches() != 0 {
		test.Fatalf(errorMismatchMessage, 0, api.countFetches())
	}
}

func TestRefreshBookingsHonorsCooldown(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	engine := mustStartedEngine(test, api)

	fetches := api.countFetches()
	if err := engine.RefreshBookings(context.Background(), false); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if api.countFetches() != fetches {
		test.Fatal("expected refresh inside cooldown to skip the network")
	}

	if err := engine.RefreshBookings(context.Background(), true); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if api.countFetches() != fetches+1 {
		test.Fatalf(errorMismatchMessage, fetches+1, api.countFetches())
	}
}

func TestCooldownHitDoesNotClobberOptimisticPatch(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.snapshot = BookingSnapshot{
		ProviderID: providerIDValue,
		Bookings:   []BookingRecord{mustPendingRecord(test, bookingIDValue)},
	}
	confirmed := mustPendingRecord(test, bookingIDValue)
	confirmed.Status = BookingStatusConfirmed
	confirmed.UpdatedAt = baseTime.Add(time.Second)
	api.mutationRecord = confirmed
	engine := mustStartedEngine(test, api)

	if err := engine.AcceptBooking(context.Background(), bookingIDValue); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	// The refresh lands inside the cooldown; the stale cached snapshot with the
	// pending status must not overwrite the reconciled record.
	if err := engine.RefreshBookings(context.Background(), false); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	record, _ := engine.Booking(bookingIDValue)
	if record.Status != BookingStatusConfirmed {
		test.Fatalf(valueMismatchMessage, BookingStatusConfirmed, record.Status)
	}
}

func TestBankDetailsFetchedUnderOwnCooldown(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.bankDetails = BankDetails{BankName: "Standard Bank", UpdatedAt: baseTime}
	engine := mustStartedEngine(test, api)

	details, err := engine.BankDetails(context.Background(), false)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if details.BankName != "Standard Bank" {
		test.Fatalf(valueMismatchMessage, "Standard Bank", details.BankName)
	}

	if _, err := engine.BankDetails(context.Background(), false); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	api.mu.Lock()
	calls := api.bankDetailsCalls
	api.mu.Unlock()
	if calls != 1 {
		test.Fatalf(errorMismatchMessage, 1, calls)
	}
}

func TestMutationListenerReceivesOutcome(test *testing.T) {
	test.Parallel()
	api := newStubAPI(test)
	api.snapshot = BookingSnapshot{
		ProviderID: providerIDValue,
		Bookings:   []BookingRecord{mustPendingRecord(test, bookingIDValue)},
	}
	confirmed := mustPendingRecord(test, bookingIDValue)
	confirmed.Status = BookingStatusConfirmed
	confirmed.UpdatedAt = baseTime.Add(time.Second)
	api.mutationRecord = confirmed

	var mu sync.Mutex
	var results []MutationResult
	engine := mustStartedEngine(test, api, WithMutationListener(func(result MutationResult) {
		mu.Lock()
		results = append(results, result)
		mu.Unlock()
	}))

	if err := engine.AcceptBooking(context.Background(), bookingIDValue); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		test.Fatalf(errorMismatchMessage, 1, len(results))
	}
	if results[0].Action != ActionAccept || results[0].Err != nil {
		test.Fatalf("unexpected result: %+v", results[0])
	}
	if !engine.SuccessVisible(bookingIDValue) {
		test.Fatal("expected success indicator after listener fired")
	}
}

// seedStub is an in-memory SeedSource.
type seedStub struct {
	mu       sync.Mutex
	snapshot BookingSnapshot
	found    bool
	saves    int
}

func (seed *seedStub) LoadSnapshot(ctx context.Context) (BookingSnapshot, bool, error) {
	seed.mu.Lock()
	defer seed.mu.Unlock()
	return seed.snapshot, seed.found, nil
}

func (seed *seedStub) SaveSnapshot(ctx context.Context, snapshot BookingSnapshot) error {
	seed.mu.Lock()
	defer seed.mu.Unlock()
	seed.snapshot = snapshot
	seed.found = true
	seed.saves++
	return nil
}

func TestSeedSourceFeedsAndFollowsTheStore(test *testing.T) {
	test.Parallel()
	seeded := mustPendingRecord(test, otherBookingIDValue)
	seed := &seedStub{snapshot: BookingSnapshot{ProviderID: providerIDValue, Bookings: []BookingRecord{seeded}}, found: true}

	api := newStubAPI(test)
	api.snapshot = BookingSnapshot{
		ProviderID: providerIDValue,
		Bookings:   []BookingRecord{mustPendingRecord(test, bookingIDValue)},
	}
	engine := mustStartedEngine(test, api, WithSeedSource(seed))

	// The fetched snapshot wholesale-replaced the seeded record set.
	if _, found := engine.Booking(otherBookingIDValue); found {
		test.Fatal("expected seeded record to be replaced by the fetched snapshot")
	}
	if _, found := engine.Booking(bookingIDValue); !found {
		test.Fatal("expected fetched record to be present")
	}

	seed.mu.Lock()
	saves := seed.saves
	seed.mu.Unlock()
	if saves != 1 {
		test.Fatalf(errorMismatchMessage, 1, saves)
	}
}

func TestSeedKeepsViewPopulatedWhenInitialFetchFails(test *testing.T) {
	test.Parallel()
	seeded := mustPendingRecord(test, bookingIDValue)
	seed := &seedStub{snapshot: BookingSnapshot{ProviderID: providerIDValue, Bookings: []BookingRecord{seeded}}, found: true}

	api := newStubAPI(test)
	api.fetchError = NewCallError("bookings.fetch", ErrorKindClientRejected, 400, "", nil)
	engine, err := New(mustEngineConfig(test), api, WithSeedSource(seed))
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	defer engine.Dispose()

	if _, found := engine.Booking(bookingIDValue); !found {
		test.Fatal("expected the seeded record to survive a failed initial fetch")
	}
}
