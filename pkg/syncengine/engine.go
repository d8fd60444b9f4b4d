package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadAPI is the read half of the remote boundary.
type ReadAPI interface {
	FetchBookings(ctx context.Context) (BookingSnapshot, error)
	FetchBankDetails(ctx context.Context) (BankDetails, error)
}

// API is the full remote boundary the engine operates against.
type API interface {
	SessionAPI
	ReadAPI
	MutationAPI
}

// SeedSource optionally persists the last-known-good snapshot between runs so
// a restarted host can render data before the first fetch completes. The
// remote stays authoritative: the first successful fetch wholesale-replaces
// whatever was seeded.
type SeedSource interface {
	LoadSnapshot(ctx context.Context) (BookingSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snapshot BookingSnapshot) error
}

// Engine is the sync engine context: it owns every component, every goroutine,
// and every timer, with an explicit create/start/dispose lifecycle. Nothing
// lives at package scope, so instances never bleed into each other.
type Engine struct {
	cfg        Config
	api        API
	transport  PushTransport
	seed       SeedSource
	logger     OperationLogger
	nowFn      func() time.Time
	onAuthFail func()
	onMutation func(MutationResult)

	session     *SessionGuard
	cache       *Cache
	executor    *Executor
	store       *Store
	coordinator *Coordinator
	channel     *Channel

	mu         sync.Mutex
	started    bool
	disposed   bool
	cancel     context.CancelFunc
	providerID string
	wg         sync.WaitGroup
}

// EngineOption configures an Engine instance.
type EngineOption func(*Engine)

// WithPushTransport attaches a push transport; without one the engine is
// poll-only.
func WithPushTransport(transport PushTransport) EngineOption {
	return func(engine *Engine) {
		engine.transport = transport
	}
}

// WithSeedSource attaches snapshot persistence.
func WithSeedSource(seed SeedSource) EngineOption {
	return func(engine *Engine) {
		engine.seed = seed
	}
}

// WithOperationLogger wires a logger that receives every engine operation.
func WithOperationLogger(logger OperationLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(engine *Engine) {
		engine.nowFn = now
	}
}

// WithAuthFailureHandler hangs the host's redirect on terminal auth failure.
func WithAuthFailureHandler(handler func()) EngineOption {
	return func(engine *Engine) {
		engine.onAuthFail = handler
	}
}

// WithMutationListener receives every mutation outcome, success or terminal
// failure, for the host's banner/toast surface.
func WithMutationListener(listener func(MutationResult)) EngineOption {
	return func(engine *Engine) {
		engine.onMutation = listener
	}
}

// New wires an engine. The configuration is validated and defaulted in place.
func New(cfg Config, api API, options ...EngineOption) (*Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: api dependency is nil", ErrInvalidEngineConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine := &Engine{cfg: cfg, api: api, nowFn: time.Now}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}

	engine.session = NewSessionGuard(api, cfg.SessionTimeout, engine.nowFn, engine.logger, engine.onAuthFail)
	engine.cache = NewCache(engine.nowFn)
	engine.executor = NewExecutor(engine.session, engine.logger)
	engine.store = NewStore(engine.nowFn)
	engine.coordinator = NewCoordinator(
		engine.store,
		api,
		engine.executor,
		engine.mutationPolicy(),
		cfg.SuccessIndicatorTTL,
		engine.nowFn,
		engine.logger,
		engine.onMutation,
	)
	engine.channel = NewChannel(engine.store, engine.session, engine.transport, engine.RefreshBookings, cfg, engine.nowFn, engine.logger)
	return engine, nil
}

// Start checks the session, seeds and loads the store, and brings up the
// realtime channel. It is latched: a second Start on a running engine is a
// no-op, which keeps rapid remounts from issuing duplicate bootstrap fetches.
func (engine *Engine) Start(ctx context.Context) error {
	engine.mu.Lock()
	if engine.disposed {
		engine.mu.Unlock()
		return ErrEngineDisposed
	}
	if engine.started {
		engine.mu.Unlock()
		return nil
	}
	engine.started = true
	engine.mu.Unlock()

	if _, err := engine.session.Check(ctx); err != nil {
		// Leave the latch open so an explicit later Start can try again.
		engine.mu.Lock()
		engine.started = false
		engine.mu.Unlock()
		return err
	}

	if engine.seed != nil {
		if snapshot, found, err := engine.seed.LoadSnapshot(ctx); err == nil && found {
			engine.store.ApplySnapshot(snapshot)
		}
	}

	// The initial read failing is not fatal: the seed (if any) keeps the view
	// populated and the poll backstop retries on its own schedule.
	if err := engine.RefreshBookings(ctx, true); err != nil {
		engine.logOperation(ctx, "bootstrap.fetch", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	engine.mu.Lock()
	engine.cancel = cancel
	engine.mu.Unlock()

	engine.wg.Add(1)
	go func() {
		defer engine.wg.Done()
		engine.channel.Run(runCtx)
	}()
	return nil
}

// Dispose tears the engine down: the run context is cancelled, every timer is
// stopped, and the call blocks until the channel goroutine exits. After
// Dispose no timer fires and no store mutation occurs.
func (engine *Engine) Dispose() {
	engine.mu.Lock()
	if engine.disposed {
		engine.mu.Unlock()
		return
	}
	engine.disposed = true
	cancel := engine.cancel
	engine.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	engine.coordinator.Close()
	engine.wg.Wait()
}

// RefreshBookings loads the authoritative booking snapshot through the cache
// and executor. With force off it honors the cooldown and joins any fetch
// already in flight. The store is only touched when a fresh load actually
// happened, so a cooldown hit can never clobber an optimistic patch.
func (engine *Engine) RefreshBookings(ctx context.Context, force bool) error {
	if _, authenticated := engine.session.CurrentIdentity(); !authenticated {
		return ErrNotAuthenticated
	}
	_, err := engine.cache.Fetch(ctx, CacheKeyBookings, func(ctx context.Context) (any, error) {
		var snapshot BookingSnapshot
		execErr := engine.executor.Do(ctx, "bookings.fetch", engine.readPolicy(), func(ctx context.Context) error {
			fetched, fetchErr := engine.api.FetchBookings(ctx)
			if fetchErr != nil {
				return fetchErr
			}
			snapshot = fetched
			return nil
		})
		if execErr != nil {
			return nil, execErr
		}
		engine.store.ApplySnapshot(snapshot)
		engine.setProviderID(snapshot.ProviderID)
		if engine.seed != nil {
			if saveErr := engine.seed.SaveSnapshot(ctx, snapshot); saveErr != nil {
				engine.logOperation(ctx, "seed.save", saveErr)
			}
		}
		return snapshot, nil
	}, FetchOptions{Force: force, Cooldown: engine.cfg.BookingsCooldown})
	return err
}

// BankDetails fetches the secondary payout resource under its longer cooldown.
func (engine *Engine) BankDetails(ctx context.Context, force bool) (BankDetails, error) {
	identity, authenticated := engine.session.CurrentIdentity()
	if !authenticated {
		return BankDetails{}, ErrNotAuthenticated
	}
	key := BankDetailsCacheKey(identity.UserID)
	result, err := engine.cache.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		var details BankDetails
		execErr := engine.executor.Do(ctx, "bankdetails.fetch", engine.readPolicy(), func(ctx context.Context) error {
			fetched, fetchErr := engine.api.FetchBankDetails(ctx)
			if fetchErr != nil {
				return fetchErr
			}
			details = fetched
			return nil
		})
		if execErr != nil {
			return nil, execErr
		}
		return details, nil
	}, FetchOptions{Force: force, Cooldown: engine.cfg.BankDetailsCooldown})
	if err != nil {
		return BankDetails{}, err
	}
	details, ok := result.(BankDetails)
	if !ok {
		return BankDetails{}, fmt.Errorf("%w: unexpected cache payload for %s", ErrInvalidEngineConfig, key)
	}
	return details, nil
}

// View derives a filtered snapshot for presentation.
func (engine *Engine) View(filter Filter) Snapshot {
	return engine.store.View(filter)
}

// Booking returns one record by id.
func (engine *Engine) Booking(bookingID string) (BookingRecord, bool) {
	return engine.store.Get(bookingID)
}

// Changes exposes the coalesced change signal for the host view.
func (engine *Engine) Changes() <-chan struct{} {
	return engine.store.Changes()
}

// SessionStatus reports the guard's authentication state.
func (engine *Engine) SessionStatus() SessionStatus {
	return engine.session.Status()
}

// ProviderID returns the provider identity reported by the bookings endpoint.
func (engine *Engine) ProviderID() string {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.providerID
}

// AcceptBooking runs the accept mutation.
func (engine *Engine) AcceptBooking(ctx context.Context, bookingID string) error {
	return engine.coordinator.Accept(ctx, bookingID)
}

// StartBooking runs the start mutation.
func (engine *Engine) StartBooking(ctx context.Context, bookingID string) error {
	return engine.coordinator.Start(ctx, bookingID)
}

// CompleteBooking runs the complete mutation with the provider's report.
func (engine *Engine) CompleteBooking(ctx context.Context, bookingID string, report CompletionReport) error {
	return engine.coordinator.Complete(ctx, bookingID, report)
}

// ConfirmCashPayment runs the cash settlement mutation.
func (engine *Engine) ConfirmCashPayment(ctx context.Context, bookingID string, amountCents int64) error {
	return engine.coordinator.ConfirmCashPayment(ctx, bookingID, amountCents)
}

// MutationPending reports whether a mutation is in flight for the booking.
func (engine *Engine) MutationPending(bookingID string) bool {
	return engine.coordinator.Pending(bookingID)
}

// SuccessVisible reports whether the booking's success indicator is still lit.
func (engine *Engine) SuccessVisible(bookingID string) bool {
	return engine.coordinator.SuccessVisible(bookingID)
}

func (engine *Engine) readPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     engine.cfg.ReadRetries,
		AttemptTimeout: engine.cfg.RequestTimeout,
		BackoffBase:    engine.cfg.BackoffBase,
	}
}

func (engine *Engine) mutationPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     engine.cfg.MutationRetries,
		AttemptTimeout: engine.cfg.RequestTimeout,
		BackoffBase:    engine.cfg.BackoffBase,
	}
}

func (engine *Engine) setProviderID(providerID string) {
	if providerID == "" {
		return
	}
	engine.mu.Lock()
	engine.providerID = providerID
	engine.mu.Unlock()
}

func (engine *Engine) logOperation(ctx context.Context, operation string, err error) {
	if engine.logger == nil {
		return
	}
	status := operationStatusOK
	if err != nil {
		status = operationStatusError
	}
	engine.logger.LogOperation(ctx, OperationLog{Operation: operation, Status: status, Error: err})
}
