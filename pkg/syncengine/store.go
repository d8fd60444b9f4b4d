package syncengine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the booking lifecycle store: the single source of truth presented to
// the UI. Cache, channel, and coordinator only propose changes through its merge
// methods; nothing reaches the record set directly. Every merge is total — a
// malformed record degrades to the unknown sink instead of raising.
type Store struct {
	mu      sync.RWMutex
	records map[string]BookingRecord
	nowFn   func() time.Time
	changes chan struct{}
}

// NewStore wires an empty store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records: make(map[string]BookingRecord),
		nowFn:   now,
		changes: make(chan struct{}, 1),
	}
}

// Changes returns a coalesced change signal. One receive may cover any number
// of merges; readers re-derive a snapshot after each signal.
func (store *Store) Changes() <-chan struct{} {
	return store.changes
}

// ApplySnapshot replaces the full record set with an authoritative read.
// Additions and removals both apply; this is the only path that removes records.
func (store *Store) ApplySnapshot(snapshot BookingSnapshot) {
	replacement := make(map[string]BookingRecord, len(snapshot.Bookings))
	for _, record := range snapshot.Bookings {
		if record.ID == "" {
			continue
		}
		replacement[record.ID] = normalizeRecord(record)
	}
	store.mu.Lock()
	store.records = replacement
	store.mu.Unlock()
	store.signalChange()
}

// ApplyEvent merges one realtime event and reports whether it changed anything.
// A booking event only lands if its server timestamp is strictly newer than the
// current record, which protects against out-of-order delivery when push and
// poll race. Events never remove records.
func (store *Store) ApplyEvent(event RealtimeEvent) bool {
	switch event.Resource {
	case ResourceBooking:
		return store.applyBookingEvent(event)
	case ResourcePayment:
		return store.applyPaymentEvent(event)
	}
	// Payout and notification events carry no booking state.
	return false
}

func (store *Store) applyBookingEvent(event RealtimeEvent) bool {
	incoming := event.Data.Booking
	if incoming == nil || incoming.ID == "" {
		return false
	}
	record := normalizeRecord(*incoming)
	eventTime := record.UpdatedAt
	if eventTime.IsZero() {
		eventTime = event.OccurredAt
		record.UpdatedAt = eventTime
	}

	store.mu.Lock()
	current, exists := store.records[record.ID]
	if exists && !eventTime.After(current.UpdatedAt) {
		store.mu.Unlock()
		return false
	}
	store.records[record.ID] = record
	store.mu.Unlock()
	store.signalChange()
	return true
}

func (store *Store) applyPaymentEvent(event RealtimeEvent) bool {
	update := event.Data.Payment
	if update == nil || update.BookingID == "" {
		return false
	}
	eventTime := event.OccurredAt

	store.mu.Lock()
	current, exists := store.records[update.BookingID]
	if !exists || !eventTime.After(current.UpdatedAt) {
		store.mu.Unlock()
		return false
	}
	payment := Payment{Status: ParsePaymentStatus(string(update.Status)), AmountCents: update.AmountCents}
	if current.Payment != nil && update.AmountCents == 0 {
		payment.AmountCents = current.Payment.AmountCents
	}
	current.Payment = &payment
	current.UpdatedAt = eventTime
	store.records[update.BookingID] = current
	store.mu.Unlock()
	store.signalChange()
	return true
}

// ApplyOptimistic patches a record to the state an action implies before the
// server has confirmed it, and returns the exact pre-mutation record so the
// caller can roll back. The record's version is left untouched: an optimistic
// patch is a local guess, not a server write.
func (store *Store) ApplyOptimistic(bookingID string, action BookingAction) (BookingRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, exists := store.records[bookingID]
	if !exists {
		return BookingRecord{}, fmt.Errorf("%w: %s", ErrUnknownBooking, bookingID)
	}
	if !ActionAllowed(current, action) {
		return BookingRecord{}, fmt.Errorf("%w: %s on %s", ErrActionNotAvailable, action, current.Status)
	}
	target, known := optimisticStatus(action)
	if !known {
		return BookingRecord{}, fmt.Errorf("%w: %s", ErrActionNotAvailable, action)
	}

	preImage := cloneRecord(current)
	patched := cloneRecord(current)
	patched.Status = target
	if action == ActionConfirmCashPayment && patched.Payment != nil {
		patched.Payment.Status = PaymentStatusConfirmed
	}
	store.records[bookingID] = patched
	store.signalChange()
	return preImage, nil
}

// Rollback restores the exact pre-mutation record captured by ApplyOptimistic.
func (store *Store) Rollback(bookingID string, preImage BookingRecord) {
	store.mu.Lock()
	store.records[bookingID] = cloneRecord(preImage)
	store.mu.Unlock()
	store.signalChange()
}

// Reconcile merges a mutation's server-confirmed record. Unlike realtime
// events, a reconciliation also wins timestamp ties: the mutation response is
// the freshest authoritative view the client holds.
func (store *Store) Reconcile(record BookingRecord) bool {
	if record.ID == "" {
		return false
	}
	record = normalizeRecord(record)
	if record.UpdatedAt.IsZero() {
		// A response without a server timestamp is still the freshest view the
		// client holds; stamp it so it cannot lose the comparison.
		record.UpdatedAt = store.nowFn()
	}

	store.mu.Lock()
	current, exists := store.records[record.ID]
	if exists && record.UpdatedAt.Before(current.UpdatedAt) {
		store.mu.Unlock()
		return false
	}
	store.records[record.ID] = record
	store.mu.Unlock()
	store.signalChange()
	return true
}

// Get returns a copy of one record.
func (store *Store) Get(bookingID string) (BookingRecord, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	record, exists := store.records[bookingID]
	if !exists {
		return BookingRecord{}, false
	}
	return cloneRecord(record), true
}

// View derives a filtered, sorted snapshot with recomputed tallies. Tallies are
// always derived from the record set so optimistic patches show up immediately.
func (store *Store) View(filter Filter) Snapshot {
	store.mu.RLock()
	bookings := make([]BookingRecord, 0, len(store.records))
	stats := BookingStats{}
	for _, record := range store.records {
		switch record.Status {
		case BookingStatusPending:
			stats.Pending++
		case BookingStatusConfirmed, BookingStatusPendingExecution:
			stats.Confirmed++
		case BookingStatusInProgress, BookingStatusAwaitingConfirmation:
			stats.InProgress++
		case BookingStatusCompleted:
			stats.Completed++
		}
		if filter.matches(record) {
			bookings = append(bookings, cloneRecord(record))
		}
	}
	store.mu.RUnlock()

	sort.Slice(bookings, func(left, right int) bool {
		if !bookings[left].ScheduledAt.Equal(bookings[right].ScheduledAt) {
			return bookings[left].ScheduledAt.Before(bookings[right].ScheduledAt)
		}
		return bookings[left].ID < bookings[right].ID
	})
	return Snapshot{
		Bookings: bookings,
		Stats:    stats,
		TakenAt:  store.nowFn(),
	}
}

// Len returns the number of records held.
func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.records)
}

// signalChange is a coalesced, non-blocking notification; safe to call with or
// without the store lock held.
func (store *Store) signalChange() {
	select {
	case store.changes <- struct{}{}:
	default:
	}
}

func cloneRecord(record BookingRecord) BookingRecord {
	if record.Payment != nil {
		payment := *record.Payment
		record.Payment = &payment
	}
	return record
}

func normalizeRecord(record BookingRecord) BookingRecord {
	record = cloneRecord(record)
	record.Status = ParseBookingStatus(string(record.Status))
	record.PaymentMethod = ParsePaymentMethod(string(record.PaymentMethod))
	if record.Payment != nil {
		record.Payment.Status = ParsePaymentStatus(string(record.Payment.Status))
	}
	return record
}
