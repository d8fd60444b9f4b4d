package stubserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

// state holds the stub's in-memory booking book. It enforces the same
// transition guards the real backend does, so the engine's optimistic flow can
// be exercised end to end, including rejections.
type state struct {
	mu          sync.Mutex
	providerID  string
	bookings    map[string]syncengine.BookingRecord
	bankDetails syncengine.BankDetails
	replies     map[string]syncengine.BookingRecord
	nowFn       func() time.Time
}

func newState(providerID string, nowFn func() time.Time) *state {
	st := &state{
		providerID: providerID,
		bookings:   make(map[string]syncengine.BookingRecord),
		replies:    make(map[string]syncengine.BookingRecord),
		nowFn:      nowFn,
	}
	st.seedFixtures()
	return st
}

func (st *state) seedFixtures() {
	now := st.nowFn().UTC()
	fixtures := []syncengine.BookingRecord{
		{
			ID:              uuid.NewString(),
			Status:          syncengine.BookingStatusPending,
			PaymentMethod:   syncengine.PaymentMethodCash,
			ScheduledAt:     now.Add(2 * time.Hour),
			AmountCents:     45000,
			CounterpartyRef: "client-a",
			UpdatedAt:       now,
		},
		{
			ID:            uuid.NewString(),
			Status:        syncengine.BookingStatusConfirmed,
			PaymentMethod: syncengine.PaymentMethodOnline,
			Payment: &syncengine.Payment{
				Status:      syncengine.PaymentStatusCaptured,
				AmountCents: 80000,
			},
			ScheduledAt:     now.Add(4 * time.Hour),
			AmountCents:     80000,
			CounterpartyRef: "client-b",
			UpdatedAt:       now,
		},
		{
			ID:            uuid.NewString(),
			Status:        syncengine.BookingStatusAwaitingConfirmation,
			PaymentMethod: syncengine.PaymentMethodCash,
			Payment: &syncengine.Payment{
				Status:      syncengine.PaymentStatusClaimedPaid,
				AmountCents: 30000,
			},
			ScheduledAt:     now.Add(-3 * time.Hour),
			AmountCents:     30000,
			CounterpartyRef: "client-c",
			UpdatedAt:       now,
		},
	}
	for _, record := range fixtures {
		st.bookings[record.ID] = record
	}
	st.bankDetails = syncengine.BankDetails{
		BankName:            "Standard Bank",
		AccountName:         "Demo Provider",
		AccountNumberMasked: "****7421",
		BranchCode:          "051001",
		UpdatedAt:           now,
	}
}

// cloneBooking copies the record's payment leg so callers never alias the
// pointer held in the live map.
func cloneBooking(record syncengine.BookingRecord) syncengine.BookingRecord {
	if record.Payment != nil {
		payment := *record.Payment
		record.Payment = &payment
	}
	return record
}

func (st *state) snapshot() syncengine.BookingSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	bookings := make([]syncengine.BookingRecord, 0, len(st.bookings))
	stats := syncengine.BookingStats{}
	for _, record := range st.bookings {
		bookings = append(bookings, cloneBooking(record))
		switch record.Status {
		case syncengine.BookingStatusPending:
			stats.Pending++
		case syncengine.BookingStatusConfirmed, syncengine.BookingStatusPendingExecution:
			stats.Confirmed++
		case syncengine.BookingStatusInProgress, syncengine.BookingStatusAwaitingConfirmation:
			stats.InProgress++
		case syncengine.BookingStatusCompleted:
			stats.Completed++
		}
	}
	return syncengine.BookingSnapshot{ProviderID: st.providerID, Bookings: bookings, Stats: stats}
}

func (st *state) bank() syncengine.BankDetails {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bankDetails
}

// applyAction runs one booking action, honoring idempotency-key replay. The
// returned conflict string is non-empty when the transition is not allowed.
func (st *state) applyAction(bookingID string, action syncengine.BookingAction, idempotencyKey string) (syncengine.BookingRecord, string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if idempotencyKey != "" {
		if replay, seen := st.replies[idempotencyKey]; seen {
			return cloneBooking(replay), "", nil
		}
	}

	record, found := st.bookings[bookingID]
	if !found {
		return syncengine.BookingRecord{}, "", fmt.Errorf("booking %s not found", bookingID)
	}
	if !syncengine.ActionAllowed(record, action) {
		return syncengine.BookingRecord{}, fmt.Sprintf("action %s not allowed from status %s", action, record.Status), nil
	}

	record = cloneBooking(record)
	now := st.nowFn().UTC()
	switch action {
	case syncengine.ActionAccept:
		record.Status = syncengine.BookingStatusConfirmed
	case syncengine.ActionStart:
		record.Status = syncengine.BookingStatusInProgress
	case syncengine.ActionComplete:
		record.Status = syncengine.BookingStatusAwaitingConfirmation
	case syncengine.ActionConfirmCashPayment:
		record.Status = syncengine.BookingStatusCompleted
		if record.Payment == nil {
			record.Payment = &syncengine.Payment{AmountCents: record.AmountCents}
		}
		record.Payment.Status = syncengine.PaymentStatusConfirmed
	}
	record.UpdatedAt = now
	st.bookings[bookingID] = record
	if idempotencyKey != "" {
		st.replies[idempotencyKey] = cloneBooking(record)
	}
	return cloneBooking(record), "", nil
}

// capturePayment flips an online booking's payment leg to captured, used by
// the simulator endpoint to drive payment realtime events.
func (st *state) capturePayment(bookingID string) (syncengine.BookingRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	record, found := st.bookings[bookingID]
	if !found {
		return syncengine.BookingRecord{}, fmt.Errorf("booking %s not found", bookingID)
	}
	record = cloneBooking(record)
	if record.Payment == nil {
		record.Payment = &syncengine.Payment{AmountCents: record.AmountCents}
	}
	record.Payment.Status = syncengine.PaymentStatusCaptured
	record.UpdatedAt = st.nowFn().UTC()
	st.bookings[bookingID] = record
	return cloneBooking(record), nil
}
