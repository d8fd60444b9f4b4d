package syncengine

import (
	"strings"
	"time"
)

// BookingStatus enumerates the booking lifecycle states recognized by the engine.
type BookingStatus string

const (
	BookingStatusPending              BookingStatus = "PENDING"
	BookingStatusConfirmed            BookingStatus = "CONFIRMED"
	BookingStatusPendingExecution     BookingStatus = "PENDING_EXECUTION"
	BookingStatusInProgress           BookingStatus = "IN_PROGRESS"
	BookingStatusAwaitingConfirmation BookingStatus = "AWAITING_CONFIRMATION"
	BookingStatusCompleted            BookingStatus = "COMPLETED"
	// BookingStatusUnknown is the sink for any status value the client does not
	// recognize. Records carrying it render as non-actionable, never as errors.
	BookingStatusUnknown BookingStatus = "UNKNOWN"
)

// ParseBookingStatus normalizes a raw server status, degrading to the unknown sink.
func ParseBookingStatus(raw string) BookingStatus {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusPendingExecution,
		BookingStatusInProgress, BookingStatusAwaitingConfirmation, BookingStatusCompleted:
		return status
	}
	return BookingStatusUnknown
}

// PaymentMethod describes how a booking is paid.
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "CASH"
	PaymentMethodOnline  PaymentMethod = "ONLINE"
	PaymentMethodUnknown PaymentMethod = "UNKNOWN"
)

// ParsePaymentMethod normalizes a raw payment method, degrading to unknown.
func ParsePaymentMethod(raw string) PaymentMethod {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch method {
	case PaymentMethodCash, PaymentMethodOnline:
		return method
	}
	return PaymentMethodUnknown
}

// PaymentStatus describes the payment leg attached to a booking.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "PENDING"
	PaymentStatusCaptured    PaymentStatus = "CAPTURED"
	PaymentStatusClaimedPaid PaymentStatus = "CLAIMED_PAID"
	PaymentStatusConfirmed   PaymentStatus = "CONFIRMED"
	PaymentStatusUnknown     PaymentStatus = "UNKNOWN"
)

// ParsePaymentStatus normalizes a raw payment status, degrading to unknown.
func ParsePaymentStatus(raw string) PaymentStatus {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case PaymentStatusPending, PaymentStatusCaptured, PaymentStatusClaimedPaid, PaymentStatusConfirmed:
		return status
	}
	return PaymentStatusUnknown
}

// Payment is the payment leg of a booking, when the server has reported one.
type Payment struct {
	Status      PaymentStatus
	AmountCents int64
}

// BookingRecord is one booking as held by the lifecycle store. UpdatedAt is the
// version authority: a change with an older server timestamp never overwrites a
// newer record, regardless of arrival order.
type BookingRecord struct {
	ID              string
	Status          BookingStatus
	PaymentMethod   PaymentMethod
	Payment         *Payment
	ScheduledAt     time.Time
	AmountCents     int64
	CounterpartyRef string
	UpdatedAt       time.Time
}

// BookingStats carries the per-status tallies shown on the dashboard header.
type BookingStats struct {
	Pending    int
	Confirmed  int
	InProgress int
	Completed  int
}

// BookingSnapshot is the full authoritative read returned by the bookings endpoint.
type BookingSnapshot struct {
	ProviderID string
	Bookings   []BookingRecord
	Stats      BookingStats
}

// BankDetails is the secondary payout resource, fetched far less urgently than
// bookings and therefore cached under a longer cooldown.
type BankDetails struct {
	BankName            string
	AccountName         string
	AccountNumberMasked string
	BranchCode          string
	UpdatedAt           time.Time
}

// ResourceName tags the domain a realtime event belongs to.
type ResourceName string

const (
	ResourceBooking      ResourceName = "booking"
	ResourcePayment      ResourceName = "payment"
	ResourcePayout       ResourceName = "payout"
	ResourceNotification ResourceName = "notification"
)

// EventAction tags what happened to the tagged resource.
type EventAction string

const (
	EventActionCreated       EventAction = "created"
	EventActionStatusChanged EventAction = "status_changed"
)

// PaymentUpdate is the payload of a payment-domain event.
type PaymentUpdate struct {
	BookingID   string
	Status      PaymentStatus
	AmountCents int64
}

// PayoutUpdate is the payload of a payout-domain event. The engine only logs it.
type PayoutUpdate struct {
	PayoutID    string
	Status      string
	AmountCents int64
}

// NotificationUpdate is the payload of a notification-domain event.
type NotificationUpdate struct {
	NotificationID string
	Title          string
	Body           string
}

// EventData is the tagged payload union of a realtime event; exactly the field
// matching the event's Resource is populated.
type EventData struct {
	Booking      *BookingRecord
	Payment      *PaymentUpdate
	Payout       *PayoutUpdate
	Notification *NotificationUpdate
}

// RealtimeEvent is one normalized change delivered by push or synthesized from a
// poll. Consumed once, folded into the store, never persisted.
type RealtimeEvent struct {
	Resource   ResourceName
	Action     EventAction
	Data       EventData
	OccurredAt time.Time
	ReceivedAt time.Time
}

// BookingAction enumerates the user-triggered mutations the coordinator executes.
type BookingAction string

const (
	ActionAccept             BookingAction = "accept"
	ActionStart              BookingAction = "start"
	ActionComplete           BookingAction = "complete"
	ActionConfirmCashPayment BookingAction = "confirm_cash_payment"
)

// CompletionReport accompanies the complete action.
type CompletionReport struct {
	Notes     string
	PhotoURLs []string
}

// PendingMutation marks an in-flight user action on one booking. It exists from
// the moment the action is triggered until the server response is reconciled.
type PendingMutation struct {
	BookingID      string
	Action         BookingAction
	IdempotencyKey string
	SubmittedAt    time.Time
}

// Identity is the authenticated principal reported by the session probe.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// SessionStatus tracks the session guard's view of authentication.
type SessionStatus string

const (
	SessionUnauthenticated SessionStatus = "unauthenticated"
	SessionAuthenticating  SessionStatus = "authenticating"
	SessionAuthenticated   SessionStatus = "authenticated"
	SessionExpired         SessionStatus = "expired"
)

// Filter narrows a snapshot read to the statuses the host view cares about.
// A zero filter matches everything.
type Filter struct {
	Statuses      []BookingStatus
	PaymentMethod PaymentMethod
}

func (filter Filter) matches(record BookingRecord) bool {
	if filter.PaymentMethod != "" && record.PaymentMethod != filter.PaymentMethod {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if record.Status == status {
			return true
		}
	}
	return false
}

// Snapshot is a derived, filtered view of the store, safe to hand to presentation.
type Snapshot struct {
	Bookings []BookingRecord
	Stats    BookingStats
	TakenAt  time.Time
}
