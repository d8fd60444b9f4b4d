// Package wire holds the JSON payloads of the dashboard contract, shared by
// the REST client, the realtime transport, and the local stub server.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

// Session is the identity probe response.
type Session struct {
	User SessionUser `json:"user"`
}

// SessionUser is the principal inside a session response.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Payment is the payment leg of a booking on the wire.
type Payment struct {
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
}

// Booking is one booking record on the wire.
type Booking struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	PaymentMethod   string    `json:"paymentMethod"`
	Payment         *Payment  `json:"payment,omitempty"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	AmountCents     int64     `json:"amountCents"`
	CounterpartyRef string    `json:"counterpartyRef"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Stats carries the dashboard header tallies.
type Stats struct {
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}

// BookingsResponse is the full snapshot read.
type BookingsResponse struct {
	Success    bool      `json:"success"`
	ProviderID string    `json:"providerId"`
	Bookings   []Booking `json:"bookings"`
	Stats      Stats     `json:"stats"`
}

// BookingEnvelope wraps a single booking, as returned by mutating actions.
type BookingEnvelope struct {
	Success bool    `json:"success"`
	Booking Booking `json:"booking"`
}

// BankDetails is the secondary payout resource.
type BankDetails struct {
	BankName            string    `json:"bankName"`
	AccountName         string    `json:"accountName"`
	AccountNumberMasked string    `json:"accountNumberMasked"`
	BranchCode          string    `json:"branchCode"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// CompleteRequest is the body of the complete action.
type CompleteRequest struct {
	Notes  string   `json:"notes"`
	Photos []string `json:"photos"`
}

// CashConfirmRequest is the body of the cash settlement action.
type CashConfirmRequest struct {
	BookingID string `json:"bookingId"`
	Amount    int64  `json:"amount"`
}

// ErrorBody is the error envelope every endpoint shares.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code and human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PaymentEvent is the data of a payment-domain realtime event.
type PaymentEvent struct {
	BookingID   string `json:"bookingId"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
}

// PayoutEvent is the data of a payout-domain realtime event.
type PayoutEvent struct {
	PayoutID    string `json:"payoutId"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
}

// NotificationEvent is the data of a notification-domain realtime event.
type NotificationEvent struct {
	NotificationID string `json:"notificationId"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

// EventFrame is one realtime message; Data decodes per Resource.
type EventFrame struct {
	Resource   string          `json:"resource"`
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// ToRecord converts a wire booking into a domain record, degrading anything
// unrecognized to the engine's unknown sinks.
func (booking Booking) ToRecord() syncengine.BookingRecord {
	record := syncengine.BookingRecord{
		ID:              booking.ID,
		Status:          syncengine.ParseBookingStatus(booking.Status),
		PaymentMethod:   syncengine.ParsePaymentMethod(booking.PaymentMethod),
		ScheduledAt:     booking.ScheduledAt,
		AmountCents:     booking.AmountCents,
		CounterpartyRef: booking.CounterpartyRef,
		UpdatedAt:       booking.UpdatedAt,
	}
	if booking.Payment != nil {
		record.Payment = &syncengine.Payment{
			Status:      syncengine.ParsePaymentStatus(booking.Payment.Status),
			AmountCents: booking.Payment.AmountCents,
		}
	}
	return record
}

// FromRecord converts a domain record back to its wire form.
func FromRecord(record syncengine.BookingRecord) Booking {
	booking := Booking{
		ID:              record.ID,
		Status:          string(record.Status),
		PaymentMethod:   string(record.PaymentMethod),
		ScheduledAt:     record.ScheduledAt,
		AmountCents:     record.AmountCents,
		CounterpartyRef: record.CounterpartyRef,
		UpdatedAt:       record.UpdatedAt,
	}
	if record.Payment != nil {
		booking.Payment = &Payment{
			Status:      string(record.Payment.Status),
			AmountCents: record.Payment.AmountCents,
		}
	}
	return booking
}

// ToSnapshot converts the snapshot read into domain form.
func (response BookingsResponse) ToSnapshot() syncengine.BookingSnapshot {
	bookings := make([]syncengine.BookingRecord, 0, len(response.Bookings))
	for _, booking := range response.Bookings {
		bookings = append(bookings, booking.ToRecord())
	}
	return syncengine.BookingSnapshot{
		ProviderID: response.ProviderID,
		Bookings:   bookings,
		Stats: syncengine.BookingStats{
			Pending:    response.Stats.Pending,
			Confirmed:  response.Stats.Confirmed,
			InProgress: response.Stats.InProgress,
			Completed:  response.Stats.Completed,
		},
	}
}

// FromSnapshot converts a domain snapshot into the wire read response.
func FromSnapshot(snapshot syncengine.BookingSnapshot) BookingsResponse {
	bookings := make([]Booking, 0, len(snapshot.Bookings))
	for _, record := range snapshot.Bookings {
		bookings = append(bookings, FromRecord(record))
	}
	return BookingsResponse{
		Success:    true,
		ProviderID: snapshot.ProviderID,
		Bookings:   bookings,
		Stats: Stats{
			Pending:    snapshot.Stats.Pending,
			Confirmed:  snapshot.Stats.Confirmed,
			InProgress: snapshot.Stats.InProgress,
			Completed:  snapshot.Stats.Completed,
		},
	}
}

// ToBankDetails converts the payout resource into domain form.
func (details BankDetails) ToBankDetails() syncengine.BankDetails {
	return syncengine.BankDetails{
		BankName:            details.BankName,
		AccountName:         details.AccountName,
		AccountNumberMasked: details.AccountNumberMasked,
		BranchCode:          details.BranchCode,
		UpdatedAt:           details.UpdatedAt,
	}
}

// ToEvent decodes a frame into a domain realtime event. The data payload is a
// tagged union keyed by resource; an unknown resource yields an error so the
// transport can drop the frame without touching the store.
func (frame EventFrame) ToEvent() (syncengine.RealtimeEvent, error) {
	event := syncengine.RealtimeEvent{
		Resource:   syncengine.ResourceName(frame.Resource),
		Action:     syncengine.EventAction(frame.Action),
		OccurredAt: frame.OccurredAt,
	}
	switch event.Resource {
	case syncengine.ResourceBooking:
		var booking Booking
		if err := json.Unmarshal(frame.Data, &booking); err != nil {
			return syncengine.RealtimeEvent{}, fmt.Errorf("decode booking event: %w", err)
		}
		record := booking.ToRecord()
		event.Data.Booking = &record
	case syncengine.ResourcePayment:
		var payment PaymentEvent
		if err := json.Unmarshal(frame.Data, &payment); err != nil {
			return syncengine.RealtimeEvent{}, fmt.Errorf("decode payment event: %w", err)
		}
		event.Data.Payment = &syncengine.PaymentUpdate{
			BookingID:   payment.BookingID,
			Status:      syncengine.ParsePaymentStatus(payment.Status),
			AmountCents: payment.AmountCents,
		}
	case syncengine.ResourcePayout:
		var payout PayoutEvent
		if err := json.Unmarshal(frame.Data, &payout); err != nil {
			return syncengine.RealtimeEvent{}, fmt.Errorf("decode payout event: %w", err)
		}
		event.Data.Payout = &syncengine.PayoutUpdate{
			PayoutID:    payout.PayoutID,
			Status:      payout.Status,
			AmountCents: payout.AmountCents,
		}
	case syncengine.ResourceNotification:
		var notification NotificationEvent
		if err := json.Unmarshal(frame.Data, &notification); err != nil {
			return syncengine.RealtimeEvent{}, fmt.Errorf("decode notification event: %w", err)
		}
		event.Data.Notification = &syncengine.NotificationUpdate{
			NotificationID: notification.NotificationID,
			Title:          notification.Title,
			Body:           notification.Body,
		}
	default:
		return syncengine.RealtimeEvent{}, fmt.Errorf("unknown event resource %q", frame.Resource)
	}
	return event, nil
}

// FromEvent converts a domain event into its wire frame, used by the stub
// server's broadcaster.
func FromEvent(event syncengine.RealtimeEvent) (EventFrame, error) {
	frame := EventFrame{
		Resource:   string(event.Resource),
		Action:     string(event.Action),
		OccurredAt: event.OccurredAt,
	}
	var payload any
	switch {
	case event.Data.Booking != nil:
		payload = FromRecord(*event.Data.Booking)
	case event.Data.Payment != nil:
		payload = PaymentEvent{
			BookingID:   event.Data.Payment.BookingID,
			Status:      string(event.Data.Payment.Status),
			AmountCents: event.Data.Payment.AmountCents,
		}
	case event.Data.Payout != nil:
		payload = PayoutEvent{
			PayoutID:    event.Data.Payout.PayoutID,
			Status:      event.Data.Payout.Status,
			AmountCents: event.Data.Payout.AmountCents,
		}
	case event.Data.Notification != nil:
		payload = NotificationEvent{
			NotificationID: event.Data.Notification.NotificationID,
			Title:          event.Data.Notification.Title,
			Body:           event.Data.Notification.Body,
		}
	default:
		return EventFrame{}, fmt.Errorf("event for %q carries no data", frame.Resource)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return EventFrame{}, fmt.Errorf("encode event data: %w", err)
	}
	frame.Data = encoded
	return frame, nil
}
