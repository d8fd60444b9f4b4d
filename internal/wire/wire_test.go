package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

var occurredAtValue = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestToEventDecodesByResource(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		resource string
		data     string
		check    func(test *testing.T, event syncengine.RealtimeEvent)
	}{
		{
			name:     "booking",
			resource: "booking",
			data:     `{"id":"booking-1","status":"confirmed","paymentMethod":"cash"}`,
			check: func(test *testing.T, event syncengine.RealtimeEvent) {
				if event.Data.Booking == nil || event.Data.Booking.ID != "booking-1" {
					test.Fatalf("unexpected booking payload: %+v", event.Data)
				}
				// Lowercase server values normalize into the canonical enums.
				if event.Data.Booking.Status != syncengine.BookingStatusConfirmed {
					test.Fatalf("expected %v, got %v", syncengine.BookingStatusConfirmed, event.Data.Booking.Status)
				}
			},
		},
		{
			name:     "payment",
			resource: "payment",
			data:     `{"bookingId":"booking-1","status":"CAPTURED","amountCents":45000}`,
			check: func(test *testing.T, event syncengine.RealtimeEvent) {
				if event.Data.Payment == nil || event.Data.Payment.Status != syncengine.PaymentStatusCaptured {
					test.Fatalf("unexpected payment payload: %+v", event.Data)
				}
			},
		},
		{
			name:     "notification",
			resource: "notification",
			data:     `{"notificationId":"n-1","title":"hello","body":"world"}`,
			check: func(test *testing.T, event syncengine.RealtimeEvent) {
				if event.Data.Notification == nil || event.Data.Notification.Title != "hello" {
					test.Fatalf("unexpected notification payload: %+v", event.Data)
				}
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			frame := EventFrame{
				Resource:   testCase.resource,
				Action:     "status_changed",
				Data:       json.RawMessage(testCase.data),
				OccurredAt: occurredAtValue,
			}
			event, err := frame.ToEvent()
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if !event.OccurredAt.Equal(occurredAtValue) {
				test.Fatalf("expected %v, got %v", occurredAtValue, event.OccurredAt)
			}
			testCase.check(test, event)
		})
	}
}

func TestToEventRejectsUnknownResource(test *testing.T) {
	test.Parallel()
	frame := EventFrame{Resource: "invoice", Data: json.RawMessage(`{}`)}
	if _, err := frame.ToEvent(); err == nil {
		test.Fatal("expected unknown resource to be rejected")
	}
}

func TestFromEventRoundTripsBooking(test *testing.T) {
	test.Parallel()
	record := syncengine.BookingRecord{
		ID:            "booking-1",
		Status:        syncengine.BookingStatusInProgress,
		PaymentMethod: syncengine.PaymentMethodCash,
		Payment:       &syncengine.Payment{Status: syncengine.PaymentStatusClaimedPaid, AmountCents: 30000},
		UpdatedAt:     occurredAtValue,
	}
	frame, err := FromEvent(syncengine.RealtimeEvent{
		Resource:   syncengine.ResourceBooking,
		Action:     syncengine.EventActionStatusChanged,
		Data:       syncengine.EventData{Booking: &record},
		OccurredAt: occurredAtValue,
	})
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}

	event, err := frame.ToEvent()
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	decoded := event.Data.Booking
	if decoded == nil || decoded.Status != record.Status || decoded.Payment.Status != record.Payment.Status {
		test.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestFromEventRejectsEmptyPayload(test *testing.T) {
	test.Parallel()
	if _, err := FromEvent(syncengine.RealtimeEvent{Resource: syncengine.ResourceBooking}); err == nil {
		test.Fatal("expected event without data to be rejected")
	}
}

func TestUnknownStatusDegradesNotFails(test *testing.T) {
	test.Parallel()
	booking := Booking{ID: "booking-1", Status: "TELEPORTED", PaymentMethod: "BARTER"}
	record := booking.ToRecord()
	if record.Status != syncengine.BookingStatusUnknown {
		test.Fatalf("expected %v, got %v", syncengine.BookingStatusUnknown, record.Status)
	}
	if record.PaymentMethod != syncengine.PaymentMethodUnknown {
		test.Fatalf("expected %v, got %v", syncengine.PaymentMethodUnknown, record.PaymentMethod)
	}
}
