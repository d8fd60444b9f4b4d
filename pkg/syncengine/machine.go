package syncengine

// Status labels shown when no action is offered.
const (
	labelAwaitingPayment      = "Accepted, awaiting payment"
	labelAwaitingConfirmation = "Awaiting confirmation"
)

// AvailableActions returns the mutations the client may offer for a record.
// The server stays authoritative over transitions; this table only decides
// which buttons exist, it never blocks a server-confirmed state change.
func AvailableActions(record BookingRecord) []BookingAction {
	switch record.Status {
	case BookingStatusPending:
		return []BookingAction{ActionAccept}
	case BookingStatusConfirmed:
		if startAllowed(record) {
			return []BookingAction{ActionStart}
		}
		return nil
	case BookingStatusPendingExecution:
		return []BookingAction{ActionStart}
	case BookingStatusInProgress:
		return []BookingAction{ActionComplete}
	case BookingStatusAwaitingConfirmation:
		if cashConfirmAllowed(record) {
			return []BookingAction{ActionConfirmCashPayment}
		}
		return nil
	}
	return nil
}

// ActionAllowed reports whether one specific action is currently offered.
func ActionAllowed(record BookingRecord, action BookingAction) bool {
	for _, candidate := range AvailableActions(record) {
		if candidate == action {
			return true
		}
	}
	return false
}

// StatusLabel returns the display label for a record, including the implicit
// waiting states that carry no action.
func StatusLabel(record BookingRecord) string {
	switch record.Status {
	case BookingStatusPending:
		return "Pending"
	case BookingStatusConfirmed:
		if !startAllowed(record) {
			return labelAwaitingPayment
		}
		return "Confirmed"
	case BookingStatusPendingExecution:
		return "Ready to start"
	case BookingStatusInProgress:
		return "In progress"
	case BookingStatusAwaitingConfirmation:
		if !cashConfirmAllowed(record) {
			return labelAwaitingConfirmation
		}
		return "Awaiting cash confirmation"
	case BookingStatusCompleted:
		return "Completed"
	}
	return "Unknown"
}

// optimisticStatus returns the status a record moves to the instant an action
// is triggered, before the server has confirmed anything.
func optimisticStatus(action BookingAction) (BookingStatus, bool) {
	switch action {
	case ActionAccept:
		return BookingStatusConfirmed, true
	case ActionStart:
		return BookingStatusInProgress, true
	case ActionComplete:
		return BookingStatusAwaitingConfirmation, true
	case ActionConfirmCashPayment:
		return BookingStatusCompleted, true
	}
	return BookingStatusUnknown, false
}

// startAllowed guards the Confirmed -> InProgress transition: a cash job can
// start immediately, an online job only once the payment has been captured.
func startAllowed(record BookingRecord) bool {
	switch record.PaymentMethod {
	case PaymentMethodCash:
		return true
	case PaymentMethodOnline:
		return record.Payment != nil &&
			(record.Payment.Status == PaymentStatusCaptured || record.Payment.Status == PaymentStatusConfirmed)
	}
	return false
}

// cashConfirmAllowed guards AwaitingConfirmation -> Completed: only a cash job
// whose client has claimed payment can be confirmed by the provider.
func cashConfirmAllowed(record BookingRecord) bool {
	if record.PaymentMethod != PaymentMethodCash {
		return false
	}
	return record.Payment != nil && record.Payment.Status == PaymentStatusClaimedPaid
}
