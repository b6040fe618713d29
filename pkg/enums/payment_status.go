package enums

import "fmt"

// PaymentStatus mirrors the status values the payment processor reports in
// webhook notifications.
type PaymentStatus string

const (
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusExpired       PaymentStatus = "expired"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusWaiting,
	PaymentStatusConfirming,
	PaymentStatusConfirmed,
	PaymentStatusSending,
	PaymentStatusPartiallyPaid,
	PaymentStatusFinished,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusExpired,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IndicatesFunds reports whether the status can carry received value.
func (p PaymentStatus) IndicatesFunds() bool {
	switch p {
	case PaymentStatusFinished, PaymentStatusConfirmed, PaymentStatusPartiallyPaid:
		return true
	default:
		return false
	}
}

// IsTerminalFailure reports whether the status ends the intent without funds.
func (p PaymentStatus) IsTerminalFailure() bool {
	switch p {
	case PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
