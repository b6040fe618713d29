package enums

import "testing"

func TestParsePaymentStatus(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"waiting", "partially_paid", "finished", "expired"} {
		status, err := ParsePaymentStatus(raw)
		if err != nil {
			t.Fatalf("ParsePaymentStatus(%q): %v", raw, err)
		}
		if status.String() != raw {
			t.Fatalf("ParsePaymentStatus(%q) = %s", raw, status)
		}
	}

	if _, err := ParsePaymentStatus("Finished"); err == nil {
		t.Fatal("status values are case sensitive")
	}
	if _, err := ParsePaymentStatus(""); err == nil {
		t.Fatal("empty status must not parse")
	}
}

func TestIndicatesFunds(t *testing.T) {
	t.Parallel()

	funded := map[PaymentStatus]bool{
		PaymentStatusFinished:      true,
		PaymentStatusConfirmed:     true,
		PaymentStatusPartiallyPaid: true,
	}
	for _, status := range validPaymentStatuses {
		if got := status.IndicatesFunds(); got != funded[status] {
			t.Fatalf("%s.IndicatesFunds() = %v", status, got)
		}
	}
}

func TestIsTerminalFailure(t *testing.T) {
	t.Parallel()

	terminal := map[PaymentStatus]bool{
		PaymentStatusFailed:   true,
		PaymentStatusRefunded: true,
		PaymentStatusExpired:  true,
	}
	for _, status := range validPaymentStatuses {
		if got := status.IsTerminalFailure(); got != terminal[status] {
			t.Fatalf("%s.IsTerminalFailure() = %v", status, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	for _, status := range validPaymentStatuses {
		if !status.IsValid() {
			t.Fatalf("%s reported invalid", status)
		}
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatal("unknown status reported valid")
	}
}
