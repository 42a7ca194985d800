package enums

// PaymentStatus mirrors the order status for the one-to-one payment row.
type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}
