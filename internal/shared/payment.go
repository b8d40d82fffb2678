package shared

// PaymentMethod enumerates how money changed hands.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentCheque      PaymentMethod = "CHEQUE"
	PaymentTransfer    PaymentMethod = "TRANSFER"
	PaymentMobileMoney PaymentMethod = "MOBILE_MONEY"
)

// Valid reports whether m is a known method. The empty method is not valid.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCheque, PaymentTransfer, PaymentMobileMoney:
		return true
	}
	return false
}
