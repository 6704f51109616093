package domain

import "github.com/shopspring/decimal"

// DerivePaymentStatus classifies a sale by comparing what was paid against
// the computed total.
func DerivePaymentStatus(total, paid decimal.Decimal) string {
	switch paid.Cmp(total) {
	case 1:
		return PaymentStatusOverpaid
	case -1:
		return PaymentStatusUnderpaid
	default:
		return PaymentStatusPaid
	}
}

// ApplyPaymentDelta nets a sale's payment delta into a customer's balances.
// A surplus first cancels any existing underpaid amount, the remainder adds
// to overpaid; a deficit first cancels any existing overpaid amount, the
// remainder adds to underpaid. Both balances stay >= 0 and at most one is
// non-zero afterwards when they started reconciled.
func ApplyPaymentDelta(overpaid, underpaid, paid, total decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	delta := paid.Sub(total)
	switch {
	case delta.IsPositive():
		cancel := decimal.Min(delta, underpaid)
		underpaid = underpaid.Sub(cancel)
		overpaid = overpaid.Add(delta.Sub(cancel))
	case delta.IsNegative():
		deficit := delta.Neg()
		cancel := decimal.Min(deficit, overpaid)
		overpaid = overpaid.Sub(cancel)
		underpaid = underpaid.Add(deficit.Sub(cancel))
	}
	return clampZero(overpaid), clampZero(underpaid)
}

// ReversePaymentDelta undoes ApplyPaymentDelta for the same sale: the
// recorded surplus is taken back out of overpaid first with any shortfall
// spilling into underpaid, and symmetrically for a deficit. The arithmetic
// is exact only when no other sale touched the customer in between; that
// assumption is inherited from the forward flow, not enforced here.
func ReversePaymentDelta(overpaid, underpaid, paid, total decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	delta := paid.Sub(total)
	switch {
	case delta.IsPositive():
		overpaid = overpaid.Sub(delta)
		if overpaid.IsNegative() {
			underpaid = underpaid.Add(overpaid.Neg())
			overpaid = decimal.Zero
		}
	case delta.IsNegative():
		deficit := delta.Neg()
		underpaid = underpaid.Sub(deficit)
		if underpaid.IsNegative() {
			overpaid = overpaid.Add(underpaid.Neg())
			underpaid = decimal.Zero
		}
	}
	return clampZero(overpaid), clampZero(underpaid)
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
