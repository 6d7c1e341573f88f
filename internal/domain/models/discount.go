package models

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// Discount is a code applied at checkout. Value is a percentage for
// percent discounts and an absolute amount for fixed ones.
type Discount struct {
	ID     int64
	Code   string
	Kind   string
	Value  int64
	Active bool
}

// AmountFor computes the discount applied to the given subtotal. The
// result is capped at the subtotal so totals never go negative.
func (d *Discount) AmountFor(subtotal int64) int64 {
	var amount int64
	switch d.Kind {
	case DiscountPercent:
		amount = subtotal * d.Value / 100
	case DiscountFixed:
		amount = d.Value
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
