// Package pricing computes order totals. It is pure: the same line
// items and discount always produce the same quote.
package pricing

// Business constants, adjustable without touching the calculation.
const (
	TaxRate               = 0.10
	FreeShippingThreshold = 100.0
	FlatShippingCost      = 10.0
)

type LineItem struct {
	UnitPrice float64
	Quantity  int
}

type Quote struct {
	Subtotal     float64
	Tax          float64
	ShippingCost float64
	Discount     float64
	Total        float64
}

// Calculate prices an ordered set of line items plus an optional coupon
// discount. Shipping is free above the threshold, otherwise flat rate.
// The total is clamped at zero so an oversized coupon cannot produce a
// negative charge.
func Calculate(items []LineItem, couponDiscount float64) Quote {
	var subtotal float64
	for _, it := range items {
		subtotal += it.UnitPrice * float64(it.Quantity)
	}

	tax := subtotal * TaxRate

	shipping := FlatShippingCost
	if subtotal > FreeShippingThreshold {
		shipping = 0
	}

	total := subtotal + tax + shipping - couponDiscount
	if total < 0 {
		total = 0
	}

	return Quote{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Discount:     couponDiscount,
		Total:        total,
	}
}
