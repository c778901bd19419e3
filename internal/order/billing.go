package order

import (
	"storefront-be/internal/product"

	"github.com/shopspring/decimal"
)

var (
	rate5   = decimal.NewFromInt(5)
	rate18  = decimal.NewFromInt(18)
	hundred = decimal.NewFromInt(100)
)

type BillingConfig struct {
	ShippingFlatRate      decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ShippingFlatRate:      decimal.RequireFromString("50.00"),
		FreeShippingThreshold: decimal.RequireFromString("999.00"),
	}
}

// GSTRate returns the percentage for a GST class; unknown classes are exempt.
func GSTRate(category string) decimal.Decimal {
	switch category {
	case product.GSTCategory5:
		return rate5
	case product.GSTCategory18:
		return rate18
	default:
		return decimal.Zero
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeBilling fills the per-item amounts of items from BasePrice,
// GSTCategory and Quantity, and returns the order totals.
//
// Per item the GST is rounded once per unit, so item totals always add up to
// the order total exactly.
func ComputeBilling(items []Item, cfg BillingConfig) Billing {
	var b Billing
	b.Subtotal = decimal.Zero
	b.GST5Total = decimal.Zero
	b.GST18Total = decimal.Zero

	for i := range items {
		it := &items[i]
		qty := decimal.NewFromInt(int64(it.Quantity))

		it.GSTRate = GSTRate(it.GSTCategory)
		it.GSTAmount = round2(it.BasePrice.Mul(it.GSTRate).Div(hundred))
		it.UnitPriceWithGST = it.BasePrice.Add(it.GSTAmount)
		it.ItemSubtotal = round2(it.BasePrice.Mul(qty))
		it.ItemGSTTotal = it.GSTAmount.Mul(qty)
		it.ItemTotal = it.ItemSubtotal.Add(it.ItemGSTTotal)

		b.Subtotal = b.Subtotal.Add(it.ItemSubtotal)
		switch {
		case it.GSTRate.Equal(rate5):
			b.GST5Total = b.GST5Total.Add(it.ItemGSTTotal)
		case it.GSTRate.Equal(rate18):
			b.GST18Total = b.GST18Total.Add(it.ItemGSTTotal)
		}
	}

	b.TotalGST = b.GST5Total.Add(b.GST18Total)

	b.ShippingCost = cfg.ShippingFlatRate
	if b.Subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		b.ShippingCost = decimal.Zero
	}

	b.OrderTotal = b.Subtotal.Add(b.TotalGST).Add(b.ShippingCost)
	b.GrandTotal = b.OrderTotal
	return b
}
