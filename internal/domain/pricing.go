package domain

import (
	"math"
	"strconv"
	"strings"
)

// TaxRate is the flat tax applied on top of the option total.
const TaxRate = 0.20

// ParsePrice extracts the numeric amount from a display price such as "€10",
// "$12.50" or "10 EUR". Unparseable values yield zero.
func ParsePrice(price string) float64 {
	var b strings.Builder
	for _, r := range price {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	value, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return value
}

// Totals is the computed pricing breakdown for a cart or order.
type Totals struct {
	Total      float64
	Tax        float64
	GrandTotal float64
}

// ComputeTotals derives tax and grand total from the option subtotal.
// Tax is rounded to the nearest unit to match displayed receipts.
func ComputeTotals(total float64) Totals {
	tax := math.Round(total * TaxRate)
	return Totals{
		Total:      total,
		Tax:        tax,
		GrandTotal: total + tax,
	}
}

// SelectionTotal sums price times quantity across option selections.
func SelectionTotal(selections []OptionSelection) float64 {
	var total float64
	for _, sel := range selections {
		if sel.Quantity <= 0 {
			continue
		}
		total += ParsePrice(sel.Price) * float64(sel.Quantity)
	}
	return total
}
