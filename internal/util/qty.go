package util

import (
	"math"
	"strings"

	"nfce/internal"
)

// MapUnitToken resolves a unit abbreviation printed on a receipt. Unknown
// tokens report false; callers treat that as "unit unknown".
func MapUnitToken(raw string) (internal.Unit, bool) {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimRight(u, ".:")
	switch {
	case u == "":
		return "", false
	case u == "u" || u == "fr" || strings.HasPrefix(u, "un") || u == "und":
		return internal.UnitCount, true
	case u == "kg":
		return internal.UnitKilogram, true
	case u == "g":
		return internal.UnitGram, true
	case u == "l":
		return internal.UnitLiter, true
	case u == "ml":
		return internal.UnitMilliliter, true
	case strings.HasPrefix(u, "bd"):
		return internal.UnitBundle, true
	case strings.HasPrefix(u, "dz"):
		return internal.UnitDozen, true
	}
	return "", false
}

// LineAmounts is the normalized quantity/price view of one receipt line.
type LineAmounts struct {
	Quantity  float64
	Unit      *internal.Unit
	Weight    *float64
	UnitPrice float64
	LineTotal float64
}

// NormalizeLine applies the weight/count collapsing rules. Weight and volume
// lines keep the amount in Weight, a quantity of 1 and the line total as
// price. Count lines get an integer quantity with x1000 separator artifacts
// removed. A weight unit without a positive amount is dropped to unknown.
func NormalizeLine(qty float64, unit *internal.Unit, total float64) LineAmounts {
	total = Round2(math.Max(total, 0))
	out := LineAmounts{LineTotal: total}

	if unit != nil && unit.IsWeight() && qty > 0 {
		u := *unit
		w := qty
		out.Unit = &u
		out.Weight = &w
		out.Quantity = 1
		out.UnitPrice = total
		return out
	}

	if unit != nil && unit.IsCount() {
		u := *unit
		out.Unit = &u
	}

	q := math.Round(qty)
	for q >= 1000 && math.Mod(q, 1000) == 0 {
		q /= 1000
	}
	if q < 1 {
		q = 1
	}
	out.Quantity = q
	out.UnitPrice = Round2(total / q)
	return out
}

// DisplayUnitPrice is the price shown next to an item: the line total for
// weight/volume goods, total/quantity for counted goods.
func DisplayUnitPrice(item internal.ReceiptItem) float64 {
	isWeight := item.Unit != nil && item.Unit.IsWeight()
	if isWeight {
		if item.LineTotal != nil {
			return *item.LineTotal
		}
		return item.UnitPrice
	}
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	total := item.UnitPrice * qty
	if item.LineTotal != nil {
		total = *item.LineTotal
	}
	return Round2(total / qty)
}

// PurchaseTotal sums line totals, falling back to unitPrice*quantity for
// counted lines that have no separate total.
func PurchaseTotal(items []internal.ReceiptItem) float64 {
	sum := 0.0
	for _, it := range items {
		if it.LineTotal != nil {
			sum += *it.LineTotal
			continue
		}
		if it.Unit != nil && it.Unit.IsWeight() {
			sum += it.UnitPrice
			continue
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		sum += it.UnitPrice * qty
	}
	return Round2(sum)
}
