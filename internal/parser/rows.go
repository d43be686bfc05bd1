package parser

import (
	"math"
	"regexp"
	"strings"

	"nfce/internal"
	"nfce/internal/util"
)

var (
	reCodeMarker = regexp.MustCompile(`(?i)\(\s*c[oó]d(?:igo)?\.?\s*:?\s*(\d+)\s*\)`)
	reFooter     = regexp.MustCompile(`(?i)qtde?\.?\s*total\s*de\s*[ií]tens`)
	reNoise      = regexp.MustCompile(`(?i)valor aproximado dos tributos|cliente\s*:|seq\.?\s*cnc|forma de pagamento|valor pago r\$`)
	reBareAmount = regexp.MustCompile(`(?i)^\s*R\$\s*[\d.,]+\s*$`)
	reQtyLabel   = regexp.MustCompile(`(?i)\b(?:qtde|qtd|quant(?:idade)?)\.?(?:\s*total\s*de\s*[ií]tens)?\s*:?\s*(\d[\d.,]*)`)
	reUnitLabel  = regexp.MustCompile(`(?i)\bUN(?:\s*:\s*|\s+)([A-Za-z]{1,5})\b`)
	reTotalLabel = regexp.MustCompile(`(?i)\b(?:valor|vl\.?)\s*total\s*(?:R\$)?\s*:?\s*(?:R\$)?\s*(\d[\d.]*(?:,\d+)?)`)
	reMoney      = regexp.MustCompile(`(?i)R\$\s*(\d[\d.]*(?:,\d{1,2})?)`)
	reDecimal    = regexp.MustCompile(`\b\d{1,3}(?:\.\d{3})*,\d{2}\b`)
	reDescAmount = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|g|l|ml)\b`)
	reAmountUnit = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(kg|g|l|ml|un|und|unid|bd|dz)\b`)
	reWeightFrac = regexp.MustCompile(`\b0\.\d{1,3}\b`)
)

// lineFields is what a strategy recovered for one product line before the
// amounts are normalized.
type lineFields struct {
	desc   string
	qtyRaw string
	unit   *internal.Unit
	total  float64

	// qtyContext is the whole quantity cell, used by the weight misparse check.
	qtyContext string
}

func isFooterRow(text string) bool {
	return reFooter.MatchString(text) && !reCodeMarker.MatchString(text)
}

func isNoiseRow(r Row) bool {
	text := r.Text()
	if reNoise.MatchString(text) {
		return true
	}
	return len(r.Cells) <= 2 && reBareAmount.MatchString(strings.Join(r.Cells, " "))
}

func qtyFromLabel(tail string) string {
	if m := reQtyLabel.FindStringSubmatch(tail); m != nil {
		return m[1]
	}
	return ""
}

func unitFromLabel(tail string) *internal.Unit {
	for _, m := range reUnitLabel.FindAllStringSubmatch(tail, -1) {
		if u, ok := util.MapUnitToken(m[1]); ok {
			return &u
		}
	}
	return nil
}

func totalFromLabel(tail string) float64 {
	if m := reTotalLabel.FindStringSubmatch(tail); m != nil {
		return util.ParseLocaleNumber(m[1])
	}
	return 0
}

func lastMoney(tail string) float64 {
	if all := reMoney.FindAllStringSubmatch(tail, -1); len(all) > 0 {
		return util.ParseLocaleNumber(all[len(all)-1][1])
	}
	if all := reDecimal.FindAllString(tail, -1); len(all) > 0 {
		return util.ParseLocaleNumber(all[len(all)-1])
	}
	return 0
}

// descriptionAmount finds "5kg"-style amounts inside the product name that
// agree with the unit printed on the line.
func descriptionAmount(desc string, unit internal.Unit) float64 {
	found := 0.0
	for _, m := range reDescAmount.FindAllStringSubmatch(desc, -1) {
		if u, ok := util.MapUnitToken(m[2]); ok && u == unit {
			found = util.ParseLooseQuantity(m[1])
		}
	}
	return found
}

// buildItem turns recovered fields into a normalized item. Lines without a
// name or a positive total are rejected.
func buildItem(f lineFields, weightFix bool) (internal.ReceiptItem, bool) {
	name := util.CleanDisplayName(f.desc)
	if name == "" || f.total <= 0 {
		return internal.ReceiptItem{}, false
	}

	qty := 1.0
	if f.qtyRaw != "" {
		qty = util.ParseLooseQuantity(f.qtyRaw)
	}
	if f.unit != nil && f.unit.IsWeight() {
		if f.qtyRaw == "" {
			if amount := descriptionAmount(f.desc, *f.unit); amount > 0 {
				qty = amount
			}
		}
		if weightFix && qty > 10 && reWeightFrac.MatchString(f.qtyContext) {
			qty = math.Round(qty) / 1000
		}
	}

	amounts := util.NormalizeLine(qty, f.unit, f.total)
	total := amounts.LineTotal
	return internal.ReceiptItem{
		Name:      name,
		Quantity:  amounts.Quantity,
		Unit:      amounts.Unit,
		Weight:    amounts.Weight,
		UnitPrice: amounts.UnitPrice,
		LineTotal: &total,
	}, true
}

func splitAtMarker(text string) (desc, tail string, ok bool) {
	loc := reCodeMarker.FindStringIndex(text)
	if loc == nil {
		return "", "", false
	}
	return text[:loc[0]], text[loc[1]:], true
}
