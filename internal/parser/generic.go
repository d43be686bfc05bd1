package parser

import (
	"strings"

	"nfce/internal"
	"nfce/internal/util"
)

// GenericStrategy accepts any row layout: the code marker may sit in any
// cell and quantity, unit and price are matched against the whole row text.
type GenericStrategy struct{}

func (s *GenericStrategy) Name() string { return StrategyGeneric }

func (s *GenericStrategy) Parse(doc *Document) *internal.ReceiptParseResult {
	items := []internal.ReceiptItem{}
	for _, row := range doc.ItemRows() {
		text := row.Text()
		if isFooterRow(text) {
			break
		}
		if isNoiseRow(row) {
			continue
		}
		desc, tail, ok := splitAtMarker(text)
		if !ok {
			continue
		}
		if i := strings.LastIndex(desc, "|"); i >= 0 {
			desc = desc[i+1:]
		}
		tail = strings.ReplaceAll(tail, "|", " ")
		if !reMoney.MatchString(tail) && !reDecimal.MatchString(tail) {
			continue
		}

		fields := lineFields{desc: desc, qtyRaw: qtyFromLabel(tail), unit: unitFromLabel(tail)}
		if m := reAmountUnit.FindStringSubmatch(tail); m != nil {
			if u, ok := util.MapUnitToken(m[2]); ok {
				if fields.qtyRaw == "" {
					fields.qtyRaw = m[1]
				}
				if fields.unit == nil {
					fields.unit = &u
				}
			}
		}
		fields.total = totalFromLabel(tail)
		if fields.total <= 0 {
			fields.total = lastMoney(tail)
		}
		if item, ok := buildItem(fields, false); ok {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		return nil
	}
	return &internal.ReceiptParseResult{SuggestedName: internal.DefaultSuggestedName, Items: items}
}
