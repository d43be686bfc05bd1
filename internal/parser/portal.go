package parser

import (
	"strings"

	"nfce/internal"
)

// PortalStrategy reads the SEFAZ consultation layout: one table row per
// product, the first cell carrying the name and the "(Código: N)" marker,
// label cells for quantity, unit and line total.
type PortalStrategy struct {
	WeightMisparseFix bool
}

func (s *PortalStrategy) Name() string { return StrategyPortal }

func (s *PortalStrategy) Parse(doc *Document) *internal.ReceiptParseResult {
	if doc.HTML == nil {
		return nil
	}

	items := []internal.ReceiptItem{}
	for _, row := range doc.ItemRows() {
		if row.Header || len(row.Cells) == 0 {
			continue
		}
		if isFooterRow(row.Text()) {
			break
		}
		if isNoiseRow(row) {
			continue
		}
		desc, firstTail, ok := splitAtMarker(row.Cells[0])
		if !ok {
			continue
		}

		cells := append([]string{firstTail}, row.Cells[1:]...)
		tail := strings.Join(cells, " ")
		fields := lineFields{
			desc:       desc,
			qtyRaw:     qtyFromLabel(tail),
			unit:       unitFromLabel(tail),
			total:      totalFromLabel(tail),
			qtyContext: quantityCell(cells),
		}
		if fields.total <= 0 {
			fields.total = lastMoney(tail)
		}
		if item, ok := buildItem(fields, s.WeightMisparseFix); ok {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		return nil
	}
	return &internal.ReceiptParseResult{SuggestedName: internal.DefaultSuggestedName, Items: items}
}

func quantityCell(cells []string) string {
	for _, c := range cells {
		if reQtyLabel.MatchString(c) {
			return c
		}
	}
	return ""
}
