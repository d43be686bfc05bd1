package parser

import (
	"regexp"
	"strings"

	"nfce/internal"
	"nfce/internal/util"
)

const textWindow = 400

var reLinePrefix = regexp.MustCompile(`^[\s|*#>\-]+`)

// TextStrategy works on the flattened text when no usable table exists. Each
// code marker opens a window that runs to the next product's description
// (or a fixed number of bytes), and the line total is read from that window.
// A description never reaches back past the previous product's total, so
// several products printed on one line stay apart.
type TextStrategy struct{}

func (s *TextStrategy) Name() string { return StrategyText }

func (s *TextStrategy) Parse(doc *Document) *internal.ReceiptParseResult {
	text := doc.Text
	if cut := footerIndex(text); cut >= 0 {
		text = text[:cut]
	}

	markers := reCodeMarker.FindAllStringIndex(text, -1)
	items := []internal.ReceiptItem{}
	floor := 0
	for i, loc := range markers {
		descStart, descEnd := descriptionSpan(text, loc[0], floor)

		limit := len(text)
		if i+1 < len(markers) {
			limit = markers[i+1][0]
		}
		if limit > loc[1]+textWindow {
			limit = loc[1] + textWindow
		}
		total, consumed := totalIn(text[loc[1]:limit])
		floor = loc[1] + consumed

		end := limit
		if i+1 < len(markers) {
			if next, _ := descriptionSpan(text, markers[i+1][0], floor); next < end {
				end = next
			}
		}
		window := text[loc[1]:end]

		fields := lineFields{
			desc:   cleanLinePrefix(text[descStart:descEnd]),
			qtyRaw: qtyFromLabel(window),
			unit:   unitFromLabel(window),
			total:  total,
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

// totalIn reads the line total from the text after a marker and reports how
// many bytes of it belong to the current product.
func totalIn(region string) (float64, int) {
	if m := reTotalLabel.FindStringSubmatchIndex(region); m != nil {
		return util.ParseLocaleNumber(region[m[2]:m[3]]), m[1]
	}
	if m := reMoney.FindStringSubmatchIndex(region); m != nil {
		return util.ParseLocaleNumber(region[m[2]:m[3]]), m[1]
	}
	return 0, 0
}

func lineStart(text string, idx int) int {
	return strings.LastIndexByte(text[:idx], '\n') + 1
}

// descriptionSpan locates the product name for the marker at idx: the text
// before it on its line, or the previous line when the marker opens the line.
// Nothing before floor is taken.
func descriptionSpan(text string, idx, floor int) (int, int) {
	start := max(lineStart(text, idx), floor)
	if cleanLinePrefix(text[start:idx]) != "" || start == 0 || start == floor {
		return start, idx
	}
	prevEnd := start - 1
	return max(lineStart(text, prevEnd), floor), prevEnd
}

func cleanLinePrefix(s string) string {
	if i := strings.LastIndex(s, "|"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(reLinePrefix.ReplaceAllString(s, ""))
}
