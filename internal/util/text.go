package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reNonKey     = regexp.MustCompile(`[^a-z0-9]+`)
	reCodeAnnot  = regexp.MustCompile(`(?i)\(\s*c[oó]d(?:igo)?\.?\s*:?\s*\d*\s*\)`)
	reLeakLabel  = regexp.MustCompile(`(?i)(?:^|\s)(?:qtde?\.?\s*total\s*de\s*[ií]tens|qtde?\.?\s*:|quant\.?\s*:|un\s*:|vl\.?\s*(?:unit|total)|valor\s+(?:total|unit))`)
	reTailUnit   = regexp.MustCompile(`(?i)\s+(?:un|und|unid|kg|gr?|lt?|ml|bd|dz|fr|pct|pc|cx)\.?\s*[\d.,]+\s*$`)
	reTailDec    = regexp.MustCompile(`\s+\d+[.,]\d+\s*$`)
	reTailMoney  = regexp.MustCompile(`(?i)\s*r\$\s*[\d.,]*\s*$`)
	reTailPunct  = regexp.MustCompile(`[\s\-–,;:.]+$`)
	displayStops = map[string]bool{
		"a": true, "e": true, "o": true, "as": true, "os": true,
		"de": true, "da": true, "do": true, "das": true, "dos": true,
		"em": true, "com": true, "para": true, "p": true, "c": true,
		"kg": true, "g": true, "gr": true, "ml": true, "l": true, "lt": true,
		"un": true, "und": true, "pct": true, "cx": true,
	}
)

// StripDiacritics removes combining marks ("ação" -> "acao").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize produces the lookup key for a product description: no diacritics,
// glued tokens split ("Coca2L" -> "coca 2 l"), lowercase ascii words separated
// by single spaces.
func Normalize(s string) string {
	s = splitGlued(StripDiacritics(s))
	s = cases.Lower(language.Und).String(s)
	s = reNonKey.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func splitGlued(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var prev rune
	for i, r := range s {
		if i > 0 {
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				b.WriteByte(' ')
			case unicode.IsLetter(prev) && unicode.IsDigit(r):
				b.WriteByte(' ')
			case unicode.IsDigit(prev) && unicode.IsLetter(r):
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// CleanDisplayName turns a raw description cell into a presentable name.
// Integer fragments such as "Tipo 1" or "5kg" are part of the name and stay.
func CleanDisplayName(raw string) string {
	s := strings.ReplaceAll(raw, "\u00A0", " ")
	s = reCodeAnnot.ReplaceAllString(s, " ")
	if loc := reLeakLabel.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	for {
		before := s
		s = reTailMoney.ReplaceAllString(s, "")
		s = reTailUnit.ReplaceAllString(s, "")
		s = reTailDec.ReplaceAllString(s, "")
		s = reTailPunct.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}
	s = reWhitespace.ReplaceAllString(s, " ")
	return titleWords(strings.TrimSpace(s))
}

func titleWords(s string) string {
	if s == "" {
		return ""
	}
	lower := cases.Lower(language.BrazilianPortuguese)
	words := strings.Fields(s)
	for i, w := range words {
		w = lower.String(w)
		if i > 0 && displayStops[w] {
			words[i] = w
			continue
		}
		r := []rune(w)
		if unicode.IsLetter(r[0]) {
			r[0] = unicode.ToUpper(r[0])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
