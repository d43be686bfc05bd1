package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNumberRun  = regexp.MustCompile(`-?\d[\d.,]*`)
)

// ParseLocaleNumber reads a pt-BR formatted amount ("1.234,56") and rounds it
// to cents. Anything without digits yields 0.
func ParseLocaleNumber(s string) float64 {
	compact := reWhitespace.ReplaceAllString(strings.ReplaceAll(s, "\u00A0", " "), "")
	run := reNumberRun.FindString(compact)
	if run == "" {
		return 0
	}
	run = strings.ReplaceAll(run, ".", "")
	run = strings.Replace(run, ",", ".", 1)
	run = strings.TrimRight(run, ".,")
	v, err := strconv.ParseFloat(run, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return Round2(v)
}

// ParseLooseQuantity reads quantities as portals print them: a comma means
// pt-BR decimals, otherwise the value is a plain float ("0.455", "3").
func ParseLooseQuantity(s string) float64 {
	compact := reWhitespace.ReplaceAllString(strings.ReplaceAll(s, "\u00A0", " "), "")
	if strings.Contains(compact, ",") {
		return ParseLocaleNumber(compact)
	}
	v, err := strconv.ParseFloat(compact, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
