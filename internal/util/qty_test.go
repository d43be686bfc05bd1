package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal"
)

func TestParseLocaleNumber(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "thousands and decimals", input: "1.234,50", want: 1234.50},
		{name: "plain decimal comma", input: "25,00", want: 25},
		{name: "spaces inside", input: " 1 234,56 ", want: 1234.56},
		{name: "currency prefix", input: "R$ 16,00", want: 16},
		{name: "rounds to cents", input: "3,456", want: 3.46},
		{name: "no digits", input: "abc", want: 0},
		{name: "empty", input: "", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ParseLocaleNumber(tc.input), 1e-9)
		})
	}
}

func TestParseLooseQuantity(t *testing.T) {
	assert.InDelta(t, 2.0, ParseLooseQuantity("2,000"), 1e-9)
	assert.InDelta(t, 0.455, ParseLooseQuantity("0.455"), 1e-9)
	assert.InDelta(t, 3.0, ParseLooseQuantity(" 3 "), 1e-9)
	assert.Zero(t, ParseLooseQuantity("x"))
}

func TestMapUnitToken(t *testing.T) {
	cases := map[string]internal.Unit{
		"UN": internal.UnitCount, "und": internal.UnitCount, "Unid": internal.UnitCount,
		"u": internal.UnitCount, "FR": internal.UnitCount, "KG": internal.UnitKilogram,
		"g": internal.UnitGram, "L": internal.UnitLiter, "ml": internal.UnitMilliliter,
		"bd": internal.UnitBundle, "DZ": internal.UnitDozen, "kg.": internal.UnitKilogram,
	}
	for raw, want := range cases {
		got, ok := MapUnitToken(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "pct", "caixa", "xyz"} {
		_, ok := MapUnitToken(raw)
		assert.False(t, ok, raw)
	}
}

func TestNormalizeLineWeight(t *testing.T) {
	for _, u := range []internal.Unit{internal.UnitKilogram, internal.UnitGram, internal.UnitLiter, internal.UnitMilliliter} {
		unit := u
		got := NormalizeLine(0.455, &unit, 12.34)
		require.NotNil(t, got.Unit)
		require.NotNil(t, got.Weight)
		assert.Equal(t, 1.0, got.Quantity)
		assert.InDelta(t, 0.455, *got.Weight, 1e-9)
		assert.Equal(t, got.LineTotal, got.UnitPrice)
	}
}

func TestNormalizeLineWeightWithoutAmount(t *testing.T) {
	unit := internal.UnitKilogram
	got := NormalizeLine(0, &unit, 10)
	assert.Nil(t, got.Unit)
	assert.Nil(t, got.Weight)
	assert.Equal(t, 1.0, got.Quantity)
	assert.Equal(t, 10.0, got.UnitPrice)
}

func TestNormalizeLineCount(t *testing.T) {
	cases := []struct {
		name    string
		qty     float64
		total   float64
		wantQty float64
		wantPx  float64
	}{
		{name: "plain", qty: 2, total: 16, wantQty: 2, wantPx: 8},
		{name: "rounded", qty: 2.6, total: 9, wantQty: 3, wantPx: 3},
		{name: "thousand artifact", qty: 3000, total: 9, wantQty: 3, wantPx: 3},
		{name: "double artifact", qty: 2000000, total: 10, wantQty: 2, wantPx: 5},
		{name: "real thousand kept when not divisible", qty: 1500, total: 1500, wantQty: 1500, wantPx: 1},
		{name: "zero clamps to one", qty: 0, total: 4.5, wantQty: 1, wantPx: 4.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unit := internal.UnitCount
			got := NormalizeLine(tc.qty, &unit, tc.total)
			require.NotNil(t, got.Unit)
			assert.Equal(t, internal.UnitCount, *got.Unit)
			assert.Equal(t, tc.wantQty, got.Quantity)
			assert.InDelta(t, tc.wantPx, got.UnitPrice, 1e-9)
			assert.Nil(t, got.Weight)
		})
	}
}

func TestNormalizeLineUnknownUnit(t *testing.T) {
	got := NormalizeLine(2, nil, 16)
	assert.Nil(t, got.Unit)
	assert.Equal(t, 2.0, got.Quantity)
	assert.Equal(t, 8.0, got.UnitPrice)
}

func TestDisplayUnitPriceAndTotal(t *testing.T) {
	kg := internal.UnitKilogram
	un := internal.UnitCount
	items := []internal.ReceiptItem{
		{Name: "Banana", Quantity: 1, Unit: &kg, Weight: FloatPtr(1.2), UnitPrice: 7.2, LineTotal: FloatPtr(7.2)},
		{Name: "Leite", Quantity: 3, Unit: &un, UnitPrice: 4.5, LineTotal: FloatPtr(13.5)},
		{Name: "Pao", Quantity: 2, UnitPrice: 1.25},
	}
	assert.Equal(t, 7.2, DisplayUnitPrice(items[0]))
	assert.Equal(t, 4.5, DisplayUnitPrice(items[1]))
	assert.Equal(t, 1.25, DisplayUnitPrice(items[2]))
	assert.InDelta(t, 23.2, PurchaseTotal(items), 1e-9)
}
