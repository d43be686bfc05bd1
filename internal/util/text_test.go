package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "Pão de Açúcar", want: "pao de acucar"},
		{input: "Coca2L", want: "coca 2 l"},
		{input: "CocaCola 350ml", want: "coca cola 350 ml"},
		{input: "  BISC. AYMORE   AMAN!! ", want: "bisc aymore aman"},
		{input: "", want: ""},
		{input: "☃☃☃", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got := Normalize(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Normalize(got))
		})
	}
}

func TestNormalizeSplitsGluedTokens(t *testing.T) {
	assert.Equal(t, "bisc aymore aman", Normalize("Bisc Aymoré Aman"))
	assert.Equal(t, "leite integral 1 l", Normalize("Leite Integral 1L"))
}

func TestCleanDisplayName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "keeps integer fragments", input: "ARROZ TIPO 1 5KG (Código: 1234)", want: "Arroz Tipo 1 5kg"},
		{name: "lowercases glued volume", input: "REFRIGERANTE COCA COLA 2L", want: "Refrigerante Coca Cola 2l"},
		{name: "cuts leaked labels", input: "LEITE INTEGRAL Qtde.: 2 UN: UN Vl. Total 9,98", want: "Leite Integral"},
		{name: "strips unit and amount tail", input: "BANANA PRATA KG 0,455", want: "Banana Prata"},
		{name: "stop words stay lower", input: "doce de leite com coco", want: "Doce de Leite com Coco"},
		{name: "keeps diacritics", input: "pão francês", want: "Pão Francês"},
		{name: "footer leak", input: "CAFE PILAO Qtde total de itens: 3", want: "Cafe Pilao"},
		{name: "empty", input: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanDisplayName(tc.input))
		})
	}
}
