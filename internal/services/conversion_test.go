package services

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConversionFactor(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"integer string", "12", "12"},
		{"decimal point", "12.5", "12.5"},
		{"decimal comma", "12,5", "12.5"},
		{"padded", "  6 ", "6"},
		{"float", 2.5, "2.5"},
		{"int", 24, "24"},
		{"json number", json.Number("3"), "3"},
		{"decimal value", decimal.NewFromInt(8), "8"},
		{"empty", "", "1"},
		{"garbage", "caixa", "1"},
		{"zero", "0", "1"},
		{"negative", -3, "1"},
		{"nil", nil, "1"},
		{"nil decimal pointer", (*decimal.Decimal)(nil), "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, ParseConversionFactor(tt.raw))
		})
	}
}

func TestApplyConversion_FactorOneIsIdentity(t *testing.T) {
	inv := invoice("A", "1", "X", line(1, "001", "P", "3", "100"))
	item := NewAllocationEngine("").Allocate(inv).Items[0]

	converted := ApplyConversion(item, 1)
	assert.True(t, converted.ConvertedUnitCost.Equal(converted.FinalUnitCost))

	again := ApplyConversion(converted, 1)
	assert.Equal(t, converted, again)
}

func TestApplyConversion_Repeatable(t *testing.T) {
	inv := invoice("A", "1", "X", line(1, "001", "P", "10", "1200"))
	item := NewAllocationEngine("").Allocate(inv).Items[0]

	byTwelve := ApplyConversion(item, "12")
	assertDecimal(t, "10", byTwelve.ConvertedUnitCost)

	bySix := ApplyConversion(byTwelve, "6")
	assertDecimal(t, "20", bySix.ConvertedUnitCost)
	assertDecimal(t, "120", bySix.FinalUnitCost)
	assert.True(t, item.FinalTotalCost.Equal(bySix.FinalTotalCost))

	reset := ApplyConversion(bySix, "abc")
	assertDecimal(t, "1", reset.ConversionFactor)
	assertDecimal(t, "120", reset.ConvertedUnitCost)
}

func TestConvertInvoiceLine(t *testing.T) {
	inv := NewAllocationEngine("").Allocate(invoice("A", "1", "X",
		line(1, "001", "P1", "10", "100"),
		line(2, "002", "P2", "2", "50"),
	))

	out, err := ConvertInvoiceLine(inv, 2, "5")
	require.NoError(t, err)

	assertDecimal(t, "5", out.Items[1].ConvertedUnitCost)
	assertDecimal(t, "1", inv.Items[1].ConversionFactor)
	assert.True(t, out.Totals.FinalTotalCost.Equal(inv.Totals.FinalTotalCost))

	_, err = ConvertInvoiceLine(inv, 9, "5")
	assert.Error(t, err)
}
