package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseTenderTypeCoversEveryName(t *testing.T) {
	for _, tt := range TenderTypes() {
		parsed, err := ParseTenderType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, parsed)
	}

	_, err := ParseTenderType(SplitTenderName)
	assert.Error(t, err, "multiplo is a tender variant, not a type")
	_, err = ParseTenderType("cheque")
	assert.Error(t, err)
}

func TestPercentDiscountResolvesProportionally(t *testing.T) {
	subtotal := dec("80.00")
	for p := int64(1); p <= 100; p++ {
		applied, err := PercentDiscount(decimal.NewFromInt(p), "").Resolve(subtotal)
		require.NoError(t, err)
		expected := subtotal.Mul(decimal.NewFromInt(p)).Div(decimal.NewFromInt(100))
		assert.Truef(t, expected.Equal(applied.Amount), "p=%d got %s", p, applied.Amount)
		require.NotNil(t, applied.Percent)
	}
}

func TestDiscountRejectsOutOfRangeAndZero(t *testing.T) {
	subtotal := dec("25.00")
	cases := map[string]Discount{
		"negative percent": PercentDiscount(dec("-1"), ""),
		"percent over 100": PercentDiscount(dec("100.01"), ""),
		"zero percent":     PercentDiscount(decimal.Zero, ""),
		"negative amount":  AmountDiscount(dec("-0.01"), ""),
		"amount over sub":  AmountDiscount(dec("25.01"), ""),
		"zero amount":      AmountDiscount(decimal.Zero, ""),
	}
	for name, d := range cases {
		_, err := d.Resolve(subtotal)
		assert.Truef(t, IsValidation(err), "%s: expected validation error, got %v", name, err)
	}

	applied, err := NoDiscount().Resolve(subtotal)
	require.NoError(t, err)
	assert.True(t, applied.Amount.IsZero())

	applied, err = AmountDiscount(dec("25.00"), " cortesia ").Resolve(subtotal)
	require.NoError(t, err)
	assert.True(t, applied.Amount.Equal(dec("25.00")))
	assert.Equal(t, "cortesia", applied.Reason)
}

func TestTenderPartsAndJSON(t *testing.T) {
	split := SplitTender([]PaymentSplit{
		{Type: TenderCash, Amount: dec("10.00")},
		{Type: TenderPix, Amount: dec("12.50")},
	})
	assert.Equal(t, "multiplo", split.Name())
	assert.True(t, split.Amount.Equal(dec("22.50")))
	assert.Len(t, split.Parts(), 2)

	raw, err := json.Marshal(split)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"multiplo"`)
	assert.Contains(t, string(raw), `"type":"pix"`)

	var decoded Tender
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.IsSplit())
	assert.Equal(t, TenderPix, decoded.Splits[1].Type)

	single := SingleTender(TenderCreditCard, dec("40.00"))
	parts := single.Parts()
	require.Len(t, parts, 1)
	assert.Equal(t, TenderCreditCard, parts[0].Type)
}

func TestTenderTotalsJSONUsesTenderNames(t *testing.T) {
	var totals TenderTotals
	totals.Add(TenderCash, dec("45.50"))
	totals.Add(TenderPix, dec("30.00"))

	raw, err := json.Marshal(totals)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, len(TenderTypes()))
	assert.Equal(t, "45.5", decoded["dinheiro"])
	assert.Equal(t, "0", decoded["vale"])
	assert.True(t, totals.Total().Equal(dec("75.50")))
}
