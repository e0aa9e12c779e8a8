package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateIntrastateSplitsCGSTAndSGST(t *testing.T) {
	order := storage.Order{
		CustomerID: "Kusum Traders",
		Items: []storage.OrderItem{
			{ProductName: "Rice", Quantity: 2, Unit: "kg", PricePerUnitPs: 5000},
			{ProductName: "Dal", Quantity: 1, Unit: "kg", PricePerUnitPs: 12000},
		},
	}
	e := &Engine{now: fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))}

	inv, err := e.Generate(order, Options{
		BusinessName:    "Sharma Kirana",
		GSTNumber:       "27AAAAA0000A1Z5",
		InvoiceSequence: 7,
		TaxRatePercent:  18,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(22000), inv.SubtotalPs)
	assert.Equal(t, int64(1980), inv.CGSTPs)
	assert.Equal(t, int64(1980), inv.SGSTPs)
	assert.Nil(t, inv.IGSTPs)
	assert.Equal(t, int64(22000+1980+1980), inv.TotalPs)
	assert.Equal(t, "INV-2026-007", inv.Number)
	assert.Equal(t, "01/03/2026", inv.DateFormatted)
}

func TestGenerateInterstateUsesIGST(t *testing.T) {
	order := storage.Order{
		Items: []storage.OrderItem{
			{ProductName: "Oil", Quantity: 1, Unit: "l", PricePerUnitPs: 10000},
		},
	}
	e := &Engine{now: fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))}

	inv, err := e.Generate(order, Options{InvoiceSequence: 1, TaxRatePercent: 18, IsInterstate: true})
	require.NoError(t, err)

	assert.Equal(t, int64(0), inv.CGSTPs)
	assert.Equal(t, int64(0), inv.SGSTPs)
	require.NotNil(t, inv.IGSTPs)
	assert.Equal(t, int64(1800), *inv.IGSTPs)
	assert.Equal(t, int64(11800), inv.TotalPs)
}

func TestGenerateDefaultsTaxRateWhenZero(t *testing.T) {
	order := storage.Order{Items: []storage.OrderItem{{Quantity: 1, PricePerUnitPs: 10000}}}
	e := NewEngine()

	inv, err := e.Generate(order, Options{InvoiceSequence: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(900), inv.CGSTPs)
	assert.Equal(t, int64(900), inv.SGSTPs)
}

func TestGenerateRejectsNonPositiveSequence(t *testing.T) {
	e := NewEngine()
	_, err := e.Generate(storage.Order{}, Options{InvoiceSequence: 0})
	assert.Error(t, err)
}

func TestRoundHalfUpPs(t *testing.T) {
	assert.Equal(t, int64(3), roundHalfUpPs(2.5))
	assert.Equal(t, int64(-3), roundHalfUpPs(-2.5))
	assert.Equal(t, int64(2), roundHalfUpPs(2.4))
}

func TestRupeesToPaiseRoundTrip(t *testing.T) {
	assert.Equal(t, int64(15050), RupeesToPaise(150.5))
	assert.Equal(t, 150.5, PaiseToRupees(15050))
}

func TestPadSequenceNeverTruncates(t *testing.T) {
	assert.Equal(t, "007", padSequence(7))
	assert.Equal(t, "1234", padSequence(1234))
}

func TestLineAmountPsAvoidsBinaryFloatRoundingError(t *testing.T) {
	// A binary-float multiplication of 291.9 * 917575 rounds to
	// 267840142; the correct integer-scaled half-up result is 267840143.
	assert.Equal(t, int64(267840143), lineAmountPs(291.9, 917575))
}

func TestRoundHalfUpDiv(t *testing.T) {
	assert.Equal(t, int64(3), roundHalfUpDiv(5, 2))
	assert.Equal(t, int64(2), roundHalfUpDiv(4, 2))
	assert.Equal(t, int64(-3), roundHalfUpDiv(-5, 2))
}

func TestScaleTaxRateHandlesFractionalPercentages(t *testing.T) {
	assert.Equal(t, int64(1800), scaleTaxRate(18))
	assert.Equal(t, int64(1850), scaleTaxRate(18.5))
}

func TestGenerateWithFractionalTaxRateAvoidsBinaryFloatRoundingError(t *testing.T) {
	// subtotal*taxRateBps/20000 computed entirely in int64 — a binary-float
	// path computing subtotal*taxRate/2/100 is exactly the pattern §4.4
	// forbids for money arithmetic.
	order := storage.Order{Items: []storage.OrderItem{{Quantity: 1, PricePerUnitPs: 333333}}}
	e := NewEngine()

	inv, err := e.Generate(order, Options{InvoiceSequence: 1, TaxRatePercent: 18.5})
	require.NoError(t, err)

	assert.Equal(t, int64(333333), inv.SubtotalPs)
	assert.Equal(t, int64(30833), inv.CGSTPs)
	assert.Equal(t, int64(30833), inv.SGSTPs)
}
