// Package invoice computes deterministic invoice totals from an order using
// fixed-precision integer-paise arithmetic, never IEEE-754 floats, per the
// no-binary-float-money rule.
package invoice

import (
	"fmt"
	"time"

	"github.com/kiranaflow/kiranaflow/internal/storage"
)

// Options configures one invoice computation.
type Options struct {
	BusinessName    string
	GSTNumber       string
	InvoiceSequence int // required, positive
	TaxRatePercent  float64
	IsInterstate    bool
}

// Engine computes invoices. It holds no state; NewEngine exists for
// symmetry with the rest of the codebase's constructor convention and to
// leave room for injected clocks in tests.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs the invoice engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Generate implements storage.InvoiceGenerator: given an order and an
// allocated sequence, it returns the immutable invoice snapshot.
func (e *Engine) Generate(order storage.Order, opts Options) (storage.Invoice, error) {
	if opts.InvoiceSequence <= 0 {
		return storage.Invoice{}, fmt.Errorf("invoice sequence must be positive, got %d", opts.InvoiceSequence)
	}
	taxRate := opts.TaxRatePercent
	if taxRate == 0 {
		taxRate = 18
	}

	lines := make([]storage.InvoiceLine, 0, len(order.Items))
	var subtotal int64
	for _, item := range order.Items {
		amount := lineAmountPs(item.Quantity, item.PricePerUnitPs)
		subtotal += amount
		lines = append(lines, storage.InvoiceLine{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			PricePs:     item.PricePerUnitPs,
			AmountPs:    amount,
		})
	}

	taxRateBps := scaleTaxRate(taxRate)
	var cgst, sgst int64
	var igst *int64
	if opts.IsInterstate {
		v := roundHalfUpDiv(subtotal*taxRateBps, taxRateScale)
		igst = &v
	} else {
		cgst = roundHalfUpDiv(subtotal*taxRateBps, 2*taxRateScale)
		sgst = cgst
	}
	total := subtotal + cgst + sgst
	if igst != nil {
		total += *igst
	}

	now := e.now()
	return storage.Invoice{
		Number:        fmt.Sprintf("INV-%d-%s", now.Year(), padSequence(opts.InvoiceSequence)),
		DateFormatted: now.Format("02/01/2006"),
		CustomerName:  order.CustomerID,
		Lines:         lines,
		SubtotalPs:    subtotal,
		CGSTPs:        cgst,
		SGSTPs:        sgst,
		IGSTPs:        igst,
		TotalPs:       total,
		IssuerName:    opts.BusinessName,
		IssuerGST:     opts.GSTNumber,
	}, nil
}

// qtyScale is the implied-decimals factor (3) quantity is scaled by before
// it ever meets price in a multiplication — this keeps the multiplication
// itself entirely in integers, per the no-binary-float-money rule.
const qtyScale = 1000

// lineAmountPs computes round(quantity * pricePs) in paise. Quantity is
// first scaled to an integer with 3 implied decimals (scaleQuantity), then
// multiplied against pricePs as int64 — never as a float64 product of two
// money-shaped quantities — and the resulting milli-paise value is rounded
// half-up back down to whole paise.
func lineAmountPs(quantity float64, pricePs int64) int64 {
	milliPs := scaleQuantity(quantity) * pricePs
	return roundHalfUpDiv(milliPs, qtyScale)
}

// scaleQuantity converts a decimal quantity (e.g. 2.5 kg) to an integer
// fixed-point value with 3 implied decimals, rounding half-up. This is the
// one and only place quantity ever touches a float64 multiplication; every
// subsequent step is integer arithmetic.
func scaleQuantity(quantity float64) int64 {
	return roundHalfUpPs(quantity * qtyScale)
}

// taxRateScale is the implied-decimals factor (2, i.e. basis points of a
// percentage) taxRate is scaled by before it ever meets the paise subtotal
// in a multiplication — the same fixed-point approach lineAmountPs uses for
// quantity, so the subtotal*rate product is computed entirely in int64.
const taxRateScale = 10000

// scaleTaxRate converts a decimal percentage (e.g. 18 or 18.5) to an
// integer fixed-point value in ten-thousandths, rounding half-up. taxRate
// is a configured rate, not a money value, so this one float64
// multiplication converts a scalar input, not two money-shaped quantities.
func scaleTaxRate(taxRate float64) int64 {
	return roundHalfUpPs(taxRate * 100)
}

// roundHalfUpPs rounds a paise value with any residual fractional component
// half-up to the nearest whole paisa (the fixed-point output is always
// integral paise, equivalent to 2-decimal rupees).
func roundHalfUpPs(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return -int64(-v + 0.5)
}

// roundHalfUpDiv divides two integers, rounding the quotient half-up rather
// than truncating toward zero.
func roundHalfUpDiv(num, den int64) int64 {
	if den < 0 {
		num, den = -num, -den
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	return -((-num + den/2) / den)
}

// padSequence zero-pads to width 3 but never truncates beyond three digits.
func padSequence(seq int) string {
	return fmt.Sprintf("%03d", seq)
}

// RupeesToPaise converts a decimal-rupee amount supplied by an
// upstream caller (e.g. a JSON request field) to paise, rounding half-up.
func RupeesToPaise(rupees float64) int64 {
	return roundHalfUpPs(rupees * 100)
}

// PaiseToRupees converts paise back to a float for JSON display only — it
// must never re-enter arithmetic.
func PaiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}
