package sale

import (
	"errors"
	"regexp"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/shopspring/decimal"
)

// Discount categories
const (
	DiscountNone   = "none"
	DiscountSenior = "senior"
	DiscountPWD    = "pwd"
	DiscountCustom = "custom"
)

var (
	// ErrInsufficientCash is returned when cash received does not cover the total
	ErrInsufficientCash = errors.New("cash received is less than the total")
	// ErrInvalidReference is returned for a malformed GCash reference number
	ErrInvalidReference = errors.New("GCash reference must be exactly 13 digits")
	// ErrUnknownPaymentMode is returned for anything other than cash/gcash
	ErrUnknownPaymentMode = errors.New("unknown payment mode")
	// ErrUnknownDiscountType is returned for an unrecognized discount category
	ErrUnknownDiscountType = errors.New("unknown discount type")
)

var gcashRefPattern = regexp.MustCompile(`^[0-9]{13}$`)

var (
	vatDivisor     = decimal.RequireFromString("1.12") // prices are VAT-inclusive at 12%
	seniorDiscount = decimal.RequireFromString("0.20")
	oneHundred     = decimal.NewFromInt(100)
)

// CartLine is one priced line of a cart
type CartLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the receipt math for a cart. VATAmount is informational for
// regular sales (already inside the subtotal); it is zero for VAT-exempt
// discount categories.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// ComputeTotals prices a cart under the chosen discount category. Pure
// function; receipts are rendered from its output, so the math here must
// stay exact.
//
// Senior/PWD sales are VAT-exempt: the VAT component is backed out of the
// inclusive subtotal first and the 20% discount applies to the exclusive
// amount. None/Custom keep VAT inside the subtotal and just show it.
func ComputeTotals(lines []CartLine, discountType string, customPercent decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)

	switch discountType {
	case DiscountSenior, DiscountPWD:
		vatExclusive := subtotal.Div(vatDivisor).Round(2)
		discount := vatExclusive.Mul(seniorDiscount).Round(2)
		return Totals{
			Subtotal:       subtotal,
			VATAmount:      decimal.Zero,
			DiscountAmount: discount,
			Total:          vatExclusive.Sub(discount),
		}, nil

	case DiscountNone, DiscountCustom:
		percent := decimal.Zero
		if discountType == DiscountCustom {
			if customPercent.IsNegative() || customPercent.GreaterThan(oneHundred) {
				return Totals{}, ErrUnknownDiscountType
			}
			percent = customPercent
		}
		discount := subtotal.Mul(percent).Div(oneHundred).Round(2)
		vat := subtotal.Sub(subtotal.Div(vatDivisor).Round(2))
		return Totals{
			Subtotal:       subtotal,
			VATAmount:      vat,
			DiscountAmount: discount,
			Total:          subtotal.Sub(discount),
		}, nil

	default:
		return Totals{}, ErrUnknownDiscountType
	}
}

// ValidatePayment checks payment details at the checkout boundary, before
// any stock is touched
func ValidatePayment(mode, reference string, cashReceived, total decimal.Decimal) error {
	switch mode {
	case database.PaymentCash:
		if cashReceived.LessThan(total) {
			return ErrInsufficientCash
		}
		return nil
	case database.PaymentGCash:
		if !gcashRefPattern.MatchString(reference) {
			return ErrInvalidReference
		}
		return nil
	default:
		return ErrUnknownPaymentMode
	}
}
