package sale

import (
	"errors"
	"testing"

	"github.com/banelo/banelo-backend/pkg/database"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeTotals_SeniorCitizenIsVATExempt(t *testing.T) {
	lines := []CartLine{{UnitPrice: dec("112.00"), Quantity: 1}}

	totals, err := ComputeTotals(lines, DiscountSenior, decimal.Zero)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	if !totals.Subtotal.Equal(dec("112.00")) {
		t.Errorf("subtotal = %s, want 112.00", totals.Subtotal)
	}
	// 112 / 1.12 = 100 exclusive, 20% of that is the discount
	if !totals.DiscountAmount.Equal(dec("20.00")) {
		t.Errorf("discount = %s, want 20.00", totals.DiscountAmount)
	}
	if !totals.Total.Equal(dec("80.00")) {
		t.Errorf("total = %s, want 80.00", totals.Total)
	}
	if !totals.VATAmount.IsZero() {
		t.Errorf("vat = %s, want 0 (fully exempted)", totals.VATAmount)
	}
}

func TestComputeTotals_PWDMatchesSenior(t *testing.T) {
	lines := []CartLine{{UnitPrice: dec("56.00"), Quantity: 2}}

	senior, err := ComputeTotals(lines, DiscountSenior, decimal.Zero)
	if err != nil {
		t.Fatalf("senior compute failed: %v", err)
	}
	pwd, err := ComputeTotals(lines, DiscountPWD, decimal.Zero)
	if err != nil {
		t.Fatalf("pwd compute failed: %v", err)
	}

	if !senior.Total.Equal(pwd.Total) || !senior.DiscountAmount.Equal(pwd.DiscountAmount) {
		t.Errorf("senior and pwd must price identically: %+v vs %+v", senior, pwd)
	}
	if !pwd.Total.Equal(dec("80.00")) {
		t.Errorf("total = %s, want 80.00", pwd.Total)
	}
}

func TestComputeTotals_NoDiscountKeepsVATIncluded(t *testing.T) {
	lines := []CartLine{{UnitPrice: dec("112.00"), Quantity: 1}}

	totals, err := ComputeTotals(lines, DiscountNone, decimal.Zero)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	if !totals.Total.Equal(dec("112.00")) {
		t.Errorf("total = %s, want 112.00", totals.Total)
	}
	// VAT is displayed but already inside the subtotal
	if !totals.VATAmount.Equal(dec("12.00")) {
		t.Errorf("vat = %s, want 12.00", totals.VATAmount)
	}
	if !totals.DiscountAmount.IsZero() {
		t.Errorf("discount = %s, want 0", totals.DiscountAmount)
	}
}

func TestComputeTotals_CustomPercent(t *testing.T) {
	lines := []CartLine{{UnitPrice: dec("100.00"), Quantity: 2}}

	totals, err := ComputeTotals(lines, DiscountCustom, dec("10"))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	if !totals.Subtotal.Equal(dec("200.00")) {
		t.Errorf("subtotal = %s, want 200.00", totals.Subtotal)
	}
	if !totals.DiscountAmount.Equal(dec("20.00")) {
		t.Errorf("discount = %s, want 20.00", totals.DiscountAmount)
	}
	if !totals.Total.Equal(dec("180.00")) {
		t.Errorf("total = %s, want 180.00", totals.Total)
	}
}

func TestComputeTotals_MultiLineSubtotal(t *testing.T) {
	lines := []CartLine{
		{UnitPrice: dec("45.50"), Quantity: 2},
		{UnitPrice: dec("21.00"), Quantity: 3},
	}

	totals, err := ComputeTotals(lines, DiscountNone, decimal.Zero)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !totals.Subtotal.Equal(dec("154.00")) {
		t.Errorf("subtotal = %s, want 154.00", totals.Subtotal)
	}
}

func TestComputeTotals_RejectsBadDiscounts(t *testing.T) {
	lines := []CartLine{{UnitPrice: dec("10.00"), Quantity: 1}}

	if _, err := ComputeTotals(lines, "mystery", decimal.Zero); !errors.Is(err, ErrUnknownDiscountType) {
		t.Errorf("unknown type: got %v", err)
	}
	if _, err := ComputeTotals(lines, DiscountCustom, dec("120")); !errors.Is(err, ErrUnknownDiscountType) {
		t.Errorf("percent over 100: got %v", err)
	}
	if _, err := ComputeTotals(lines, DiscountCustom, dec("-5")); !errors.Is(err, ErrUnknownDiscountType) {
		t.Errorf("negative percent: got %v", err)
	}
}

func TestValidatePayment_Cash(t *testing.T) {
	if err := ValidatePayment(database.PaymentCash, "", dec("100"), dec("80")); err != nil {
		t.Errorf("sufficient cash rejected: %v", err)
	}
	if err := ValidatePayment(database.PaymentCash, "", dec("80"), dec("80")); err != nil {
		t.Errorf("exact cash rejected: %v", err)
	}
	if err := ValidatePayment(database.PaymentCash, "", dec("79.99"), dec("80")); !errors.Is(err, ErrInsufficientCash) {
		t.Errorf("short cash: got %v, want ErrInsufficientCash", err)
	}
}

func TestValidatePayment_GCashReference(t *testing.T) {
	if err := ValidatePayment(database.PaymentGCash, "1234567890123", decimal.Zero, dec("80")); err != nil {
		t.Errorf("valid 13-digit reference rejected: %v", err)
	}

	bad := []string{"", "123456789012", "12345678901234", "12345678901ab", "1234 56789012"}
	for _, ref := range bad {
		if err := ValidatePayment(database.PaymentGCash, ref, decimal.Zero, dec("80")); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("reference %q: got %v, want ErrInvalidReference", ref, err)
		}
	}
}

func TestValidatePayment_UnknownMode(t *testing.T) {
	if err := ValidatePayment("cheque", "", dec("100"), dec("80")); !errors.Is(err, ErrUnknownPaymentMode) {
		t.Errorf("got %v, want ErrUnknownPaymentMode", err)
	}
}
