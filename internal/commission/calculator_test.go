package commission

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/config"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", value, err)
	}
	return d
}

func decPtr(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d := dec(t, value)
	return &d
}

func TestCalculateRatePlusFee(t *testing.T) {
	// A 200.00 order at 8% plus a 1.00 fee owes 17.00.
	calc, err := Calculate(dec(t, "200.00"), Terms{
		Rate:     dec(t, "0.08"),
		FixedFee: dec(t, "1.00"),
	})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	if !calc.CommissionAmount.Equal(dec(t, "17.00")) {
		t.Fatalf("expected commission 17.00, got %s", calc.CommissionAmount)
	}
	if !calc.NetAmount.Equal(dec(t, "183.00")) {
		t.Fatalf("expected net 183.00, got %s", calc.NetAmount)
	}
}

func TestCalculateRoundsHalfUpToCents(t *testing.T) {
	cases := []struct {
		name  string
		gross string
		rate  string
		want  string
	}{
		{"half rounds up", "1.01", "0.5", "0.51"},
		{"below half rounds down", "10.04", "0.1", "1.00"},
		{"above half rounds up", "10.06", "0.1", "1.01"},
		{"exact cents untouched", "150.00", "0.1", "15.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calc, err := Calculate(dec(t, tc.gross), Terms{Rate: dec(t, tc.rate)})
			if err != nil {
				t.Fatalf("Calculate returned error: %v", err)
			}
			if !calc.CommissionAmount.Equal(dec(t, tc.want)) {
				t.Fatalf("expected commission %s, got %s", tc.want, calc.CommissionAmount)
			}
		})
	}
}

func TestCalculateClampsToBounds(t *testing.T) {
	terms := Terms{
		Rate:          dec(t, "0.10"),
		MinCommission: decPtr(t, "5.00"),
		MaxCommission: decPtr(t, "50.00"),
	}

	cases := []struct {
		gross string
		want  string
	}{
		{"10.00", "5.00"},   // raw 1.00 lifted to the floor
		{"100.00", "10.00"}, // inside the band
		{"900.00", "50.00"}, // raw 90.00 capped at the ceiling
	}

	for _, tc := range cases {
		calc, err := Calculate(dec(t, tc.gross), terms)
		if err != nil {
			t.Fatalf("Calculate returned error: %v", err)
		}
		if !calc.CommissionAmount.Equal(dec(t, tc.want)) {
			t.Fatalf("gross %s: expected commission %s, got %s", tc.gross, tc.want, calc.CommissionAmount)
		}
		if !calc.CommissionAmount.Add(calc.NetAmount).Equal(dec(t, tc.gross)) {
			t.Fatalf("gross %s: commission %s + net %s does not reconstruct the gross", tc.gross, calc.CommissionAmount, calc.NetAmount)
		}
	}
}

func TestCalculateMinClampCanDriveNetNegative(t *testing.T) {
	terms := Terms{
		Rate:          dec(t, "0.10"),
		MinCommission: decPtr(t, "5.00"),
	}

	calc, err := Calculate(dec(t, "2.00"), terms)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	if !calc.CommissionAmount.Equal(dec(t, "5.00")) {
		t.Fatalf("expected the floor commission 5.00, got %s", calc.CommissionAmount)
	}
	if !calc.NetAmount.Equal(dec(t, "-3.00")) {
		t.Fatalf("expected net -3.00 so the gross reconstructs, got %s", calc.NetAmount)
	}
	if !calc.CommissionAmount.Add(calc.NetAmount).Equal(dec(t, "2.00")) {
		t.Fatalf("commission %s + net %s does not reconstruct the gross", calc.CommissionAmount, calc.NetAmount)
	}
}

func TestCalculateZeroTermsAreLegal(t *testing.T) {
	calc, err := Calculate(dec(t, "42.00"), Terms{Rate: decimal.Zero, FixedFee: decimal.Zero})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	if !calc.CommissionAmount.IsZero() {
		t.Fatalf("expected zero commission, got %s", calc.CommissionAmount)
	}
	if !calc.NetAmount.Equal(dec(t, "42.00")) {
		t.Fatalf("expected net to equal gross, got %s", calc.NetAmount)
	}
}

func TestCalculateRejectsNegativeGross(t *testing.T) {
	_, err := Calculate(dec(t, "-0.01"), Terms{Rate: dec(t, "0.10")})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestDefaultTerms(t *testing.T) {
	terms, err := DefaultTerms(config.CommissionConfig{DefaultRate: "0.10", DefaultFixedFee: "0"})
	if err != nil {
		t.Fatalf("DefaultTerms returned error: %v", err)
	}
	if terms.RuleID != nil {
		t.Fatal("expected default terms to carry no rule reference")
	}
	if !terms.Rate.Equal(dec(t, "0.10")) {
		t.Fatalf("expected rate 0.10, got %s", terms.Rate)
	}

	if _, err := DefaultTerms(config.CommissionConfig{DefaultRate: "ten percent", DefaultFixedFee: "0"}); err == nil {
		t.Fatal("expected parse error for a non-numeric rate")
	}
	if _, err := DefaultTerms(config.CommissionConfig{DefaultRate: "1.5", DefaultFixedFee: "0"}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code for a rate above 1, got %v", err)
	}
}
