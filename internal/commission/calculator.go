package commission

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
)

// Terms are the pricing inputs taken from a matched rule or from the
// platform default when no rule matches.
type Terms struct {
	RuleID        *uuid.UUID
	Rate          decimal.Decimal
	FixedFee      decimal.Decimal
	MinCommission *decimal.Decimal
	MaxCommission *decimal.Decimal
}

// Calculation is the outcome of applying terms to a gross amount. The
// amounts always satisfy CommissionAmount + NetAmount == gross.
type Calculation struct {
	CommissionAmount decimal.Decimal
	NetAmount        decimal.Decimal
}

// Calculate computes the commission owed on a gross amount. The raw charge is
// gross * rate + fixed fee, rounded half-up to cents, then clamped to the
// min/max bounds when present. Net is whatever remains of the gross.
func Calculate(gross decimal.Decimal, terms Terms) (Calculation, error) {
	if gross.IsNegative() {
		return Calculation{}, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must not be negative")
	}

	commission := gross.Mul(terms.Rate).Add(terms.FixedFee).Round(2)
	if terms.MinCommission != nil && commission.LessThan(*terms.MinCommission) {
		commission = *terms.MinCommission
	}
	if terms.MaxCommission != nil && commission.GreaterThan(*terms.MaxCommission) {
		commission = *terms.MaxCommission
	}

	return Calculation{
		CommissionAmount: commission,
		NetAmount:        gross.Sub(commission),
	}, nil
}

// TermsFromRule lifts the pricing fields off a stored rule.
func TermsFromRule(rule *models.CommissionRule) Terms {
	id := rule.ID
	return Terms{
		RuleID:        &id,
		Rate:          rule.Rate,
		FixedFee:      rule.FixedFee,
		MinCommission: rule.MinCommission,
		MaxCommission: rule.MaxCommission,
	}
}

// DefaultTerms parses the configured platform fallback. Records built from it
// carry no rule reference.
func DefaultTerms(cfg config.CommissionConfig) (Terms, error) {
	rate, err := decimal.NewFromString(cfg.DefaultRate)
	if err != nil {
		return Terms{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse default commission rate")
	}
	fee, err := decimal.NewFromString(cfg.DefaultFixedFee)
	if err != nil {
		return Terms{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse default fixed fee")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Terms{}, pkgerrors.New(pkgerrors.CodeValidation, "default commission rate must be a fraction between 0 and 1")
	}
	return Terms{Rate: rate, FixedFee: fee}, nil
}
