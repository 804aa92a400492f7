package rules

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/api/responses"
	"github.com/joaquinvilla/merkado-backend/api/validators"
	internalrules "github.com/joaquinvilla/merkado-backend/internal/rules"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

type ruleRequest struct {
	SellerStoreID *string `json:"seller_store_id,omitempty" validate:"omitempty,uuid"`
	Category      *string `json:"category,omitempty"`
	Rate          string  `json:"rate" validate:"required"`
	FixedFee      string  `json:"fixed_fee,omitempty"`
	MinCommission *string `json:"min_commission,omitempty"`
	MaxCommission *string `json:"max_commission,omitempty"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,oneof=USD EUR"`
	Priority      int     `json:"priority,omitempty"`
	EffectiveFrom string  `json:"effective_from" validate:"required"`
}

func (req ruleRequest) toInput() (internalrules.RuleInput, error) {
	input := internalrules.RuleInput{
		Category: req.Category,
		Priority: req.Priority,
		Currency: enums.CurrencyUSD,
	}

	if req.SellerStoreID != nil {
		sellerID, err := uuid.Parse(*req.SellerStoreID)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller_store_id")
		}
		input.SellerStoreID = &sellerID
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(req.Rate))
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rate")
	}
	input.Rate = rate

	if fee := strings.TrimSpace(req.FixedFee); fee != "" {
		fixedFee, err := decimal.NewFromString(fee)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fixed_fee")
		}
		input.FixedFee = fixedFee
	}

	if req.MinCommission != nil {
		minCommission, err := decimal.NewFromString(strings.TrimSpace(*req.MinCommission))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid min_commission")
		}
		input.MinCommission = &minCommission
	}
	if req.MaxCommission != nil {
		maxCommission, err := decimal.NewFromString(strings.TrimSpace(*req.MaxCommission))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid max_commission")
		}
		input.MaxCommission = &maxCommission
	}

	if req.Currency != "" {
		input.Currency = enums.Currency(req.Currency)
	}

	effectiveFrom, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EffectiveFrom))
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid effective_from, expected RFC 3339")
	}
	input.EffectiveFrom = effectiveFrom

	return input, nil
}

// Create stores a new commission rule and reports any rules it shadows.
func Create(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ruleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateRule(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Update replaces a rule's terms, keeping its identity.
func Update(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := parseRuleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req ruleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.UpdateRule(r.Context(), ruleID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Get returns one rule by id.
func Get(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := parseRuleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rule, err := svc.GetRule(r.Context(), ruleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rule)
	}
}

// List returns a rule page filtered by scope and active state.
func List(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalrules.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("scope")); raw != "" {
			scope := enums.RuleScope(raw)
			if !scope.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown scope"))
				return
			}
			params.Scope = &scope
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
			active := raw == "true"
			params.Active = &active
		}

		list, err := svc.ListRules(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Deactivate retires a rule without deleting its history.
func Deactivate(svc internalrules.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, err := parseRuleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeactivateRule(r.Context(), ruleID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

func parseRuleID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "ruleId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "rule id is required")
	}
	ruleID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rule id")
	}
	return ruleID, nil
}
