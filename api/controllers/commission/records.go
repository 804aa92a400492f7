package commission

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/api/responses"
	"github.com/joaquinvilla/merkado-backend/api/validators"
	internalcommission "github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// List returns a commission record page.
func List(svc internalcommission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := validators.ParseQueryUUID(r, "seller_store_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListRecords(r.Context(), internalcommission.ListParams{
			SellerStoreID: sellerID,
			OrderID:       orderID,
			Unsettled:     strings.TrimSpace(r.URL.Query().Get("unsettled")) == "true",
			Limit:         limit,
			Cursor:        strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Get returns one commission record by id.
func Get(svc internalcommission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "recordId"))
		recordID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id"))
			return
		}
		record, err := svc.GetRecord(r.Context(), recordID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

type correctRequest struct {
	GrossAmount string `json:"gross_amount" validate:"required"`
}

// Correct rewrites the gross amount of an unsettled record and recomputes
// its commission from the terms captured at recording time.
func Correct(svc internalcommission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "recordId"))
		recordID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id"))
			return
		}

		var req correctRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		gross, err := decimal.NewFromString(strings.TrimSpace(req.GrossAmount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gross_amount"))
			return
		}

		record, err := svc.CorrectRecordAmount(r.Context(), recordID, gross)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

type previewRequest struct {
	AsOf     string                  `json:"as_of,omitempty"`
	Portions []previewPortionRequest `json:"portions" validate:"required,min=1,dive"`
}

type previewPortionRequest struct {
	SellerStoreID string  `json:"seller_store_id" validate:"required,uuid"`
	Category      *string `json:"category,omitempty"`
	GrossAmount   string  `json:"gross_amount" validate:"required"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,oneof=USD EUR"`
}

// Preview computes commissions for hypothetical order portions without
// writing anything.
func Preview(svc internalcommission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asOf := time.Now().UTC()
		if raw := strings.TrimSpace(req.AsOf); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid as_of, expected RFC 3339"))
				return
			}
			asOf = parsed.UTC()
		}

		portions := make([]internalcommission.SellerPortion, 0, len(req.Portions))
		for _, portion := range req.Portions {
			sellerID, err := uuid.Parse(portion.SellerStoreID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller_store_id"))
				return
			}
			gross, err := decimal.NewFromString(strings.TrimSpace(portion.GrossAmount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gross_amount"))
				return
			}
			currency := enums.CurrencyUSD
			if portion.Currency != "" {
				currency = enums.Currency(portion.Currency)
			}
			portions = append(portions, internalcommission.SellerPortion{
				SellerStoreID: sellerID,
				Category:      portion.Category,
				GrossAmount:   gross,
				Currency:      currency,
			})
		}

		lines, err := svc.PreviewCommissions(r.Context(), asOf, portions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lines)
	}
}
