package invoices

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joaquinvilla/merkado-backend/api/responses"
	"github.com/joaquinvilla/merkado-backend/api/validators"
	internalinvoices "github.com/joaquinvilla/merkado-backend/internal/invoices"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/pagination"
)

// Issue creates the invoice for a finalized settlement.
func Issue(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "settlementId"))
		settlementID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement id"))
			return
		}
		invoice, err := svc.IssueInvoice(r.Context(), settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

// GetBySettlement returns the invoice issued for a settlement.
func GetBySettlement(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "settlementId"))
		settlementID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement id"))
			return
		}
		invoice, err := svc.GetBySettlement(r.Context(), settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// Get returns one invoice by id.
func Get(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "invoiceId"))
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id"))
			return
		}
		invoice, err := svc.GetInvoice(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// List returns an invoice page.
func List(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
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

		params := internalinvoices.ListParams{
			SellerStoreID: sellerID,
			Limit:         limit,
			Cursor:        strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if year, err := validators.ParseQueryInt(r, "year", 0, 2000, 9999); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		} else if year != 0 {
			params.Year = &year
		}

		list, err := svc.ListInvoices(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
