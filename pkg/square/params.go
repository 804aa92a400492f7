package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PayoutParams encapsulates the inputs for a seller disbursement.
type PayoutParams struct {
	PayoutID       string
	SellerStoreID  string
	AmountCents    int64
	Currency       string
	SourceID       string
	IdempotencyKey string
	Note           string
}

// PayoutResult is the rail-side outcome of a payout dispatch.
type PayoutResult struct {
	RailPaymentID string
	Status        string
}

func (p PayoutParams) toSquareRequest(idempotencyKey, locationID string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       p.SourceID,
	}
	if trimmed := strings.TrimSpace(locationID); trimmed != "" {
		req.LocationID = ptrString(trimmed)
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, p.Currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.PayoutID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
