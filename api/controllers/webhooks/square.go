package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joaquinvilla/merkado-backend/api/responses"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type payoutOutcomeService interface {
	ReportOutcome(ctx context.Context, railPaymentID string, succeeded bool, failureReason string) error
}

type squareClient interface {
	SigningSecret() string
}

// squarePaymentEvent is the subset of the Square webhook envelope we read.
type squarePaymentEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID            string `json:"id"`
				Status        string `json:"status"`
				FailureReason string `json:"failure_reason"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// SquareWebhook ingests Square payment lifecycle events and records the
// outcome against the matching payout. Redelivered events are safe because
// outcome recording is idempotent per payment.
func SquareWebhook(svc payoutOutcomeService, client squareClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Square-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}

		if !validateSquareSignature(payload, client.SigningSecret(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "invalid square signature"))
			return
		}

		var event squarePaymentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode event"))
			return
		}

		if !strings.HasPrefix(event.Type, "payment.") {
			responses.WriteSuccess(w, nil)
			return
		}

		payment := event.Data.Object.Payment
		if payment.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing"))
			return
		}

		succeeded, terminal := classifyPaymentStatus(payment.Status)
		if !terminal {
			// Still in flight on the rail side. Nothing to record yet.
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.ReportOutcome(ctx, payment.ID, succeeded, payment.FailureReason); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				// Payment events can arrive for payments we never dispatched.
				// Acknowledge so the rail stops redelivering.
				if logg != nil {
					logg.Warn(ctx, fmt.Sprintf("square payment %s does not match a payout", payment.ID))
				}
				responses.WriteSuccess(w, nil)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("square event %s processed", event.EventID))
		}
		responses.WriteSuccess(w, nil)
	}
}

// classifyPaymentStatus maps a Square payment status to a payout outcome.
// The second return is false for in-flight statuses like PENDING.
func classifyPaymentStatus(status string) (succeeded, terminal bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "APPROVED":
		return true, true
	case "FAILED", "CANCELED":
		return false, true
	default:
		return false, false
	}
}

func validateSquareSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
