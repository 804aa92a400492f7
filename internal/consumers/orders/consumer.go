package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	"github.com/joaquinvilla/merkado-backend/pkg/enums"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

const orderCompletedEventType = "order_completed"

type commissionRecorder interface {
	RecordOrderCommissions(ctx context.Context, input commission.OrderCompletedInput) ([]models.CommissionRecord, error)
}

// orderCompletedMessage is the wire shape the marketplace order service
// publishes when an order finishes.
type orderCompletedMessage struct {
	OrderID              uuid.UUID              `json:"order_id"`
	PaymentTransactionID *uuid.UUID             `json:"payment_transaction_id,omitempty"`
	CompletedAt          time.Time              `json:"completed_at"`
	SellerPortions       []sellerPortionMessage `json:"seller_portions"`
}

type sellerPortionMessage struct {
	SellerStoreID uuid.UUID       `json:"seller_store_id"`
	Category      *string         `json:"category,omitempty"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	Currency      string          `json:"currency"`
}

// Consumer records commissions for completed orders arriving over Pub/Sub.
type Consumer struct {
	commissions  commissionRecorder
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer constructs a consumer that watches the provided subscription.
func NewConsumer(commissions commissionRecorder, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if commissions == nil {
		return nil, errors.New("commission service is required")
	}
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		commissions:  commissions,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})

	if eventType := msg.Attributes["event_type"]; eventType != "" && eventType != orderCompletedEventType {
		c.logg.Info(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	var message orderCompletedMessage
	if err := json.Unmarshal(msg.Data, &message); err != nil {
		c.logg.Error(logCtx, "failed to unmarshal order message", err)
		return processResult{ack: true}
	}

	input, err := buildInput(message)
	if err != nil {
		c.logg.Error(logCtx, "order message is malformed", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"order_id": message.OrderID.String(),
		"sellers":  len(message.SellerPortions),
	})

	records, err := c.commissions.RecordOrderCommissions(logCtx, input)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			// Redelivery cannot fix a malformed order. Drop it.
			c.logg.Error(logCtx, "order rejected", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "failed to record commissions, message will be redelivered", err)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithField(logCtx, "records", len(records))
	c.logg.Info(logCtx, "order commissions recorded")
	return processResult{ack: true}
}

func buildInput(message orderCompletedMessage) (commission.OrderCompletedInput, error) {
	if message.OrderID == uuid.Nil {
		return commission.OrderCompletedInput{}, errors.New("order id missing")
	}
	if message.CompletedAt.IsZero() {
		return commission.OrderCompletedInput{}, errors.New("completed_at missing")
	}
	if len(message.SellerPortions) == 0 {
		return commission.OrderCompletedInput{}, errors.New("seller portions missing")
	}

	portions := make([]commission.SellerPortion, 0, len(message.SellerPortions))
	for _, portion := range message.SellerPortions {
		currency := enums.Currency(portion.Currency)
		if portion.Currency == "" {
			currency = enums.CurrencyUSD
		}
		if !currency.IsValid() {
			return commission.OrderCompletedInput{}, errors.New("unknown currency " + portion.Currency)
		}
		portions = append(portions, commission.SellerPortion{
			SellerStoreID: portion.SellerStoreID,
			Category:      portion.Category,
			GrossAmount:   portion.GrossAmount,
			Currency:      currency,
		})
	}

	return commission.OrderCompletedInput{
		OrderID:              message.OrderID,
		PaymentTransactionID: message.PaymentTransactionID,
		CompletedAt:          message.CompletedAt.UTC(),
		Portions:             portions,
	}, nil
}
