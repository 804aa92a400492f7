package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/pkg/db/models"
	pkgerrors "github.com/joaquinvilla/merkado-backend/pkg/errors"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
)

type fakeRecorder struct {
	inputs []commission.OrderCompletedInput
	err    error
}

func (f *fakeRecorder) RecordOrderCommissions(ctx context.Context, input commission.OrderCompletedInput) ([]models.CommissionRecord, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return make([]models.CommissionRecord, len(input.Portions)), nil
}

func newConsumerForTests(recorder *fakeRecorder) *Consumer {
	return &Consumer{
		commissions: recorder,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
}

func orderMessage(t *testing.T, message orderCompletedMessage) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return &pubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: map[string]string{"event_type": orderCompletedEventType},
	}
}

func validMessage() orderCompletedMessage {
	return orderCompletedMessage{
		OrderID:     uuid.New(),
		CompletedAt: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
		SellerPortions: []sellerPortionMessage{
			{
				SellerStoreID: uuid.New(),
				GrossAmount:   decimal.RequireFromString("200.00"),
				Currency:      "USD",
			},
		},
	}
}

func TestConsumerRecordsCommissionsAndAcks(t *testing.T) {
	recorder := &fakeRecorder{}
	consumer := newConsumerForTests(recorder)

	message := validMessage()
	result := consumer.process(context.Background(), orderMessage(t, message))
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}

	if len(recorder.inputs) != 1 {
		t.Fatalf("expected 1 recording, got %d", len(recorder.inputs))
	}
	input := recorder.inputs[0]
	if input.OrderID != message.OrderID {
		t.Fatalf("order id mismatch")
	}
	if len(input.Portions) != 1 || !input.Portions[0].GrossAmount.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("portions not forwarded: %+v", input.Portions)
	}
}

func TestConsumerAcksMalformedPayload(t *testing.T) {
	recorder := &fakeRecorder{}
	consumer := newConsumerForTests(recorder)

	msg := &pubsub.Message{
		ID:         "msg-2",
		Data:       []byte("not json"),
		Attributes: map[string]string{"event_type": orderCompletedEventType},
	}
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("poison messages must be acked, got %+v", result)
	}
	if len(recorder.inputs) != 0 {
		t.Fatalf("malformed payload must not reach the service")
	}
}

func TestConsumerAcksMissingPortions(t *testing.T) {
	recorder := &fakeRecorder{}
	consumer := newConsumerForTests(recorder)

	message := validMessage()
	message.SellerPortions = nil
	result := consumer.process(context.Background(), orderMessage(t, message))
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(recorder.inputs) != 0 {
		t.Fatalf("incomplete order must not reach the service")
	}
}

func TestConsumerSkipsUnrelatedEvents(t *testing.T) {
	recorder := &fakeRecorder{}
	consumer := newConsumerForTests(recorder)

	msg := orderMessage(t, validMessage())
	msg.Attributes["event_type"] = "order_refunded"
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(recorder.inputs) != 0 {
		t.Fatalf("unrelated events must be skipped")
	}
}

func TestConsumerNacksOnDependencyFailure(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	consumer := newConsumerForTests(recorder)

	result := consumer.process(context.Background(), orderMessage(t, validMessage()))
	if !result.nack {
		t.Fatalf("transient failure must nack for redelivery, got %+v", result)
	}
}

func TestConsumerAcksValidationRejection(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeValidation, "negative gross")}
	consumer := newConsumerForTests(recorder)

	result := consumer.process(context.Background(), orderMessage(t, validMessage()))
	if !result.ack || result.nack {
		t.Fatalf("rejected orders must not be redelivered, got %+v", result)
	}
}
