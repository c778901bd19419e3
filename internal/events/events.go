package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventPaymentSettled = "PaymentSettled"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     uint   `json:"user_id"`
	ItemCount  int    `json:"item_count"`
	GrandTotal string `json:"grand_total"`
}

type PaymentSettledPayload struct {
	OrderID       string `json:"order_id"`
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
	AmountPaise   int64  `json:"amount_paise"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	UserID  uint   `json:"user_id"`
}

// NewEnvelope wraps payload as version 1 of eventType. The order id is the
// correlation id and the partition key, so one order's events stay ordered.
func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

func PartitionKey(orderID string) []byte { return []byte(orderID) }
