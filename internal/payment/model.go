package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderPhonePe  Provider = "phonepe"
	ProviderRazorpay Provider = "razorpay"
)

// Status is the status of one ledger row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Outcome classifies a verified gateway notification.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailure Outcome = "failure"
)

// PhonePe response codes.
const (
	CodePaymentSuccess = "PAYMENT_SUCCESS"
	CodePaymentPending = "PAYMENT_PENDING"
)

// ClassifyCode maps a gateway status code to an outcome. Anything that is not
// explicitly success or pending is a failure.
func ClassifyCode(code string) Outcome {
	switch code {
	case CodePaymentSuccess:
		return OutcomeSuccess
	case CodePaymentPending:
		return OutcomePending
	default:
		return OutcomeFailure
	}
}

// LedgerStatus is the ledger row status recorded for an outcome.
func (o Outcome) LedgerStatus() Status {
	switch o {
	case OutcomeSuccess:
		return StatusCompleted
	case OutcomeFailure:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Payment is one append-only ledger row. GatewayTransactionID is unique.
type Payment struct {
	ID                    int64
	OrderID               string
	UserID                uint
	Gateway               Provider
	MerchantTransactionID *string
	GatewayTransactionID  string
	ProviderReferenceID   *string
	Status                Status
	Amount                decimal.Decimal
	RawResponse           json.RawMessage
	Verified              bool
	ReceivedAt            time.Time
	CompletedAt           *time.Time
}

// Outcome reports the settlement outcome this row recorded.
func (p *Payment) Outcome() Outcome {
	switch p.Status {
	case StatusCompleted:
		return OutcomeSuccess
	case StatusFailed:
		return OutcomeFailure
	default:
		return OutcomePending
	}
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// CreateRequest asks a gateway for a payable order. Amount always comes from
// the stored order.
type CreateRequest struct {
	OrderID  string
	UserID   uint
	Amount   decimal.Decimal
	Customer Customer
}

// GatewayOrder is what the storefront needs to hand the user to a gateway.
type GatewayOrder struct {
	Provider       Provider `json:"provider"`
	OrderID        string   `json:"order_id"`
	GatewayOrderID string   `json:"gateway_order_id"`
	// TransactionID is stored on the order as its gateway reference.
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	KeyID         string `json:"key_id,omitempty"`
	AmountPaise   int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// Notification is an unverified settlement message as received over HTTP.
// Only the fields of the provider's message shape are set.
type Notification struct {
	Provider Provider

	// PhonePe browser redirect.
	Code                string
	MerchantID          string
	TransactionID       string
	Amount              string
	ProviderReferenceID string
	// PhonePe server callback: base64 JSON, checksum in X-VERIFY.
	Response string
	Checksum string

	// Razorpay checkout handler.
	GatewayOrderID string
	PaymentID      string
	Signature      string

	Raw json.RawMessage
}

// Verified is an authenticated notification.
type Verified struct {
	Provider Provider
	// TransactionID keys the ledger row.
	TransactionID         string
	MerchantTransactionID string
	GatewayOrderID        string
	ProviderReferenceID   string
	// OrderID is empty when the order must be resolved from GatewayOrderID.
	OrderID      string
	Code         string
	Outcome      Outcome
	AmountPaise  int64
	HasAmount    bool
	UPIReference *string
	Raw          json.RawMessage
}
