package settlement

import (
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
)

// Kind names the exit path Settle took.
type Kind string

const (
	// KindSettled: the notification was recorded for the first time.
	KindSettled Kind = "settled"
	// KindDuplicate: the gateway transaction was already recorded; the earlier
	// outcome is reported again.
	KindDuplicate Kind = "duplicate"
	// KindPending: the gateway has not decided yet; nothing was written.
	KindPending Kind = "pending"
	// KindRejected: the notification failed verification or could not be
	// matched to an order. Settle also returns an error.
	KindRejected Kind = "rejected"
)

type Result struct {
	Kind          Kind
	Provider      payment.Provider
	OrderID       string
	TransactionID string
	Outcome       payment.Outcome
	// Applied is true when this call moved the order to a terminal state.
	Applied bool
}

// Success reports whether the user should see a successful payment.
func (r Result) Success() bool {
	return r.Outcome == payment.OutcomeSuccess
}

func terminalOutcome(provider payment.Provider, v *payment.Verified) order.Outcome {
	out := order.Outcome{
		PaymentMethod: order.PaymentMethod(provider),
		TransactionID: v.MerchantTransactionID,
		UPIReference:  v.UPIReference,
	}
	if v.GatewayOrderID != "" {
		out.TransactionID = v.GatewayOrderID
	}
	if out.TransactionID == "" {
		out.TransactionID = v.TransactionID
	}

	if v.Outcome == payment.OutcomeSuccess {
		out.Status = order.StatusConfirmed
		out.PaymentStatus = order.PaymentCompleted
	} else {
		out.Status = order.StatusCancelled
		out.PaymentStatus = order.PaymentFailed
	}
	return out
}
