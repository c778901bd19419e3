package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Gateway is a payment provider adapter. Settlement depends only on this
// interface.
type Gateway interface {
	Provider() Provider
	CreateGatewayOrder(ctx context.Context, req CreateRequest) (*GatewayOrder, error)
	VerifyNotification(ctx context.Context, n Notification) (*Verified, error)
}

// OrderResolver is implemented by gateways that can look up the merchant
// order behind one of their own order ids.
type OrderResolver interface {
	ResolveOrder(ctx context.Context, gatewayOrderID string) (orderID string, amountPaise int64, err error)
}

// ToMinorUnits converts rupees to paise. It is the only place amounts change
// unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts paise back to rupees.
func FromMinorUnits(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
