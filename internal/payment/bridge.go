package payment

import (
	"context"

	"storefront-be/internal/apperr"
	"storefront-be/internal/async"
	"storefront-be/internal/logger"
	"storefront-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderReader is the order access the bridge needs.
type OrderReader interface {
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	MarkPaymentInitiated(ctx context.Context, orderID string, method order.PaymentMethod, transactionID string) (bool, error)
}

// Bridge turns a stored, unpaid order into a gateway order.
type Bridge struct {
	orders   OrderReader
	gateways map[Provider]Gateway
	runner   *async.Runner
}

func NewBridge(orders OrderReader, runner *async.Runner, gateways ...Gateway) *Bridge {
	b := &Bridge{
		orders:   orders,
		gateways: make(map[Provider]Gateway, len(gateways)),
		runner:   runner,
	}
	for _, g := range gateways {
		b.gateways[g.Provider()] = g
	}
	return b
}

// CreateGatewayOrder creates a gateway order for orderID on behalf of its
// owner. The order is annotated with the gateway reference in the background;
// a failed annotation never fails the initiation.
func (b *Bridge) CreateGatewayOrder(ctx context.Context, provider Provider, orderID string, userID uint) (*GatewayOrder, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateGatewayOrder"),
		zap.String("provider", string(provider)),
		zap.String("order_id", orderID),
	)

	gw, ok := b.gateways[provider]
	if !ok {
		return nil, apperr.Configuration("payment provider %s is not enabled", provider)
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.Validation("invalid order id")
	}

	o, err := b.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if !o.Payable() {
		log.Warn("initiation refused",
			zap.String("status", string(o.Status)),
			zap.String("payment_status", string(o.PaymentStatus)),
		)
		return nil, apperr.Validation("order is not awaiting payment")
	}

	res, err := gw.CreateGatewayOrder(ctx, CreateRequest{
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Billing.GrandTotal,
		Customer: Customer{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
	})
	if err != nil {
		log.Error("gateway order creation failed", zap.Error(err))
		return nil, err
	}

	method := order.PaymentMethod(provider)
	b.runner.Go(ctx, "order.mark_payment_initiated", func(ctx context.Context) error {
		updated, err := b.orders.MarkPaymentInitiated(ctx, o.ID, method, res.TransactionID)
		if err != nil {
			return err
		}
		if !updated {
			logger.FromCtx(ctx).Warn("order changed before initiation was recorded",
				zap.String("order_id", o.ID),
			)
		}
		return nil
	})

	log.Info("gateway order created",
		zap.String("gateway_order_id", res.GatewayOrderID),
		zap.Int64("amount_paise", res.AmountPaise),
	)
	return res, nil
}
