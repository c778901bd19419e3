package settlement

import (
	"context"
	"errors"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/async"
	"storefront-be/internal/cache"
	"storefront-be/internal/events"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"

	"go.uber.org/zap"
)

const eventProducer = "storefront-be"

// OrderStore is the order access settlement needs.
type OrderStore interface {
	GetByID(ctx context.Context, orderID string) (*order.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*order.Order, error)
	ApplySettlement(ctx context.Context, orderID string, out order.Outcome) (bool, error)
}

// Reservations is the stock manager surface settlement drives.
type Reservations interface {
	ConfirmOrderReservations(ctx context.Context, orderID string) (int, error)
	ReleaseOrderReservations(ctx context.Context, orderID string) int
}

type Deps struct {
	Orders    OrderStore
	Ledger    payment.Repository
	Stock     Reservations
	Gateways  []payment.Gateway
	Runner    *async.Runner
	Publisher events.Publisher
	Cache     cache.StatusCache
	Metrics   *metrics.Settlement
}

type Service struct {
	orders    OrderStore
	ledger    payment.Repository
	stock     Reservations
	gateways  map[payment.Provider]payment.Gateway
	runner    *async.Runner
	publisher events.Publisher
	cache     cache.StatusCache
	metrics   *metrics.Settlement
}

func NewService(d Deps) *Service {
	s := &Service{
		orders:    d.Orders,
		ledger:    d.Ledger,
		stock:     d.Stock,
		gateways:  make(map[payment.Provider]payment.Gateway, len(d.Gateways)),
		runner:    d.Runner,
		publisher: d.Publisher,
		cache:     d.Cache,
		metrics:   d.Metrics,
	}
	for _, g := range d.Gateways {
		s.gateways[g.Provider()] = g
	}
	if s.runner == nil {
		s.runner = async.NewRunner(4, 5*time.Second)
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.metrics == nil {
		s.metrics = &metrics.Settlement{}
	}
	return s
}

// Settle verifies a gateway notification and applies it to its order at most
// once. Delivering the same notification again yields the same outcome and
// writes nothing.
func (s *Service) Settle(ctx context.Context, n payment.Notification) (Result, error) {
	timer := metrics.StartTimer()
	defer func() { s.metrics.Observe(timer.Duration()) }()

	res := Result{Kind: KindRejected, Provider: n.Provider}
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "settlement"),
		zap.String("method", "Settle"),
		zap.String("provider", string(n.Provider)),
	)

	gw, ok := s.gateways[n.Provider]
	if !ok {
		s.metrics.Rejected.Inc()
		return res, apperr.Configuration("payment provider %s is not enabled", n.Provider)
	}

	v, err := gw.VerifyNotification(ctx, n)
	if err != nil {
		s.metrics.Rejected.Inc()
		log.Warn("notification rejected", zap.Error(err))
		return res, err
	}

	res.TransactionID = v.TransactionID
	log = log.With(zap.String("transaction_id", v.TransactionID))
	ctx = logger.WithFields(ctx, zap.String("transaction_id", v.TransactionID))

	if existing, err := s.ledger.GetByGatewayTransactionID(ctx, v.TransactionID); err == nil {
		return s.duplicate(ctx, res, existing), nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		log.Error("ledger lookup failed", zap.Error(err))
		return res, err
	}

	o, err := s.resolveOrder(ctx, gw, v)
	if err != nil {
		s.metrics.Rejected.Inc()
		log.Warn("notification does not match an order", zap.Error(err))
		return res, err
	}
	res.OrderID = o.ID
	log = log.With(zap.String("order_id", o.ID))
	ctx = logger.WithFields(ctx, zap.String("order_id", o.ID))

	if v.HasAmount {
		if want := payment.ToMinorUnits(o.Billing.GrandTotal); v.AmountPaise != want {
			s.metrics.Rejected.Inc()
			s.metrics.Reconcile.Inc()
			log.Error("amount mismatch, manual reconciliation required",
				zap.Int64("notified_paise", v.AmountPaise),
				zap.Int64("expected_paise", want),
			)
			return res, apperr.Validation("payment amount does not match order total")
		}
	}

	res.Outcome = v.Outcome
	if v.Outcome == payment.OutcomePending {
		s.metrics.Pending.Inc()
		res.Kind = KindPending
		log.Info("payment still pending", zap.String("code", v.Code))
		return res, nil
	}

	out := terminalOutcome(n.Provider, v)
	applied, err := s.orders.ApplySettlement(ctx, o.ID, out)
	if err != nil {
		log.Error("failed to apply settlement", zap.Error(err))
		return res, err
	}
	res.Applied = applied
	if !applied {
		if cur, err := s.orders.GetByID(ctx, o.ID); err == nil {
			o = cur
		}
		if v.Outcome == payment.OutcomeSuccess && o.Status != order.StatusConfirmed {
			s.metrics.Reconcile.Inc()
			log.Error("payment captured for an order that is no longer pending, manual reconciliation required",
				zap.String("order_status", string(o.Status)),
			)
		} else {
			log.Info("order already settled, recording payment only")
		}
	}

	p := &payment.Payment{
		OrderID:              o.ID,
		UserID:               o.UserID,
		Gateway:              n.Provider,
		GatewayTransactionID: v.TransactionID,
		Status:               v.Outcome.LedgerStatus(),
		Amount:               o.Billing.GrandTotal,
		RawResponse:          v.Raw,
		Verified:             true,
	}
	if v.HasAmount {
		p.Amount = payment.FromMinorUnits(v.AmountPaise)
	}
	if v.MerchantTransactionID != "" {
		p.MerchantTransactionID = &v.MerchantTransactionID
	}
	if v.ProviderReferenceID != "" {
		p.ProviderReferenceID = &v.ProviderReferenceID
	}

	res.Kind = KindSettled
	if err := s.ledger.Insert(ctx, p); err != nil {
		if errors.Is(err, payment.ErrDuplicate) {
			// A concurrent delivery of the same notification recorded it first.
			res.Kind = KindDuplicate
		} else {
			s.metrics.Reconcile.Inc()
			log.Error("failed to record payment, manual reconciliation required", zap.Error(err))
		}
	}

	orderMatches := applied || (v.Outcome == payment.OutcomeSuccess && o.Status == order.StatusConfirmed)
	s.afterOutcome(ctx, o.ID, v.Outcome, orderMatches)
	if applied {
		s.invalidateStatus(ctx, o.ID)
		s.announce(ctx, o, n.Provider, v, out)
	}

	if res.Kind == KindDuplicate {
		s.metrics.Duplicate.Inc()
		return res, nil
	}
	s.metrics.Settled.Inc()
	log.Info("payment settled",
		zap.String("outcome", string(v.Outcome)),
		zap.Bool("applied", applied),
	)
	return res, nil
}

func (s *Service) duplicate(ctx context.Context, res Result, existing *payment.Payment) Result {
	s.metrics.Duplicate.Inc()
	logger.FromCtx(ctx).Info("duplicate notification",
		zap.String("layer", "settlement"),
		zap.String("order_id", existing.OrderID),
	)

	res.Kind = KindDuplicate
	res.OrderID = existing.OrderID
	res.Outcome = existing.Outcome()
	s.invalidateStatus(ctx, existing.OrderID)

	// Confirming again is a no-op once done, and repairs a confirm that
	// failed on the first delivery.
	if res.Outcome == payment.OutcomeSuccess {
		s.afterOutcome(ctx, existing.OrderID, res.Outcome, true)
	}
	return res
}

// resolveOrder finds the order a verified notification belongs to. The order
// id is never taken from unsigned request fields.
func (s *Service) resolveOrder(ctx context.Context, gw payment.Gateway, v *payment.Verified) (*order.Order, error) {
	if v.OrderID != "" {
		return s.orders.GetByID(ctx, v.OrderID)
	}

	ref := v.GatewayOrderID
	if ref == "" {
		ref = v.TransactionID
	}

	o, err := s.orders.GetByTransactionID(ctx, ref)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return o, err
	}

	// The initiation annotation is best-effort; ask the gateway.
	resolver, ok := gw.(payment.OrderResolver)
	if !ok || v.GatewayOrderID == "" {
		return nil, err
	}
	orderID, amount, rerr := resolver.ResolveOrder(ctx, v.GatewayOrderID)
	if rerr != nil {
		return nil, rerr
	}
	if !v.HasAmount && amount > 0 {
		v.AmountPaise = amount
		v.HasAmount = true
	}
	return s.orders.GetByID(ctx, orderID)
}

// afterOutcome moves stock to match the payment outcome once the order is in
// the matching state. Errors never fail settlement.
func (s *Service) afterOutcome(ctx context.Context, orderID string, outcome payment.Outcome, orderMatches bool) {
	if !orderMatches {
		return
	}
	switch outcome {
	case payment.OutcomeSuccess:
		if _, err := s.stock.ConfirmOrderReservations(ctx, orderID); err != nil {
			s.metrics.Reconcile.Inc()
			logger.FromCtx(ctx).Error("payment captured but stock ledger needs reconciliation",
				zap.String("layer", "settlement"),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
	case payment.OutcomeFailure:
		s.stock.ReleaseOrderReservations(ctx, orderID)
	}
}

// invalidateStatus drops the cached status entry before the caller is
// answered, so the status page falls through to the database. The warm-up
// Set in announce runs later and may be dropped when the runner is busy.
func (s *Service) invalidateStatus(ctx context.Context, orderID string) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		logger.FromCtx(ctx).Warn("failed to invalidate order status cache",
			zap.String("layer", "settlement"),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

func (s *Service) announce(ctx context.Context, o *order.Order, provider payment.Provider, v *payment.Verified, out order.Outcome) {
	entry := cache.OrderStatus{
		OrderID:       o.ID,
		Status:        string(out.Status),
		PaymentStatus: string(out.PaymentStatus),
		UpdatedAt:     time.Now(),
	}
	s.runner.Go(ctx, "cache.order_status", func(ctx context.Context) error {
		return s.cache.Set(ctx, entry)
	})

	amount := v.AmountPaise
	if !v.HasAmount {
		amount = payment.ToMinorUnits(o.Billing.GrandTotal)
	}
	ev, err := events.NewEnvelope(events.EventPaymentSettled, eventProducer, logger.RequestIDFrom(ctx), o.ID,
		events.PaymentSettledPayload{
			OrderID:       o.ID,
			Gateway:       string(provider),
			TransactionID: v.TransactionID,
			Outcome:       string(v.Outcome),
			AmountPaise:   amount,
		})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to build settlement event", zap.Error(err))
		return
	}
	s.runner.Go(ctx, "events."+events.EventPaymentSettled, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, ev)
	})
}
