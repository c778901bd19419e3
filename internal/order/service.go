package order

import (
	"context"
	"errors"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/async"
	"storefront-be/internal/cache"
	"storefront-be/internal/events"
	"storefront-be/internal/logger"
	"storefront-be/internal/product"
	"storefront-be/internal/stock"
	"storefront-be/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventProducer = "storefront-be"

// StockReserver is the part of the reservation manager order intake and
// cancellation need.
type StockReserver interface {
	ReserveStock(ctx context.Context, req stock.ReserveRequest) (string, error)
	ReleaseAll(ctx context.Context, reservationIDs []string)
	ReleaseOrderReservations(ctx context.Context, orderID string) int
}

type Service interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, orderID string, userID uint) (*Order, error)
	CancelOrder(ctx context.Context, orderID string, userID uint) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*StatusView, error)
}

type Deps struct {
	Repo      Repository
	Products  product.Repository
	Stock     StockReserver
	Runner    *async.Runner
	Publisher events.Publisher
	Cache     cache.StatusCache
	Billing   BillingConfig
}

type service struct {
	repo      Repository
	products  product.Repository
	stock     StockReserver
	runner    *async.Runner
	publisher events.Publisher
	cache     cache.StatusCache
	billing   BillingConfig
	validate  *validator.Validate
}

func NewService(d Deps) Service {
	s := &service{
		repo:      d.Repo,
		products:  d.Products,
		stock:     d.Stock,
		runner:    d.Runner,
		publisher: d.Publisher,
		cache:     d.Cache,
		billing:   d.Billing,
		validate:  newValidator(),
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
	if s.billing.ShippingFlatRate.IsZero() && s.billing.FreeShippingThreshold.IsZero() {
		s.billing = DefaultBillingConfig()
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Uint("user_id", in.UserID),
	)

	if len(in.Items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	for i, ci := range in.Items {
		if ci.VariantID == "" {
			return nil, apperr.Validation("item %d: variant id is required", i+1)
		}
		if ci.Quantity <= 0 {
			return nil, apperr.Validation("item %d: quantity must be greater than zero", i+1)
		}
	}

	in.Customer.Phone = utils.NormalizePhoneIN(in.Customer.Phone)
	if err := validateCustomer(s.validate, in.Customer); err != nil {
		log.Warn("customer info rejected", zap.Error(err))
		return nil, err
	}

	items, err := s.buildItems(ctx, in.Items)
	if err != nil {
		log.Warn("cart rejected", zap.Error(err))
		return nil, err
	}

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Customer:      in.Customer,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items:         items,
	}
	o.Billing = ComputeBilling(o.Items, s.billing)
	log = log.With(zap.String("order_id", o.ID))

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	if err := s.reserve(ctx, o); err != nil {
		log.Warn("stock reservation failed, order rolled back", zap.Error(err))
		if delErr := s.repo.Delete(ctx, o.ID); delErr != nil {
			log.Error("failed to delete order after reservation failure", zap.Error(delErr))
		}
		return nil, err
	}

	s.publish(ctx, events.EventOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		ItemCount:  len(o.Items),
		GrandTotal: o.Billing.GrandTotal.StringFixed(2),
	})
	s.refreshStatus(ctx, o)

	log.Info("order placed",
		zap.String("grand_total", o.Billing.GrandTotal.StringFixed(2)),
		zap.Int("items", len(o.Items)),
	)
	return o, nil
}

// buildItems resolves every cart line against the catalog. Prices always come
// from the catalog, never from the client.
func (s *service) buildItems(ctx context.Context, cart []CartItem) ([]Item, error) {
	ids := make([]string, 0, len(cart))
	for _, ci := range cart {
		ids = append(ids, ci.VariantID)
	}

	variants, err := s.products.GetVariantsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(cart))
	for i, ci := range cart {
		v, ok := variants[ci.VariantID]
		if !ok || !v.IsActive {
			return nil, apperr.Validation("item %d: variant %s not found", i+1, ci.VariantID)
		}
		if !v.Price.IsPositive() {
			return nil, apperr.Validation("item %d: %s has no valid price", i+1, v.ProductName)
		}

		items = append(items, Item{
			ProductID:     v.ProductID,
			VariantID:     v.ID,
			ProductName:   v.ProductName,
			VariantName:   v.Name,
			ImageURL:      v.ImageURL,
			SKU:           v.SKU,
			GSTCategory:   v.GSTCategory,
			BasePrice:     v.Price,
			Quantity:      ci.Quantity,
			Customization: ci.Customization,
		})
	}
	return items, nil
}

// reserve holds stock for every line. On the first failure the holds already
// taken are released.
func (s *service) reserve(ctx context.Context, o *Order) error {
	held := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		id, err := s.stock.ReserveStock(ctx, stock.ReserveRequest{
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UserID:    o.UserID,
			OrderID:   &o.ID,
		})
		if err != nil {
			s.stock.ReleaseAll(ctx, held)
			return err
		}
		held = append(held, id)
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID string, userID uint) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID && !utils.IsAdmin(ctx) {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	return o, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID string, userID uint) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CancelOrder"),
		zap.String("order_id", orderID),
	)

	o, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	// Admins may view any order but only the owner may cancel it.
	if o.UserID != userID {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if o.Status != StatusPending || o.PaymentStatus == PaymentCompleted {
		return nil, apperr.Validation("order can no longer be cancelled")
	}

	ok, err := s.repo.Cancel(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Settled concurrently.
		return nil, apperr.Validation("order can no longer be cancelled")
	}

	released := s.stock.ReleaseOrderReservations(ctx, orderID)

	o.Status = StatusCancelled
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = time.Now()

	s.publish(ctx, events.EventOrderCancelled, o.ID, events.OrderCancelledPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
	})
	s.refreshStatus(ctx, o)

	log.Info("order cancelled", zap.Int("released_reservations", released))
	return o, nil
}

func (s *service) GetOrderStatus(ctx context.Context, orderID string) (*StatusView, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "GetOrderStatus"),
		zap.String("order_id", orderID),
	)

	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	cached, hit, err := s.cache.Get(ctx, orderID)
	if err != nil {
		log.Warn("status cache unavailable", zap.Error(err))
	}
	if hit {
		return &StatusView{
			OrderID:       cached.OrderID,
			Status:        Status(cached.Status),
			PaymentStatus: PaymentStatus(cached.PaymentStatus),
			UpdatedAt:     cached.UpdatedAt,
		}, nil
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, statusEntry(o)); err != nil {
		log.Warn("failed to cache order status", zap.Error(err))
	}
	return &StatusView{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

func statusEntry(o *Order) cache.OrderStatus {
	return cache.OrderStatus{
		OrderID:       o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}
}

func (s *service) refreshStatus(ctx context.Context, o *Order) {
	entry := statusEntry(o)
	s.runner.Go(ctx, "cache.order_status", func(ctx context.Context) error {
		return s.cache.Set(ctx, entry)
	})
}

func (s *service) publish(ctx context.Context, eventType, orderID string, payload any) {
	ev, err := events.NewEnvelope(eventType, eventProducer, logger.RequestIDFrom(ctx), orderID, payload)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to build event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	s.runner.Go(ctx, "events."+eventType, func(ctx context.Context) error {
		if err := s.publisher.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
