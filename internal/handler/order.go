package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// PaymentLister reads an order's payment ledger rows.
type PaymentLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error)
}

type OrderHandler struct {
	svc      order.Service
	payments PaymentLister
}

func NewOrderHandler(svc order.Service, payments PaymentLister) *OrderHandler {
	return &OrderHandler{svc: svc, payments: payments}
}

type paymentView struct {
	Gateway              payment.Provider `json:"gateway"`
	GatewayTransactionID string           `json:"gateway_transaction_id"`
	Status               payment.Status   `json:"status"`
	Amount               decimal.Decimal  `json:"amount"`
	ReceivedAt           time.Time        `json:"received_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
}

type orderDetail struct {
	*order.Order
	Payments []paymentView `json:"payments"`
}

type createOrderRequest struct {
	Items    []order.CartItem   `json:"items"`
	Customer order.CustomerInfo `json:"customer"`
}

// writeError renders err for storefront clients and logs anything that is
// not the caller's fault.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	utils.WriteJSONError(w, apperr.PublicMessage(err), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return false
	}
	return true
}

// CreateOrder turns the caller's cart into a pending order with stock held.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", "CreateOrder"),
	)

	userID, _ := utils.GetUserIDFromContext(ctx)

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.svc.CreateOrder(ctx, order.CreateOrderInput{
		UserID:   userID,
		Items:    req.Items,
		Customer: req.Customer,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("order created", zap.String("order_id", o.ID))
	utils.WriteJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", "GetOrder"),
	)

	userID, _ := utils.GetUserIDFromContext(ctx)
	o, err := h.svc.GetOrder(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, log, err)
		return
	}

	detail := orderDetail{Order: o, Payments: []paymentView{}}
	rows, err := h.payments.ListByOrder(ctx, o.ID)
	if err != nil {
		// The order itself is still worth showing.
		log.Warn("failed to list payments", zap.String("order_id", o.ID), zap.Error(err))
	}
	for _, p := range rows {
		detail.Payments = append(detail.Payments, paymentView{
			Gateway:              p.Gateway,
			GatewayTransactionID: p.GatewayTransactionID,
			Status:               p.Status,
			Amount:               p.Amount,
			ReceivedAt:           p.ReceivedAt,
			CompletedAt:          p.CompletedAt,
		})
	}
	utils.WriteJSON(w, http.StatusOK, detail)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", "CancelOrder"),
	)

	userID, _ := utils.GetUserIDFromContext(ctx)
	o, err := h.svc.CancelOrder(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

// PaymentStatus backs the status page gateways redirect to. It is public:
// the order id is the only thing the page has.
func (h *OrderHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", "PaymentStatus"),
	)

	view, err := h.svc.GetOrderStatus(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}
