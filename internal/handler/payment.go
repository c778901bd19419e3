package handler

import (
	"context"
	"errors"
	"net/http"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// GatewayOrderCreator opens a gateway order for a stored order.
type GatewayOrderCreator interface {
	CreateGatewayOrder(ctx context.Context, provider payment.Provider, orderID string, userID uint) (*payment.GatewayOrder, error)
}

type PaymentHandler struct {
	bridge   GatewayOrderCreator
	validate *validator.Validate
}

func NewPaymentHandler(bridge GatewayOrderCreator) *PaymentHandler {
	return &PaymentHandler{bridge: bridge, validate: validator.New()}
}

// The amount is never accepted from the client; it comes from the order.
type initiateRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// Initiate starts a PhonePe pay-page checkout and returns the page to send
// the browser to.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	h.createGatewayOrder(w, r, payment.ProviderPhonePe, "Initiate")
}

// RazorpayCreateOrder opens a Razorpay order for the embedded checkout.
func (h *PaymentHandler) RazorpayCreateOrder(w http.ResponseWriter, r *http.Request) {
	h.createGatewayOrder(w, r, payment.ProviderRazorpay, "RazorpayCreateOrder")
}

func (h *PaymentHandler) createGatewayOrder(w http.ResponseWriter, r *http.Request, provider payment.Provider, method string) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", method),
	)

	var req initiateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, log, apperr.Validation("order_id must be a valid order id"))
		return
	}

	userID, _ := utils.GetUserIDFromContext(ctx)
	gwOrder, err := h.bridge.CreateGatewayOrder(ctx, provider, req.OrderID, userID)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && len(appErr.Detail) > 0 {
			log.Warn("gateway rejected order", zap.ByteString("gateway_body", appErr.Detail))
		}
		writeError(w, log, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    gwOrder,
	})
}
