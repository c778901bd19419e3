package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/settlement"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// Settler applies verified gateway notifications.
type Settler interface {
	Settle(ctx context.Context, n payment.Notification) (settlement.Result, error)
}

type Handler struct {
	settler   Settler
	statusURL string
}

// NewWebhookHandler serves gateway notifications. Browser redirects end on
// statusURL with the order id and outcome in the query.
func NewWebhookHandler(settler Settler, statusURL string) *Handler {
	return &Handler{settler: settler, statusURL: statusURL}
}

type phonePeCallbackBody struct {
	Response string `json:"response"`
}

// PhonePeWebhook handles both PhonePe deliveries on one route: the server
// callback (JSON body signed in X-VERIFY) and the browser redirect (form
// fields signed in a checksum field).
func (h *Handler) PhonePeWebhook(w http.ResponseWriter, r *http.Request) {
	if xv := r.Header.Get("X-VERIFY"); xv != "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.phonePeCallback(w, r, xv)
		return
	}
	h.phonePeRedirect(w, r)
}

func (h *Handler) phonePeCallback(w http.ResponseWriter, r *http.Request, checksum string) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "phonePeCallback"),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var cb phonePeCallbackBody
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	res, err := h.settler.Settle(ctx, payment.Notification{
		Provider: payment.ProviderPhonePe,
		Response: cb.Response,
		Checksum: checksum,
		Raw:      body,
	})
	if err != nil {
		status := apperr.HTTPStatus(err)
		if errors.Is(err, apperr.ErrSignatureInvalid) {
			status = http.StatusUnauthorized
		}
		log.Warn("callback not settled", zap.Int("status", status), zap.Error(err))
		utils.WriteJSONError(w, apperr.PublicMessage(err), status)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"order_id": res.OrderID,
		"status":   string(res.Outcome),
	})
}

func (h *Handler) phonePeRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "phonePeRedirect"),
	)

	n, err := readRedirectFields(w, r)
	if err != nil {
		utils.WriteJSONError(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}

	res, err := h.settler.Settle(ctx, n)
	if err != nil {
		log.Warn("redirect not settled", zap.Error(err))
		orderID, _ := utils.ParseMerchantTransactionID(n.TransactionID)
		http.Redirect(w, r, h.statusPage(orderID, "error"), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.statusPage(res.OrderID, string(res.Outcome)), http.StatusSeeOther)
}

type phonePeRedirectBody struct {
	Code                string      `json:"code"`
	MerchantID          string      `json:"merchantId"`
	TransactionID       string      `json:"transactionId"`
	Amount              json.Number `json:"amount"`
	ProviderReferenceID string      `json:"providerReferenceId"`
	Checksum            string      `json:"checksum"`
}

// readRedirectFields accepts the redirect fields as query parameters, a form
// body or a JSON body.
func readRedirectFields(w http.ResponseWriter, r *http.Request) (payment.Notification, error) {
	n := payment.Notification{Provider: payment.ProviderPhonePe}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return n, err
		}
		var b phonePeRedirectBody
		if err := json.Unmarshal(body, &b); err != nil {
			return n, err
		}
		n.Code = b.Code
		n.MerchantID = b.MerchantID
		n.TransactionID = b.TransactionID
		n.Amount = b.Amount.String()
		n.ProviderReferenceID = b.ProviderReferenceID
		n.Checksum = b.Checksum
		n.Raw = body
		return n, nil
	}

	if err := r.ParseForm(); err != nil {
		return n, err
	}
	n.Code = r.Form.Get("code")
	n.MerchantID = r.Form.Get("merchantId")
	n.TransactionID = r.Form.Get("transactionId")
	n.Amount = r.Form.Get("amount")
	n.ProviderReferenceID = r.Form.Get("providerReferenceId")
	n.Checksum = r.Form.Get("checksum")
	if raw, err := json.Marshal(r.Form); err == nil {
		n.Raw = raw
	}
	return n, nil
}

type razorpayVerifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// RazorpayVerify settles an embedded checkout from the signature the checkout
// widget returned to the browser.
func (h *Handler) RazorpayVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "RazorpayVerify"),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req razorpayVerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	res, err := h.settler.Settle(ctx, payment.Notification{
		Provider:       payment.ProviderRazorpay,
		GatewayOrderID: req.OrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
		Raw:            body,
	})
	if err != nil {
		log.Warn("verify not settled", zap.Error(err))
		utils.WriteJSONError(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
		return
	}

	log.Info("verify settled",
		zap.String("order_id", res.OrderID),
		zap.Bool("duplicate", res.Kind == settlement.KindDuplicate),
	)
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  res.Success(),
		"order_id": res.OrderID,
		"status":   string(res.Outcome),
	})
}

func (h *Handler) statusPage(orderID, status string) string {
	q := url.Values{}
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	q.Set("status", status)
	return h.statusURL + "?" + q.Encode()
}
