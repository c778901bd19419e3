package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront-be/internal/apperr"
	"storefront-be/internal/config"
	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type razorpayGateway struct {
	cfg        config.Razorpay
	httpClient *http.Client
}

// NewRazorpayGateway returns the embedded-checkout adapter. It also
// implements OrderResolver.
func NewRazorpayGateway(cfg config.Razorpay) Gateway {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		logger.L().Warn("Razorpay credentials are empty, initiation will be refused")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &razorpayGateway{cfg: cfg, httpClient: newHTTPClient()}
}

func (g *razorpayGateway) Provider() Provider { return ProviderRazorpay }

func (g *razorpayGateway) configured() error {
	if g.cfg.KeyID == "" || g.cfg.KeySecret == "" {
		return apperr.Configuration("razorpay keys are not configured")
	}
	return nil
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (g *razorpayGateway) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal razorpay request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(g.cfg.APIURL, "/")+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build razorpay request: %w", err)
	}
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, &apperr.Error{Kind: apperr.KindGateway, Message: "razorpay request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, &apperr.Error{Kind: apperr.KindGateway, Message: "failed to read razorpay response", Err: err}
	}
	return respBody, resp.StatusCode, nil
}

func (g *razorpayGateway) CreateGatewayOrder(ctx context.Context, req CreateRequest) (*GatewayOrder, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}

	amount := ToMinorUnits(req.Amount)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Razorpay.CreateGatewayOrder"),
		zap.String("order_id", req.OrderID),
		zap.Int64("amount_paise", amount),
	)

	log.Info("creating Razorpay order")

	body, status, err := g.do(ctx, http.MethodPost, "/v1/orders", razorpayOrderRequest{
		Amount:   amount,
		Currency: g.cfg.Currency,
		Receipt:  req.OrderID,
		Notes: map[string]string{
			"order_id": req.OrderID,
			"user_id":  strconv.FormatUint(uint64(req.UserID), 10),
		},
	})
	if err != nil {
		log.Error("Razorpay request failed", zap.Error(err))
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		log.Error("Razorpay returned non-success status",
			zap.Int("status", status),
			zap.ByteString("response", body),
		)
		return nil, apperr.Gateway(body, "razorpay returned status %d", status)
	}

	var res razorpayOrder
	if err := json.Unmarshal(body, &res); err != nil || res.ID == "" {
		log.Error("failed decoding Razorpay order", zap.Error(err))
		return nil, apperr.Gateway(body, "razorpay returned an unreadable order")
	}

	log.Info("Razorpay order created", zap.String("razorpay_order_id", res.ID))

	return &GatewayOrder{
		Provider:       ProviderRazorpay,
		OrderID:        req.OrderID,
		GatewayOrderID: res.ID,
		TransactionID:  res.ID,
		KeyID:          g.cfg.KeyID,
		AmountPaise:    res.Amount,
		Currency:       res.Currency,
	}, nil
}

// Signature is Razorpay's checkout signature for a gateway order and payment.
func (g *razorpayGateway) Signature(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.KeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyNotification checks the checkout handler signature. A verified
// Razorpay notification is always a successful capture.
func (g *razorpayGateway) VerifyNotification(ctx context.Context, n Notification) (*Verified, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Razorpay.VerifyNotification"),
		zap.String("razorpay_order_id", n.GatewayOrderID),
		zap.String("razorpay_payment_id", n.PaymentID),
	)

	if n.GatewayOrderID == "" || n.PaymentID == "" || n.Signature == "" {
		return nil, apperr.Validation("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}

	want := g.Signature(n.GatewayOrderID, n.PaymentID)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(n.Signature))) {
		log.Warn("razorpay signature mismatch")
		return nil, apperr.New(apperr.KindSignatureInvalid, "signature mismatch")
	}

	return &Verified{
		Provider:            ProviderRazorpay,
		TransactionID:       n.PaymentID,
		GatewayOrderID:      n.GatewayOrderID,
		ProviderReferenceID: n.PaymentID,
		Code:                CodePaymentSuccess,
		Outcome:             OutcomeSuccess,
		Raw:                 n.Raw,
	}, nil
}

// ResolveOrder reads the receipt of a Razorpay order, which carries our order
// id.
func (g *razorpayGateway) ResolveOrder(ctx context.Context, gatewayOrderID string) (string, int64, error) {
	if err := g.configured(); err != nil {
		return "", 0, err
	}

	body, status, err := g.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(gatewayOrderID), nil)
	if err != nil {
		return "", 0, err
	}
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		return "", 0, apperr.NotFound("razorpay order %s not found", gatewayOrderID)
	}
	if status != http.StatusOK {
		return "", 0, apperr.Gateway(body, "razorpay returned status %d", status)
	}

	var res razorpayOrder
	if err := json.Unmarshal(body, &res); err != nil {
		return "", 0, apperr.Gateway(body, "razorpay returned an unreadable order")
	}
	if res.Receipt == "" {
		return "", 0, apperr.NotFound("razorpay order %s has no receipt", gatewayOrderID)
	}
	return res.Receipt, res.Amount, nil
}
