package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"storefront-be/internal/apperr"
	"storefront-be/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func razorpayConfig() config.Razorpay {
	return config.Razorpay{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		APIURL:    "https://rzp.test",
		Currency:  "INR",
	}
}

func rzpSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpay_CreateGatewayOrder(t *testing.T) {
	cfg := razorpayConfig()
	gw := NewRazorpayGateway(cfg).(*razorpayGateway)
	req := CreateRequest{OrderID: testOrderID, UserID: 7, Amount: decimal.RequireFromString("627")}

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "https://rzp.test/v1/orders", r.URL.String())

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, cfg.KeyID, user)
			assert.Equal(t, cfg.KeySecret, pass)

			var body razorpayOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, int64(62700), body.Amount)
			assert.Equal(t, "INR", body.Currency)
			assert.Equal(t, testOrderID, body.Receipt)

			return jsonResponse(http.StatusOK, `{"id":"order_Rzp1","entity":"order","amount":62700,"currency":"INR","receipt":"`+testOrderID+`","status":"created"}`)
		})

		res, err := gw.CreateGatewayOrder(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "order_Rzp1", res.GatewayOrderID)
		assert.Equal(t, "order_Rzp1", res.TransactionID)
		assert.Equal(t, cfg.KeyID, res.KeyID)
		assert.Equal(t, int64(62700), res.AmountPaise)
	})

	t.Run("Gateway error", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnauthorized, `{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`)
		})

		_, err := gw.CreateGatewayOrder(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrGateway)
	})

	t.Run("Missing keys", func(t *testing.T) {
		_, err := NewRazorpayGateway(config.Razorpay{}).CreateGatewayOrder(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})
}

func TestRazorpay_VerifyNotification(t *testing.T) {
	cfg := razorpayConfig()
	gw := NewRazorpayGateway(cfg)
	ctx := context.Background()

	t.Run("Valid signature", func(t *testing.T) {
		v, err := gw.VerifyNotification(ctx, Notification{
			Provider:       ProviderRazorpay,
			GatewayOrderID: "order_Rzp1",
			PaymentID:      "pay_Rzp1",
			Signature:      rzpSignature(cfg.KeySecret, "order_Rzp1", "pay_Rzp1"),
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, v.Outcome)
		assert.Equal(t, "pay_Rzp1", v.TransactionID)
		assert.Equal(t, "order_Rzp1", v.GatewayOrderID)
		assert.Empty(t, v.OrderID)
		assert.False(t, v.HasAmount)
	})

	t.Run("Tampered signature", func(t *testing.T) {
		sig := []byte(rzpSignature(cfg.KeySecret, "order_Rzp1", "pay_Rzp1"))
		sig[0] ^= 1

		_, err := gw.VerifyNotification(ctx, Notification{
			Provider:       ProviderRazorpay,
			GatewayOrderID: "order_Rzp1",
			PaymentID:      "pay_Rzp1",
			Signature:      string(sig),
		})
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Signature for another order", func(t *testing.T) {
		_, err := gw.VerifyNotification(ctx, Notification{
			Provider:       ProviderRazorpay,
			GatewayOrderID: "order_Rzp2",
			PaymentID:      "pay_Rzp1",
			Signature:      rzpSignature(cfg.KeySecret, "order_Rzp1", "pay_Rzp1"),
		})
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Missing fields", func(t *testing.T) {
		_, err := gw.VerifyNotification(ctx, Notification{Provider: ProviderRazorpay, PaymentID: "pay_Rzp1"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestRazorpay_ResolveOrder(t *testing.T) {
	gw := NewRazorpayGateway(razorpayConfig()).(*razorpayGateway)
	var resolver OrderResolver = gw

	t.Run("Receipt carries order id", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "https://rzp.test/v1/orders/order_Rzp1", r.URL.String())
			return jsonResponse(http.StatusOK, `{"id":"order_Rzp1","amount":62700,"receipt":"`+testOrderID+`"}`)
		})

		orderID, amount, err := resolver.ResolveOrder(context.Background(), "order_Rzp1")
		require.NoError(t, err)
		assert.Equal(t, testOrderID, orderID)
		assert.Equal(t, int64(62700), amount)
	})

	t.Run("Unknown order", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`)
		})

		_, _, err := resolver.ResolveOrder(context.Background(), "order_missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
