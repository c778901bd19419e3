package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"storefront-be/internal/apperr"
	"storefront-be/internal/config"
	"storefront-be/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper stubs the gateway HTTP API.
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

const testOrderID = "3f1c2a9e-8b7d-4c6e-9a5f-1d2e3c4b5a69"

func phonePeConfig() config.PhonePe {
	return config.PhonePe{
		MerchantID:  "PGTESTPAYUAT",
		SaltKey:     "099eb0cd-02cf-4e2a-8aca-3e6c6aff0399",
		SaltIndex:   "1",
		APIURL:      "https://pg.test",
		RedirectURL: "https://api.shop.test/payments/webhook",
		CallbackURL: "https://api.shop.test/payments/webhook",
	}
}

func sha256Checksum(payload, salt, idx string) string {
	sum := sha256.Sum256([]byte(payload + salt))
	return hex.EncodeToString(sum[:]) + "###" + idx
}

func TestPhonePe_CreateGatewayOrder(t *testing.T) {
	cfg := phonePeConfig()
	gw := NewPhonePeGateway(cfg).(*phonePeGateway)
	req := CreateRequest{
		OrderID:  testOrderID,
		UserID:   7,
		Amount:   decimal.RequireFromString("627.00"),
		Customer: Customer{Name: "Asha", Phone: "+91 98765 43210"},
	}

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "https://pg.test/pg/v1/pay", r.URL.String())

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, sha256Checksum(body["request"]+"/pg/v1/pay", cfg.SaltKey, "1"), r.Header.Get("X-VERIFY"))

			decoded, err := base64.StdEncoding.DecodeString(body["request"])
			require.NoError(t, err)
			var payload phonePePayRequest
			require.NoError(t, json.Unmarshal(decoded, &payload))
			assert.Equal(t, int64(62700), payload.Amount)
			assert.Equal(t, "MUID7", payload.MerchantUserID)
			assert.Equal(t, "9876543210", payload.MobileNumber)
			assert.Equal(t, "POST", payload.RedirectMode)
			assert.Equal(t, "PAY_PAGE", payload.PaymentInstrument.Type)

			orderID, ok := utils.ParseMerchantTransactionID(payload.MerchantTransactionID)
			assert.True(t, ok)
			assert.Equal(t, testOrderID, orderID)

			return jsonResponse(http.StatusOK, `{
				"success": true,
				"code": "PAYMENT_INITIATED",
				"data": {"instrumentResponse": {"type": "PAY_PAGE", "redirectInfo": {"url": "https://mercury.test/pay/abc", "method": "GET"}}}
			}`)
		})

		res, err := gw.CreateGatewayOrder(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "https://mercury.test/pay/abc", res.RedirectURL)
		assert.Equal(t, int64(62700), res.AmountPaise)
		assert.Equal(t, res.GatewayOrderID, res.TransactionID)
		assert.True(t, strings.HasPrefix(res.TransactionID, strings.ReplaceAll(testOrderID, "-", "")))
	})

	t.Run("Gateway error keeps raw body", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusBadRequest, `{"success":false,"code":"BAD_REQUEST"}`)
		})

		_, err := gw.CreateGatewayOrder(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrGateway)

		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, string(appErr.Detail), "BAD_REQUEST")
	})

	t.Run("Success false", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{"success":false,"code":"INTERNAL_SERVER_ERROR","data":{}}`)
		})

		_, err := gw.CreateGatewayOrder(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrGateway)
	})

	t.Run("Transport failure", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := gw.CreateGatewayOrder(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrGateway)
	})

	t.Run("Missing credentials fail before any call", func(t *testing.T) {
		bare := NewPhonePeGateway(config.PhonePe{APIURL: "https://pg.test"}).(*phonePeGateway)
		bare.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			t.Fatal("no request expected")
			return nil
		})

		_, err := bare.CreateGatewayOrder(context.Background(), req)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})
}

func signedRedirect(cfg config.PhonePe, code, txnID, amount string) Notification {
	n := Notification{
		Provider:            ProviderPhonePe,
		Code:                code,
		MerchantID:          cfg.MerchantID,
		TransactionID:       txnID,
		Amount:              amount,
		ProviderReferenceID: "T2409011234",
	}
	n.Checksum = sha256Checksum(n.Code+n.MerchantID+n.TransactionID+n.Amount+n.ProviderReferenceID, cfg.SaltKey, cfg.SaltIndex)
	return n
}

func TestPhonePe_VerifyRedirect(t *testing.T) {
	cfg := phonePeConfig()
	gw := NewPhonePeGateway(cfg)
	txnID := utils.GenerateMerchantTransactionID(testOrderID)
	ctx := context.Background()

	t.Run("Valid success", func(t *testing.T) {
		v, err := gw.VerifyNotification(ctx, signedRedirect(cfg, "PAYMENT_SUCCESS", txnID, "62700"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, v.Outcome)
		assert.Equal(t, txnID, v.TransactionID)
		assert.Equal(t, testOrderID, v.OrderID)
		assert.True(t, v.HasAmount)
		assert.Equal(t, int64(62700), v.AmountPaise)
	})

	t.Run("Pending and failure codes", func(t *testing.T) {
		v, err := gw.VerifyNotification(ctx, signedRedirect(cfg, "PAYMENT_PENDING", txnID, "62700"))
		require.NoError(t, err)
		assert.Equal(t, OutcomePending, v.Outcome)

		v, err = gw.VerifyNotification(ctx, signedRedirect(cfg, "PAYMENT_ERROR", txnID, "62700"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailure, v.Outcome)
	})

	t.Run("Tampered code", func(t *testing.T) {
		n := signedRedirect(cfg, "PAYMENT_ERROR", txnID, "62700")
		n.Code = "PAYMENT_SUCCESS"

		_, err := gw.VerifyNotification(ctx, n)
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Tampered amount", func(t *testing.T) {
		n := signedRedirect(cfg, "PAYMENT_SUCCESS", txnID, "62700")
		n.Amount = "100"

		_, err := gw.VerifyNotification(ctx, n)
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Missing checksum", func(t *testing.T) {
		n := signedRedirect(cfg, "PAYMENT_SUCCESS", txnID, "62700")
		n.Checksum = ""

		_, err := gw.VerifyNotification(ctx, n)
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Missing fields", func(t *testing.T) {
		_, err := gw.VerifyNotification(ctx, Notification{Provider: ProviderPhonePe, Code: "PAYMENT_SUCCESS"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestPhonePe_VerifyCallback(t *testing.T) {
	cfg := phonePeConfig()
	gw := NewPhonePeGateway(cfg)
	txnID := utils.GenerateMerchantTransactionID(testOrderID)
	ctx := context.Background()

	body := `{"success":true,"code":"PAYMENT_SUCCESS","message":"Your payment is successful.",` +
		`"data":{"merchantId":"PGTESTPAYUAT","merchantTransactionId":"` + txnID + `","transactionId":"T2409011234",` +
		`"amount":62700,"state":"COMPLETED","responseCode":"SUCCESS","paymentInstrument":{"type":"UPI","utr":"206378866112"}}}`
	response := base64.StdEncoding.EncodeToString([]byte(body))

	t.Run("Valid", func(t *testing.T) {
		v, err := gw.VerifyNotification(ctx, Notification{
			Provider: ProviderPhonePe,
			Response: response,
			Checksum: sha256Checksum(response, cfg.SaltKey, cfg.SaltIndex),
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, v.Outcome)
		assert.Equal(t, txnID, v.TransactionID)
		assert.Equal(t, "T2409011234", v.ProviderReferenceID)
		assert.Equal(t, testOrderID, v.OrderID)
		assert.Equal(t, int64(62700), v.AmountPaise)
		require.NotNil(t, v.UPIReference)
		assert.Equal(t, "206378866112", *v.UPIReference)
		assert.JSONEq(t, body, string(v.Raw))
	})

	t.Run("Bad checksum", func(t *testing.T) {
		_, err := gw.VerifyNotification(ctx, Notification{
			Provider: ProviderPhonePe,
			Response: response,
			Checksum: sha256Checksum(response, "wrong-salt", cfg.SaltIndex),
		})
		assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
	})

	t.Run("Signed garbage", func(t *testing.T) {
		garbage := base64.StdEncoding.EncodeToString([]byte("not json"))
		_, err := gw.VerifyNotification(ctx, Notification{
			Provider: ProviderPhonePe,
			Response: garbage,
			Checksum: sha256Checksum(garbage, cfg.SaltKey, cfg.SaltIndex),
		})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
