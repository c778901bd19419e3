package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"storefront-be/internal/apperr"
	"storefront-be/internal/config"
	"storefront-be/internal/logger"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

const phonePePayPath = "/pg/v1/pay"

type phonePeGateway struct {
	cfg        config.PhonePe
	httpClient *http.Client
}

func NewPhonePeGateway(cfg config.PhonePe) Gateway {
	if cfg.MerchantID == "" || cfg.SaltKey == "" {
		logger.L().Warn("PhonePe credentials are empty, initiation will be refused")
	}
	return &phonePeGateway{cfg: cfg, httpClient: newHTTPClient()}
}

func (p *phonePeGateway) Provider() Provider { return ProviderPhonePe }

func (p *phonePeGateway) configured() error {
	if p.cfg.MerchantID == "" || p.cfg.SaltKey == "" || p.cfg.SaltIndex == "" {
		return apperr.Configuration("phonepe merchant credentials are not configured")
	}
	return nil
}

// checksum is PhonePe's X-VERIFY value for payload.
func (p *phonePeGateway) checksum(payload string) string {
	sum := sha256.Sum256([]byte(payload + p.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}

func (p *phonePeGateway) checksumMatches(payload, got string) bool {
	want := p.checksum(payload)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(strings.TrimSpace(got)))) == 1
}

type phonePePayRequest struct {
	MerchantID            string                   `json:"merchantId"`
	MerchantTransactionID string                   `json:"merchantTransactionId"`
	MerchantUserID        string                   `json:"merchantUserId"`
	Amount                int64                    `json:"amount"`
	RedirectURL           string                   `json:"redirectUrl"`
	RedirectMode          string                   `json:"redirectMode"`
	CallbackURL           string                   `json:"callbackUrl"`
	MobileNumber          string                   `json:"mobileNumber,omitempty"`
	PaymentInstrument     phonePePaymentInstrument `json:"paymentInstrument"`
}

type phonePePaymentInstrument struct {
	Type string `json:"type"`
}

type phonePePayResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (p *phonePeGateway) CreateGatewayOrder(ctx context.Context, req CreateRequest) (*GatewayOrder, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}

	txnID := utils.GenerateMerchantTransactionID(req.OrderID)
	amount := ToMinorUnits(req.Amount)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "PhonePe.CreateGatewayOrder"),
		zap.String("order_id", req.OrderID),
		zap.String("merchant_transaction_id", txnID),
		zap.Int64("amount_paise", amount),
	)

	payload, err := json.Marshal(phonePePayRequest{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: txnID,
		MerchantUserID:        "MUID" + strconv.FormatUint(uint64(req.UserID), 10),
		Amount:                amount,
		RedirectURL:           p.cfg.RedirectURL,
		RedirectMode:          "POST",
		CallbackURL:           p.cfg.CallbackURL,
		MobileNumber:          utils.NormalizePhoneIN(req.Customer.Phone),
		PaymentInstrument:     phonePePaymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal phonepe payload: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, fmt.Errorf("marshal phonepe request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.cfg.APIURL, "/")+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build phonepe request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-VERIFY", p.checksum(encoded+phonePePayPath))

	log.Info("sending pay request to PhonePe")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		log.Error("PhonePe request failed", zap.Error(err))
		return nil, &apperr.Error{Kind: apperr.KindGateway, Message: "phonepe request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindGateway, Message: "failed to read phonepe response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("PhonePe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody),
		)
		return nil, apperr.Gateway(respBody, "phonepe returned status %d", resp.StatusCode)
	}

	var res phonePePayResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		log.Error("failed decoding PhonePe response", zap.Error(err))
		return nil, apperr.Gateway(respBody, "phonepe returned an unreadable response")
	}

	redirect := res.Data.InstrumentResponse.RedirectInfo.URL
	if !res.Success || redirect == "" {
		log.Error("PhonePe refused pay request",
			zap.String("code", res.Code),
			zap.ByteString("response", respBody),
		)
		return nil, apperr.Gateway(respBody, "phonepe refused the payment request: %s", res.Code)
	}

	log.Info("PhonePe pay page created")

	return &GatewayOrder{
		Provider:       ProviderPhonePe,
		OrderID:        req.OrderID,
		GatewayOrderID: txnID,
		TransactionID:  txnID,
		RedirectURL:    redirect,
		AmountPaise:    amount,
		Currency:       "INR",
	}, nil
}

type phonePeCallback struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
		PaymentInstrument     struct {
			Type string `json:"type"`
			UTR  string `json:"utr"`
		} `json:"paymentInstrument"`
	} `json:"data"`
}

// VerifyNotification authenticates either PhonePe message shape: the browser
// redirect (form fields plus checksum) or the server callback (base64
// response plus X-VERIFY).
func (p *phonePeGateway) VerifyNotification(ctx context.Context, n Notification) (*Verified, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	if n.Response != "" {
		return p.verifyCallback(ctx, n)
	}
	return p.verifyRedirect(ctx, n)
}

func (p *phonePeGateway) verifyRedirect(ctx context.Context, n Notification) (*Verified, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "PhonePe.verifyRedirect"),
		zap.String("transaction_id", n.TransactionID),
	)

	if n.TransactionID == "" || n.Code == "" {
		return nil, apperr.Validation("missing transaction id or status code")
	}
	if n.Checksum == "" {
		log.Warn("redirect without checksum rejected")
		return nil, apperr.New(apperr.KindSignatureInvalid, "missing checksum")
	}

	signed := n.Code + n.MerchantID + n.TransactionID + n.Amount + n.ProviderReferenceID
	if !p.checksumMatches(signed, n.Checksum) {
		log.Warn("redirect checksum mismatch")
		return nil, apperr.New(apperr.KindSignatureInvalid, "checksum mismatch")
	}
	if n.MerchantID != p.cfg.MerchantID {
		log.Warn("redirect for foreign merchant", zap.String("merchant_id", n.MerchantID))
		return nil, apperr.New(apperr.KindSignatureInvalid, "merchant mismatch")
	}

	v := &Verified{
		Provider:              ProviderPhonePe,
		TransactionID:         n.TransactionID,
		MerchantTransactionID: n.TransactionID,
		ProviderReferenceID:   n.ProviderReferenceID,
		Code:                  n.Code,
		Outcome:               ClassifyCode(n.Code),
		Raw:                   n.Raw,
	}
	if orderID, ok := utils.ParseMerchantTransactionID(n.TransactionID); ok {
		v.OrderID = orderID
	}
	if n.Amount != "" {
		amount, err := strconv.ParseInt(n.Amount, 10, 64)
		if err != nil {
			return nil, apperr.Validation("invalid amount %q", n.Amount)
		}
		v.AmountPaise = amount
		v.HasAmount = true
	}
	return v, nil
}

func (p *phonePeGateway) verifyCallback(ctx context.Context, n Notification) (*Verified, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "PhonePe.verifyCallback"),
	)

	if n.Checksum == "" || !p.checksumMatches(n.Response, n.Checksum) {
		log.Warn("callback checksum mismatch")
		return nil, apperr.New(apperr.KindSignatureInvalid, "checksum mismatch")
	}

	decoded, err := base64.StdEncoding.DecodeString(n.Response)
	if err != nil {
		return nil, apperr.Validation("callback response is not base64")
	}

	var cb phonePeCallback
	if err := json.Unmarshal(decoded, &cb); err != nil {
		return nil, apperr.Validation("callback response is not valid JSON")
	}

	d := cb.Data
	if d.MerchantTransactionID == "" {
		return nil, apperr.Validation("callback has no merchant transaction id")
	}
	if d.MerchantID != "" && d.MerchantID != p.cfg.MerchantID {
		log.Warn("callback for foreign merchant", zap.String("merchant_id", d.MerchantID))
		return nil, apperr.New(apperr.KindSignatureInvalid, "merchant mismatch")
	}

	v := &Verified{
		Provider:              ProviderPhonePe,
		TransactionID:         d.MerchantTransactionID,
		MerchantTransactionID: d.MerchantTransactionID,
		ProviderReferenceID:   d.TransactionID,
		Code:                  cb.Code,
		Outcome:               ClassifyCode(cb.Code),
		AmountPaise:           d.Amount,
		HasAmount:             d.Amount > 0,
		Raw:                   json.RawMessage(decoded),
	}
	if d.PaymentInstrument.UTR != "" {
		v.UPIReference = utils.StrPtr(d.PaymentInstrument.UTR)
	}
	if orderID, ok := utils.ParseMerchantTransactionID(d.MerchantTransactionID); ok {
		v.OrderID = orderID
	}
	return v, nil
}
