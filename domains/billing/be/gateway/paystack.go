package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const paystackDefaultBaseURL = "https://api.paystack.co"

// PaystackConfig configures the Paystack client.
type PaystackConfig struct {
	SecretKey string
	// BaseURL overrides the live API endpoint, used by tests.
	BaseURL string
	Timeout time.Duration
}

// Paystack is the Paystack REST client. Amounts are sent in minor units as
// the API expects.
type Paystack struct {
	http      *resty.Client
	secretKey string
	log       *zap.Logger
}

// NewPaystack constructs a Paystack client.
func NewPaystack(cfg PaystackConfig, log *zap.Logger) *Paystack {
	if cfg.SecretKey == "" {
		panic("paystack secret key is required")
	}
	if log == nil {
		panic("logger is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Paystack{http: client, secretKey: cfg.SecretKey, log: log}
}

func (p *Paystack) Name() string { return "paystack" }

func (p *Paystack) SupportedCurrencies() []string {
	return []string{"NGN", "USD", "GHS", "ZAR", "KES", "XOF"}
}

func (p *Paystack) SupportedPaymentMethods() []string {
	return []string{"card", "bank", "bank_transfer", "mobile_money", "ussd", "eft", "apple_pay", "qr"}
}

// paystackEnvelope is the common response wrapper of the Paystack API.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransactionData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Channel         string `json:"channel"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
}

func (p *Paystack) Initialize(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}

	body := map[string]any{
		"email":     req.Email,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var env paystackEnvelope
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post("/transaction/initialize")
	if err != nil {
		return PaymentResult{}, &Error{Provider: p.Name(), Err: err}
	}
	if resp.IsError() || !env.Status {
		return PaymentResult{}, &Error{Provider: p.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data paystackInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return PaymentResult{}, &Error{Provider: p.Name(), Err: fmt.Errorf("decoding initialize response: %w", err)}
	}

	p.log.Info("paystack transaction initialized",
		zap.String("reference", data.Reference))

	return PaymentResult{
		Succeeded:        true,
		Status:           StatusPending,
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		Message:          env.Message,
		Raw:              env.Data,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (PaymentResult, error) {
	if reference == "" {
		return PaymentResult{}, errors.New("reference is required")
	}

	var env paystackEnvelope
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Get("/transaction/verify/" + reference)
	if err != nil {
		return PaymentResult{}, &Error{Provider: p.Name(), Err: err}
	}
	if resp.IsError() || !env.Status {
		return PaymentResult{}, &Error{Provider: p.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data paystackTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return PaymentResult{}, &Error{Provider: p.Name(), Err: fmt.Errorf("decoding verify response: %w", err)}
	}

	status := paystackStatus(data.Status)
	return PaymentResult{
		Succeeded:            status == StatusCompleted,
		Status:               status,
		Reference:            data.Reference,
		GatewayTransactionID: fmt.Sprintf("%d", data.ID),
		Message:              data.GatewayResponse,
		Raw:                  env.Data,
	}, nil
}

func (p *Paystack) Refund(ctx context.Context, req RefundRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}

	transaction := req.GatewayTransactionID
	if transaction == "" {
		transaction = req.Reference
	}
	body := map[string]any{"transaction": transaction}
	if req.Amount > 0 {
		body["amount"] = req.Amount
	}
	if req.Reason != "" {
		body["merchant_note"] = req.Reason
	}

	var env paystackEnvelope
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post("/refund")
	if err != nil {
		return PaymentResult{}, &Error{Provider: p.Name(), Err: err}
	}
	if resp.IsError() || !env.Status {
		return PaymentResult{}, &Error{Provider: p.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	return PaymentResult{
		Succeeded:            true,
		Status:               StatusRefunded,
		Reference:            req.Reference,
		GatewayTransactionID: req.GatewayTransactionID,
		Message:              env.Message,
		Raw:                  env.Data,
	}, nil
}

func (p *Paystack) FetchTransaction(ctx context.Context, gatewayTransactionID string) (TransactionDetails, error) {
	if gatewayTransactionID == "" {
		return TransactionDetails{}, errors.New("gateway transaction id is required")
	}

	var env paystackEnvelope
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Get("/transaction/" + gatewayTransactionID)
	if err != nil {
		return TransactionDetails{}, &Error{Provider: p.Name(), Err: err}
	}
	if resp.IsError() || !env.Status {
		return TransactionDetails{}, &Error{Provider: p.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data paystackTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return TransactionDetails{}, &Error{Provider: p.Name(), Err: fmt.Errorf("decoding transaction response: %w", err)}
	}

	details := TransactionDetails{
		GatewayTransactionID: fmt.Sprintf("%d", data.ID),
		Reference:            data.Reference,
		Status:               paystackStatus(data.Status),
		Amount:               data.Amount,
		Currency:             data.Currency,
		Channel:              data.Channel,
	}
	if data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			details.PaidAt = &paidAt
		}
	}
	return details, nil
}

// VerifyWebhook checks the HMAC-SHA512 signature Paystack sends in
// x-paystack-signature and returns the event's payment reference.
func (p *Paystack) VerifyWebhook(payload []byte, signature string) (string, error) {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return "", &Error{Provider: p.Name(), Message: "invalid webhook signature"}
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", &Error{Provider: p.Name(), Err: fmt.Errorf("decoding webhook payload: %w", err)}
	}
	if event.Data.Reference == "" {
		return "", &Error{Provider: p.Name(), Message: "webhook payload has no reference"}
	}
	return event.Data.Reference, nil
}

// paystackStatus maps a provider status onto the normalized set. The mapping
// is total: unknown provider statuses count as failed.
func paystackStatus(s string) Status {
	switch s {
	case "success":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "abandoned":
		return StatusCancelled
	case "pending", "ongoing", "processing", "queued":
		return StatusPending
	default:
		return StatusFailed
	}
}

var _ Client = (*Paystack)(nil)
