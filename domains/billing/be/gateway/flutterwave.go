package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const flutterwaveDefaultBaseURL = "https://api.flutterwave.com/v3"

// FlutterwaveConfig configures the Flutterwave client.
type FlutterwaveConfig struct {
	SecretKey string
	// WebhookHash is the verif-hash secret configured on the Flutterwave
	// dashboard.
	WebhookHash string
	BaseURL     string
	Timeout     time.Duration
}

// Flutterwave is the Flutterwave v3 REST client. The API bills in major
// units, so minor-unit amounts are converted at this boundary.
type Flutterwave struct {
	http        *resty.Client
	webhookHash string
	log         *zap.Logger
}

// NewFlutterwave constructs a Flutterwave client.
func NewFlutterwave(cfg FlutterwaveConfig, log *zap.Logger) *Flutterwave {
	if cfg.SecretKey == "" {
		panic("flutterwave secret key is required")
	}
	if log == nil {
		panic("logger is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = flutterwaveDefaultBaseURL
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

	return &Flutterwave{http: client, webhookHash: cfg.WebhookHash, log: log}
}

func (f *Flutterwave) Name() string { return "flutterwave" }

func (f *Flutterwave) SupportedCurrencies() []string {
	return []string{"NGN", "USD", "GHS", "KES", "ZAR", "UGX", "TZS", "XOF"}
}

func (f *Flutterwave) SupportedPaymentMethods() []string {
	return []string{"card", "banktransfer", "ussd", "mobilemoney", "account"}
}

// zeroDecimalCurrencies lists ISO codes whose smallest unit is the whole
// currency. Amounts in these currencies carry no minor unit and must not be
// scaled.
var zeroDecimalCurrencies = map[string]struct{}{
	"UGX": {}, "XOF": {}, "XAF": {}, "RWF": {}, "GNF": {},
	"JPY": {}, "KRW": {}, "VND": {}, "CLP": {},
}

// majorUnits converts a minor-unit amount to the major-unit decimal string
// Flutterwave expects, without going through floats.
func majorUnits(minor int64, currency string) string {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return fmt.Sprintf("%d", minor)
	}
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// minorUnits reverses the conversion for amounts reported back by the API.
func minorUnits(major float64, currency string) int64 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return int64(math.Round(major))
	}
	return int64(math.Round(major * 100))
}

// flutterwaveEnvelope is the common response wrapper of the v3 API.
type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e flutterwaveEnvelope) ok() bool { return e.Status == "success" }

type flutterwaveTransactionData struct {
	ID        int64   `json:"id"`
	TxRef     string  `json:"tx_ref"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Channel   string  `json:"payment_type"`
	CreatedAt string  `json:"created_at"`
}

func (f *Flutterwave) Initialize(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}

	body := map[string]any{
		"tx_ref":   req.Reference,
		"amount":   majorUnits(req.Amount, req.Currency),
		"currency": req.Currency,
		"customer": map[string]string{
			"email":       req.Email,
			"name":        req.Name,
			"phonenumber": req.Phone,
		},
	}
	if req.CallbackURL != "" {
		body["redirect_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["meta"] = req.Metadata
	}

	var env flutterwaveEnvelope
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post("/payments")
	if err != nil {
		return PaymentResult{}, &Error{Provider: f.Name(), Err: err}
	}
	if resp.IsError() || !env.ok() {
		return PaymentResult{}, &Error{Provider: f.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return PaymentResult{}, &Error{Provider: f.Name(), Err: fmt.Errorf("decoding payment response: %w", err)}
	}

	f.log.Info("flutterwave payment initialized",
		zap.String("reference", req.Reference))

	return PaymentResult{
		Succeeded:        true,
		Status:           StatusPending,
		Reference:        req.Reference,
		AuthorizationURL: data.Link,
		Message:          env.Message,
		Raw:              env.Data,
	}, nil
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (PaymentResult, error) {
	if reference == "" {
		return PaymentResult{}, errors.New("reference is required")
	}

	var env flutterwaveEnvelope
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("tx_ref", reference).
		SetResult(&env).
		SetError(&env).
		Get("/transactions/verify_by_reference")
	if err != nil {
		return PaymentResult{}, &Error{Provider: f.Name(), Err: err}
	}
	if resp.IsError() || !env.ok() {
		return PaymentResult{}, &Error{Provider: f.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data flutterwaveTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return PaymentResult{}, &Error{Provider: f.Name(), Err: fmt.Errorf("decoding verify response: %w", err)}
	}

	status := flutterwaveStatus(data.Status)
	return PaymentResult{
		Succeeded:            status == StatusCompleted,
		Status:               status,
		Reference:            data.TxRef,
		GatewayTransactionID: fmt.Sprintf("%d", data.ID),
		Message:              env.Message,
		Raw:                  env.Data,
	}, nil
}

func (f *Flutterwave) Refund(ctx context.Context, req RefundRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}
	if req.GatewayTransactionID == "" {
		return PaymentResult{}, errors.New("flutterwave refunds require the gateway transaction id")
	}

	body := map[string]any{}
	if req.Amount > 0 {
		body["amount"] = majorUnits(req.Amount, req.Currency)
	}

	var env flutterwaveEnvelope
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&env).
		SetError(&env).
		Post("/transactions/" + req.GatewayTransactionID + "/refund")
	if err != nil {
		return PaymentResult{}, &Error{Provider: f.Name(), Err: err}
	}
	if resp.IsError() || !env.ok() {
		return PaymentResult{}, &Error{Provider: f.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
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

func (f *Flutterwave) FetchTransaction(ctx context.Context, gatewayTransactionID string) (TransactionDetails, error) {
	if gatewayTransactionID == "" {
		return TransactionDetails{}, errors.New("gateway transaction id is required")
	}

	var env flutterwaveEnvelope
	resp, err := f.http.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Get("/transactions/" + gatewayTransactionID)
	if err != nil {
		return TransactionDetails{}, &Error{Provider: f.Name(), Err: err}
	}
	if resp.IsError() || !env.ok() {
		return TransactionDetails{}, &Error{Provider: f.Name(), Message: env.Message, StatusCode: resp.StatusCode()}
	}

	var data flutterwaveTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return TransactionDetails{}, &Error{Provider: f.Name(), Err: fmt.Errorf("decoding transaction response: %w", err)}
	}

	details := TransactionDetails{
		GatewayTransactionID: fmt.Sprintf("%d", data.ID),
		Reference:            data.TxRef,
		Status:               flutterwaveStatus(data.Status),
		Amount:               minorUnits(data.Amount, data.Currency),
		Currency:             data.Currency,
		Channel:              data.Channel,
	}
	if data.CreatedAt != "" {
		if createdAt, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
			details.PaidAt = &createdAt
		}
	}
	return details, nil
}

// VerifyWebhook compares the verif-hash header against the configured secret
// and returns the event's tx_ref.
func (f *Flutterwave) VerifyWebhook(payload []byte, signature string) (string, error) {
	if f.webhookHash == "" {
		return "", &Error{Provider: f.Name(), Message: "webhook hash not configured"}
	}
	if subtle.ConstantTimeCompare([]byte(f.webhookHash), []byte(signature)) != 1 {
		return "", &Error{Provider: f.Name(), Message: "invalid webhook signature"}
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			TxRef string `json:"tx_ref"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", &Error{Provider: f.Name(), Err: fmt.Errorf("decoding webhook payload: %w", err)}
	}
	if event.Data.TxRef == "" {
		return "", &Error{Provider: f.Name(), Message: "webhook payload has no tx_ref"}
	}
	return event.Data.TxRef, nil
}

// flutterwaveStatus maps a provider status onto the normalized set; unknown
// statuses count as failed.
func flutterwaveStatus(s string) Status {
	switch s {
	case "successful":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "cancelled":
		return StatusCancelled
	case "pending":
		return StatusPending
	default:
		return StatusFailed
	}
}

var _ Client = (*Flutterwave)(nil)
