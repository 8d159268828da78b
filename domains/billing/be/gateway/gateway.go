// Package gateway defines the payment-gateway capability set and its
// provider implementations (Paystack, Flutterwave, Stripe). All amounts cross
// this boundary in minor units; providers that bill in major units convert
// internally.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the normalized payment status shared by all providers. Provider
// statuses map onto it totally: anything unrecognized counts as failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// PaymentRequest describes one charge to initialize.
type PaymentRequest struct {
	// Amount in minor units (kobo, cents).
	Amount      int64
	Currency    string
	Email       string
	Name        string
	Phone       string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// Validate fails fast on missing required fields so a malformed request never
// reaches a provider API.
func (r PaymentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("payment request: amount must be positive")
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("payment request: invalid currency %q", r.Currency)
	}
	if r.Email == "" {
		return errors.New("payment request: email is required")
	}
	if r.Reference == "" {
		return errors.New("payment request: reference is required")
	}
	return nil
}

// PaymentResult is the normalized outcome of an initialize/verify/refund call.
type PaymentResult struct {
	Succeeded            bool
	Status               Status
	Reference            string
	GatewayTransactionID string
	AuthorizationURL     string
	Message              string
	// Raw carries the provider payload untouched, for auditing.
	Raw json.RawMessage
}

// RefundRequest identifies a charge to refund. A zero Amount refunds in full.
type RefundRequest struct {
	GatewayTransactionID string
	Reference            string
	Amount               int64
	Currency             string
	Reason               string
}

// Validate requires at least one way to identify the charge.
func (r RefundRequest) Validate() error {
	if r.GatewayTransactionID == "" && r.Reference == "" {
		return errors.New("refund request: transaction id or reference is required")
	}
	if r.Amount < 0 {
		return errors.New("refund request: amount must not be negative")
	}
	return nil
}

// TransactionDetails is a provider-side view of a settled charge.
type TransactionDetails struct {
	GatewayTransactionID string
	Reference            string
	Status               Status
	Amount               int64
	Currency             string
	Channel              string
	PaidAt               *time.Time
}

// Client is the capability set every payment provider exposes.
type Client interface {
	Name() string
	Initialize(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	Verify(ctx context.Context, reference string) (PaymentResult, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentResult, error)
	FetchTransaction(ctx context.Context, gatewayTransactionID string) (TransactionDetails, error)
	SupportedCurrencies() []string
	SupportedPaymentMethods() []string
	// VerifyWebhook checks the provider signature over the raw payload and
	// returns the payment reference the event refers to.
	VerifyWebhook(payload []byte, signature string) (string, error)
}

// Error wraps a provider failure with enough context to log and surface it
// without losing the upstream message.
type Error struct {
	Provider   string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s gateway: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s gateway: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s gateway: request failed (status %d)", e.Provider, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }
