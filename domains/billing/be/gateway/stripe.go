package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Stripe drives payments through PaymentIntents. The payment reference is
// carried in intent metadata so Verify and webhooks can find it again.
type Stripe struct {
	webhookSecret string
	log           *zap.Logger
}

// NewStripe constructs a Stripe client. The secret key is installed on the
// SDK's package-level state, matching how the stripe-go bindings are meant to
// be used for a single account.
func NewStripe(cfg StripeConfig, log *zap.Logger) *Stripe {
	if cfg.SecretKey == "" {
		panic("stripe secret key is required")
	}
	if log == nil {
		panic("logger is required")
	}
	stripe.Key = cfg.SecretKey
	return &Stripe{webhookSecret: cfg.WebhookSecret, log: log}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) SupportedCurrencies() []string {
	return []string{"USD", "EUR", "GBP", "CAD", "AUD"}
}

func (s *Stripe) SupportedPaymentMethods() []string {
	return []string{"card"}
}

func (s *Stripe) Initialize(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(req.Amount),
		Currency:     stripe.String(strings.ToLower(req.Currency)),
		ReceiptEmail: stripe.String(req.Email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return PaymentResult{}, s.wrapErr(err)
	}

	s.log.Info("stripe payment intent created",
		zap.String("reference", req.Reference),
		zap.String("payment_intent", pi.ID))

	return PaymentResult{
		Succeeded:            true,
		Status:               stripeStatus(pi.Status),
		Reference:            req.Reference,
		GatewayTransactionID: pi.ID,
		// Stripe has no hosted redirect here; the client secret drives the
		// client-side confirmation flow instead.
		Message: pi.ClientSecret,
		Raw:     marshalRaw(pi),
	}, nil
}

func (s *Stripe) Verify(ctx context.Context, reference string) (PaymentResult, error) {
	if reference == "" {
		return PaymentResult{}, errors.New("reference is required")
	}

	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['reference']:'%s'", reference),
		},
	}
	params.Context = ctx

	iter := paymentintent.Search(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return PaymentResult{}, s.wrapErr(err)
		}
		return PaymentResult{}, &Error{Provider: s.Name(), Message: fmt.Sprintf("no payment intent for reference %q", reference)}
	}
	pi := iter.PaymentIntent()

	status := stripeStatus(pi.Status)
	return PaymentResult{
		Succeeded:            status == StatusCompleted,
		Status:               status,
		Reference:            reference,
		GatewayTransactionID: pi.ID,
		Raw:                  marshalRaw(pi),
	}, nil
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return PaymentResult{}, err
	}
	if req.GatewayTransactionID == "" {
		return PaymentResult{}, errors.New("stripe refunds require the payment intent id")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayTransactionID),
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}

	r, err := refund.New(params)
	if err != nil {
		return PaymentResult{}, s.wrapErr(err)
	}

	return PaymentResult{
		Succeeded:            r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending,
		Status:               StatusRefunded,
		Reference:            req.Reference,
		GatewayTransactionID: req.GatewayTransactionID,
		Message:              string(r.Status),
		Raw:                  marshalRaw(r),
	}, nil
}

func (s *Stripe) FetchTransaction(ctx context.Context, gatewayTransactionID string) (TransactionDetails, error) {
	if gatewayTransactionID == "" {
		return TransactionDetails{}, errors.New("gateway transaction id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(gatewayTransactionID, params)
	if err != nil {
		return TransactionDetails{}, s.wrapErr(err)
	}

	details := TransactionDetails{
		GatewayTransactionID: pi.ID,
		Reference:            pi.Metadata["reference"],
		Status:               stripeStatus(pi.Status),
		Amount:               pi.Amount,
		Currency:             strings.ToUpper(string(pi.Currency)),
	}
	if len(pi.PaymentMethodTypes) > 0 {
		details.Channel = pi.PaymentMethodTypes[0]
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded && pi.Created > 0 {
		paidAt := time.Unix(pi.Created, 0).UTC()
		details.PaidAt = &paidAt
	}
	return details, nil
}

// VerifyWebhook validates the Stripe-Signature header and returns the
// reference carried in the event object's metadata.
func (s *Stripe) VerifyWebhook(payload []byte, signature string) (string, error) {
	if s.webhookSecret == "" {
		return "", &Error{Provider: s.Name(), Message: "webhook secret not configured"}
	}

	// Events keep flowing across Stripe API version bumps; only the
	// signature decides authenticity here.
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", &Error{Provider: s.Name(), Message: "invalid webhook signature", Err: err}
	}

	var object struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return "", &Error{Provider: s.Name(), Err: fmt.Errorf("decoding event object: %w", err)}
	}
	reference := object.Metadata["reference"]
	if reference == "" {
		return "", &Error{Provider: s.Name(), Message: "event object has no reference metadata"}
	}
	return reference, nil
}

func (s *Stripe) wrapErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &Error{
			Provider:   s.Name(),
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &Error{Provider: s.Name(), Err: err}
}

func marshalRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// stripeStatus maps a PaymentIntent status onto the normalized set; unknown
// statuses count as failed.
func stripeStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusFailed
	}
}

var _ Client = (*Stripe)(nil)
