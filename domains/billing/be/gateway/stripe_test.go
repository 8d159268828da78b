package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

func TestStripeStatusMappingIsTotal(t *testing.T) {
	cases := map[stripe.PaymentIntentStatus]Status{
		stripe.PaymentIntentStatusSucceeded:             StatusCompleted,
		stripe.PaymentIntentStatusCanceled:              StatusCancelled,
		stripe.PaymentIntentStatusProcessing:            StatusPending,
		stripe.PaymentIntentStatusRequiresPaymentMethod: StatusPending,
		stripe.PaymentIntentStatusRequiresConfirmation:  StatusPending,
		stripe.PaymentIntentStatusRequiresAction:        StatusPending,
		stripe.PaymentIntentStatusRequiresCapture:       StatusPending,
		stripe.PaymentIntentStatus("weird_new_status"):  StatusFailed,
		stripe.PaymentIntentStatus(""):                  StatusFailed,
	}
	for in, want := range cases {
		require.Equal(t, want, stripeStatus(in), "status %q", in)
	}
}

// stripeSign produces a Stripe-Signature header for a payload, the same
// scheme webhook.ConstructEvent validates: HMAC-SHA256 over "<t>.<payload>".
func stripeSign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifyWebhook(t *testing.T) {
	client := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, zap.NewNop())

	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "metadata": {"reference": "REF_AAAABBBB12"}}}
	}`)

	ref, err := client.VerifyWebhook(payload, stripeSign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	require.Equal(t, "REF_AAAABBBB12", ref)

	// A signature minted with the wrong secret is rejected.
	_, err = client.VerifyWebhook(payload, stripeSign(payload, "whsec_other", time.Now()))
	require.Error(t, err)

	// A stale timestamp is rejected by the default tolerance.
	_, err = client.VerifyWebhook(payload, stripeSign(payload, "whsec_test", time.Now().Add(-time.Hour)))
	require.Error(t, err)
}

func TestStripeWebhookWithoutReference(t *testing.T) {
	client := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, zap.NewNop())

	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "metadata": {}}}
	}`)

	_, err := client.VerifyWebhook(payload, stripeSign(payload, "whsec_test", time.Now()))
	require.Error(t, err)
}
