package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPaystackTestServer(t *testing.T, handler http.HandlerFunc) (*Paystack, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewPaystack(PaystackConfig{SecretKey: "sk_test_abc", BaseURL: srv.URL}, zap.NewNop())
	return client, srv
}

func TestPaystackInitialize(t *testing.T) {
	var gotBody map[string]any
	client, _ := newPaystackTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code": "abc123",
				"reference": "REF_AAAABBBB12"
			}
		}`))
	})

	res, err := client.Initialize(context.Background(), PaymentRequest{
		Amount:    250000,
		Currency:  "NGN",
		Email:     "owner@acme.test",
		Reference: "REF_AAAABBBB12",
		Metadata:  map[string]string{"plan_id": "3"},
	})
	require.NoError(t, err)

	require.True(t, res.Succeeded)
	require.Equal(t, StatusPending, res.Status)
	require.Equal(t, "REF_AAAABBBB12", res.Reference)
	require.Equal(t, "https://checkout.paystack.com/abc123", res.AuthorizationURL)

	// Amount goes over the wire in minor units, untouched.
	require.Equal(t, float64(250000), gotBody["amount"])
	require.Equal(t, "NGN", gotBody["currency"])
}

func TestPaystackInitializeValidatesRequest(t *testing.T) {
	client := NewPaystack(PaystackConfig{SecretKey: "sk_test", BaseURL: "http://paystack.invalid"}, zap.NewNop())

	_, err := client.Initialize(context.Background(), PaymentRequest{
		Currency: "NGN", Email: "a@b.c", Reference: "REF_X",
	})
	require.ErrorContains(t, err, "amount")
}

func TestPaystackInitializeBusinessFailure(t *testing.T) {
	client, _ := newPaystackTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status": false, "message": "Invalid key"}`))
	})

	_, err := client.Initialize(context.Background(), PaymentRequest{
		Amount: 1000, Currency: "NGN", Email: "a@b.c", Reference: "REF_X",
	})
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "paystack", gwErr.Provider)
	require.Equal(t, "Invalid key", gwErr.Message)
	require.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestPaystackVerify(t *testing.T) {
	client, _ := newPaystackTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/verify/REF_AAAABBBB12", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"id": 4099260516,
				"status": "success",
				"reference": "REF_AAAABBBB12",
				"amount": 250000,
				"currency": "NGN",
				"channel": "card",
				"gateway_response": "Successful"
			}
		}`))
	})

	res, err := client.Verify(context.Background(), "REF_AAAABBBB12")
	require.NoError(t, err)
	require.True(t, res.Succeeded)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, "4099260516", res.GatewayTransactionID)
}

func TestPaystackFetchTransaction(t *testing.T) {
	client, _ := newPaystackTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/4099260516", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Transaction retrieved",
			"data": {
				"id": 4099260516,
				"status": "abandoned",
				"reference": "REF_AAAABBBB12",
				"amount": 250000,
				"currency": "NGN",
				"channel": "card",
				"paid_at": "2026-08-01T10:00:00Z"
			}
		}`))
	})

	details, err := client.FetchTransaction(context.Background(), "4099260516")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, details.Status)
	require.Equal(t, int64(250000), details.Amount)
	require.Equal(t, "card", details.Channel)
	require.NotNil(t, details.PaidAt)
}

func TestPaystackVerifyWebhook(t *testing.T) {
	client := NewPaystack(PaystackConfig{SecretKey: "sk_test_abc", BaseURL: "http://paystack.invalid"}, zap.NewNop())

	payload := []byte(`{"event":"charge.success","data":{"reference":"REF_AAAABBBB12"}}`)
	mac := hmac.New(sha512.New, []byte("sk_test_abc"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	ref, err := client.VerifyWebhook(payload, signature)
	require.NoError(t, err)
	require.Equal(t, "REF_AAAABBBB12", ref)

	_, err = client.VerifyWebhook(payload, "deadbeef")
	require.Error(t, err)

	_, err = client.VerifyWebhook([]byte(`{"event":"charge.success","data":{}}`), signature)
	require.Error(t, err)
}

func TestPaystackStatusMappingIsTotal(t *testing.T) {
	cases := map[string]Status{
		"success":    StatusCompleted,
		"failed":     StatusFailed,
		"abandoned":  StatusCancelled,
		"pending":    StatusPending,
		"ongoing":    StatusPending,
		"processing": StatusPending,
		"queued":     StatusPending,
		"reversed":   StatusFailed,
		"":           StatusFailed,
		"whatever":   StatusFailed,
	}
	for in, want := range cases {
		require.Equal(t, want, paystackStatus(in), "status %q", in)
	}
}
