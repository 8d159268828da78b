package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryResolvesByName(t *testing.T) {
	log := zap.NewNop()
	paystack := NewPaystack(PaystackConfig{SecretKey: "sk_test"}, log)
	flutterwave := NewFlutterwave(FlutterwaveConfig{SecretKey: "FLWSECK_TEST"}, log)
	reg := NewRegistry(paystack, flutterwave)

	got, err := reg.Get("paystack")
	require.NoError(t, err)
	require.Same(t, Client(paystack), got)

	// Lookup tolerates case and whitespace.
	got, err = reg.Get("  Flutterwave ")
	require.NoError(t, err)
	require.Same(t, Client(flutterwave), got)

	require.Equal(t, []string{"flutterwave", "paystack"}, reg.Names())
}

func TestRegistryRejectsUnknownGateway(t *testing.T) {
	reg := NewRegistry(NewPaystack(PaystackConfig{SecretKey: "sk_test"}, zap.NewNop()))

	_, err := reg.Get("stripe")
	require.ErrorIs(t, err, ErrUnsupportedGateway)

	_, err = reg.Get("")
	require.ErrorIs(t, err, ErrUnsupportedGateway)
}
