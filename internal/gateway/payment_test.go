package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var req struct {
			Amount   int64             `json:"amount"`
			Currency string            `json:"currency"`
			Metadata map[string]string `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(129599), req.Amount)
		assert.Equal(t, "usd", req.Currency)
		assert.Equal(t, "ORD-X", req.Metadata["order_number"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"cs_456","status":"requires_confirmation"}`))
	}))
	defer srv.Close()

	c := NewPaymentClient(srv.URL, "sk_test")

	intent, err := c.CreateIntent(context.Background(), 129599, "usd", map[string]string{"order_number": "ORD-X"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "cs_456", intent.ClientSecret)
}

func TestCreateIntent_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"card_declined"}`))
	}))
	defer srv.Close()

	c := NewPaymentClient(srv.URL, "sk_test")

	_, err := c.CreateIntent(context.Background(), 100, "usd", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestDecodeIntent_MissingID(t *testing.T) {
	_, err := decodeIntent([]byte(`{"client_secret":"cs_1"}`))
	require.Error(t, err)
}
