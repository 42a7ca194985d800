package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierworks/atelier-backend/pkg/config"
)

func testGatewayConfig(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:      baseURL,
		KeyID:        "key_test",
		ClientSecret: "secret_test",
		Timeout:      2 * time.Second,
		Currency:     "INR",
	}
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_test", user)
		assert.Equal(t, "secret_test", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2400, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Order{
			ID:          "order_gw_123",
			AmountCents: 2400,
			Currency:    "INR",
			Status:      "created",
		})
	}))
	defer srv.Close()

	client, err := NewClient(testGatewayConfig(srv.URL))
	require.NoError(t, err)

	order, err := client.CreateOrder(context.Background(), CreateOrderParams{
		AmountCents: 2400,
		Currency:    "INR",
		Receipt:     "ord-receipt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_gw_123", order.ID)
	assert.Equal(t, 2400, order.AmountCents)
}

func TestCreateOrder_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testGatewayConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), CreateOrderParams{AmountCents: 100, Currency: "INR"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCreateOrder_ValidatesInput(t *testing.T) {
	client, err := NewClient(testGatewayConfig("https://gateway.test"))
	require.NoError(t, err)

	_, err = client.CreateOrder(context.Background(), CreateOrderParams{AmountCents: 0, Currency: "INR"})
	require.Error(t, err)

	_, err = client.CreateOrder(context.Background(), CreateOrderParams{AmountCents: 100})
	require.Error(t, err)
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(config.GatewayConfig{BaseURL: "https://gateway.test"})
	require.Error(t, err)

	_, err = NewClient(config.GatewayConfig{KeyID: "key", ClientSecret: "secret"})
	require.Error(t, err)
}
