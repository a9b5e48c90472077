package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRefresh(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		cache tokenCache
		want  bool
	}{
		{"empty cache", tokenCache{}, true},
		{"fresh token", tokenCache{token: "abc", expiresAt: now.Add(time.Hour)}, false},
		{"expired token", tokenCache{token: "abc", expiresAt: now.Add(-time.Minute)}, true},
		{"inside safety margin", tokenCache{token: "abc", expiresAt: now.Add(10 * time.Second)}, true},
		{"just outside margin", tokenCache{token: "abc", expiresAt: now.Add(31 * time.Second)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRefresh(tt.cache, now))
		})
	}
}

// walletStub fakes the processor's token, order and capture endpoints.
func walletStub(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok_123",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok_123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CAPTURE", req.Intent)
		require.Len(t, req.PurchaseUnits, 1)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "W-1001",
			"links": []map[string]string{
				{"rel": "self", "href": "https://wallet.example.com/orders/W-1001"},
				{"rel": "approve", "href": "https://wallet.example.com/approve/W-1001"},
			},
		})
	})

	mux.HandleFunc("/v2/checkout/orders/W-1001/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "W-1001",
			"status": "COMPLETED",
			"purchase_units": []map[string]interface{}{{
				"custom_id": "order-1",
				"payments": map[string]interface{}{
					"captures": []map[string]interface{}{{
						"id":     "CAP-7",
						"amount": map[string]interface{}{"currency_code": "EUR", "value_minor": 2998},
					}},
				},
			}},
		})
	})

	mux.HandleFunc("/v2/checkout/orders/W-2002/capture", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "W-2002",
			"status": "PENDING",
		})
	})

	return httptest.NewServer(mux)
}

func TestCreateSession(t *testing.T) {
	var tokenCalls int32
	srv := walletStub(t, &tokenCalls)
	defer srv.Close()

	client := NewClient(srv.URL, "client-id", "client-secret")

	session, err := client.CreateSession(context.Background(), provider.SessionRequest{
		OrderID:    "order-1",
		Currency:   "EUR",
		SuccessURL: "https://shop.example.com/thanks",
		CancelURL:  "https://shop.example.com/cart",
		Items: []provider.SessionItem{
			{Label: "Record 1", Quantity: 2, UnitPrice: 1499},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "W-1001", session.ID)
	assert.Equal(t, "https://wallet.example.com/approve/W-1001", session.RedirectURL)
}

func TestCaptureOrder(t *testing.T) {
	var tokenCalls int32
	srv := walletStub(t, &tokenCalls)
	defer srv.Close()

	client := NewClient(srv.URL, "client-id", "client-secret")

	env, err := client.CaptureOrder(context.Background(), "W-1001")
	require.NoError(t, err)
	assert.Equal(t, "order-1", env.OrderID)
	assert.Equal(t, "CAP-7", env.ExternalID)
	assert.Equal(t, models.ProviderWallet, env.Provider)
	assert.Equal(t, int64(2998), env.ReportedTotal)
	assert.False(t, env.AuthoritativeForShipping)
	assert.Nil(t, env.ReportedShipping)
}

func TestCaptureOrderNotCompleted(t *testing.T) {
	var tokenCalls int32
	srv := walletStub(t, &tokenCalls)
	defer srv.Close()

	client := NewClient(srv.URL, "client-id", "client-secret")

	_, err := client.CaptureOrder(context.Background(), "W-2002")
	assert.ErrorContains(t, err, "not completed")
}

func TestTokenReuse(t *testing.T) {
	var tokenCalls int32
	srv := walletStub(t, &tokenCalls)
	defer srv.Close()

	client := NewClient(srv.URL, "client-id", "client-secret")

	_, err := client.CaptureOrder(context.Background(), "W-1001")
	require.NoError(t, err)
	_, err = client.CaptureOrder(context.Background(), "W-1001")
	require.NoError(t, err)

	// The hour-long token from the first call covers the second.
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestAccessTokenBadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := walletStub(t, &tokenCalls)
	defer srv.Close()

	client := NewClient(srv.URL, "client-id", "wrong")

	_, err := client.CaptureOrder(context.Background(), "W-1001")
	assert.ErrorContains(t, err, "token request failed")
}
