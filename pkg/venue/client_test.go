package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, km *KeyManager) string {
	t.Helper()
	account, err := km.GenerateKeyPair()
	require.NoError(t, err)
	encrypted, err := km.EncryptPrivateKey(account.PrivateKey)
	require.NoError(t, err)
	return encrypted
}

func TestClientPlaceOrder(t *testing.T) {
	km := NewKeyManager("test-password")
	encryptedKey := testKey(t, km)

	t.Run("Signs And Decodes", func(t *testing.T) {
		var gotReq OrderRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/orders", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get("X-Authority"))
			assert.NotEmpty(t, r.Header.Get("X-Signature"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			json.NewEncoder(w).Encode(OrderResult{Signature: "tx-sig"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, km, time.Second)
		res, err := c.PlaceOrder(context.Background(), encryptedKey, OrderRequest{
			Market:        "SOL-PERP",
			Direction:     "long",
			BaseSize:      1.98,
			ExecutionPath: PathAuction,
		})
		require.NoError(t, err)
		assert.Equal(t, "tx-sig", res.Signature)
		assert.Equal(t, "SOL-PERP", gotReq.Market)
	})

	t.Run("Timeout Becomes TimeoutError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, km, 20*time.Millisecond)
		_, err := c.PlaceOrder(context.Background(), encryptedKey, OrderRequest{})
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	})

	t.Run("Gateway Error Becomes APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"code":    "InsufficientCollateral",
				"message": "insufficient collateral for order",
			})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, km, time.Second)
		_, err := c.PlaceOrder(context.Background(), encryptedKey, OrderRequest{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "InsufficientCollateral", apiErr.Code)
		assert.Contains(t, apiErr.Error(), "insufficient collateral")
	})

	t.Run("Bad Encrypted Key Fails Before Any Request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		c := NewClient(srv.URL, km, time.Second)
		_, err := c.PlaceOrder(context.Background(), "garbage", OrderRequest{})
		require.Error(t, err)
		assert.False(t, called)
	})
}

func TestClientGetSubaccount(t *testing.T) {
	km := NewKeyManager("test-password")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subaccounts/auth-pubkey/0", r.URL.Path)
		json.NewEncoder(w).Encode(SubaccountState{
			FreeCollateral: 212.5,
			Positions:      []Position{{Market: "SOL-PERP", BaseSize: 1.98, AvgEntry: 50}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, km, time.Second)
	state, err := c.GetSubaccount(context.Background(), "auth-pubkey", 0)
	require.NoError(t, err)
	assert.Equal(t, 212.5, state.FreeCollateral)
	require.Len(t, state.Positions, 1)
	assert.Equal(t, 1.98, state.Positions[0].BaseSize)
}
