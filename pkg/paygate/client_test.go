package paygate

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

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		APIKey:     "test-api-key",
		Timeout:    5 * time.Second,
		RetryCount: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestClient_CreateEscrow_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/escrows", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateEscrowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "contract-1", req.ReferenceID)
		assert.Equal(t, int64(250000), req.AmountCents)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Escrow{
			ID:          "esc-1",
			ReferenceID: req.ReferenceID,
			Status:      EscrowPending,
		})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	escrow, err := client.CreateEscrow(context.Background(), CreateEscrowRequest{
		ReferenceID: "contract-1",
		PayerID:     "homeowner-1",
		PayeeID:     "contractor-1",
		AmountCents: 250000,
		Currency:    "USD",
	})

	require.NoError(t, err)
	assert.Equal(t, "esc-1", escrow.ID)
	assert.Equal(t, EscrowPending, escrow.Status)
}

func TestClient_GetEscrow_RetriesOnServerError(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Escrow{ID: "esc-2", Status: EscrowActive})
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	escrow, err := client.GetEscrow(context.Background(), "esc-2")
	require.NoError(t, err)
	assert.Equal(t, EscrowActive, escrow.Status)
	assert.Equal(t, 2, requests)
}

func TestClient_ReleaseEscrow_NotRetried(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "DELETE", r.Method)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	err := client.ReleaseEscrow(context.Background(), "esc-3")
	assert.Error(t, err)
	assert.Equal(t, 1, requests, "unsafe calls must not be retried")
}

func TestClient_ErrorIncludesGatewayBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"duplicate reference"}`, http.StatusConflict)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryCount = 0
	client := New(cfg)

	_, err := client.CreateEscrow(context.Background(), CreateEscrowRequest{ReferenceID: "contract-9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate reference")
}
