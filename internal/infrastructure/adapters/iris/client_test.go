package iris

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{BaseURL: baseURL, Timeout: 5 * time.Second}, zap.NewNop())
}

func TestGetAttestation(t *testing.T) {
	t.Run("parses a complete attestation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/attestations/0xabc", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"complete","attestation":"0xsig","message":"0xdeadbeef"}`))
		}))
		defer server.Close()

		status, err := testClient(server.URL).GetAttestation(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.True(t, status.Complete())
		assert.Equal(t, "0xsig", status.Attestation)
		assert.Equal(t, "0xdeadbeef", status.Message)
	})

	t.Run("parses a pending attestation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"pending_confirmations"}`))
		}))
		defer server.Close()

		status, err := testClient(server.URL).GetAttestation(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.True(t, status.Pending())
		assert.False(t, status.Complete())
	})

	t.Run("maps 404 to ErrNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := testClient(server.URL).GetAttestation(context.Background(), "0xmissing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"status":"complete","attestation":"0xsig"}`))
		}))
		defer server.Close()

		status, err := testClient(server.URL).GetAttestation(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.True(t, status.Complete())
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("surfaces structured API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"rate_limited","message":"slow down"}`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).GetAttestation(context.Background(), "0xabc")
		require.Error(t, err)
		var apiErr *ErrorResponse
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsRateLimited())
		assert.Equal(t, "rate_limited", apiErr.Code)
	})

	t.Run("stops retrying when the caller cancels", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := testClient(server.URL).GetAttestation(ctx, "0xabc")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
