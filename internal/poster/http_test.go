package poster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywhistle/tally-ho/internal/common"
	"github.com/pennywhistle/tally-ho/internal/service"
)

func fastRetry(c *Client) *Client {
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = 2 * time.Millisecond
	return c
}

func samplePosting() service.Posting {
	return service.Posting{
		Date:            time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		PayerAccount:    "corporate-card",
		PayeeEntity:     "entity-chevron",
		CategoryAccount: "Fuel",
		JurisdictionTag: "CA",
		Amount:          52.96,
	}
}

func TestPostReturnsReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reference": "txn-001"}`))
	}))
	defer srv.Close()

	client := fastRetry(NewClient(srv.URL, "secret"))
	ref, err := client.Post(context.Background(), samplePosting())
	require.NoError(t, err)
	assert.Equal(t, "txn-001", ref)
}

func TestPostRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"reference": "txn-002"}`))
	}))
	defer srv.Close()

	client := fastRetry(NewClient(srv.URL, ""))
	ref, err := client.Post(context.Background(), samplePosting())
	require.NoError(t, err)
	assert.Equal(t, "txn-002", ref)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostStructuralRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`unknown category account`))
	}))
	defer srv.Close()

	client := fastRetry(NewClient(srv.URL, ""))
	_, err := client.Post(context.Background(), samplePosting())
	require.ErrorIs(t, err, common.ErrStructuralPosting)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, common.IsRetryable(err))
}

func TestFindOrCreatePayee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payees", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "entity-42", "name": "Chevron"}`))
	}))
	defer srv.Close()

	client := fastRetry(NewClient(srv.URL, ""))
	id, err := client.FindOrCreatePayee(context.Background(), "Chevron")
	require.NoError(t, err)
	assert.Equal(t, "entity-42", id)
}

func TestNopPoster(t *testing.T) {
	nop := NewNopPoster()
	ctx := context.Background()

	payee, err := nop.FindOrCreatePayee(ctx, "Chevron")
	require.NoError(t, err)
	assert.Equal(t, "Chevron", payee)

	ref, err := nop.Post(ctx, samplePosting())
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	assert.NoError(t, nop.Attach(ctx, ref, "receipts/claim-1.pdf"))
}
