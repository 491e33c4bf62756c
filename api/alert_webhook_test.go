package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(url, authHeader string) *alertWebhook {
	wh := newAlertWebhook(url, authHeader)
	wh.retryDelay = 0
	return wh
}

func TestWebhook_SuccessfulDelivery(t *testing.T) {
	var received AlertEvent
	var gotAuth, gotContentType string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ts := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	wh := newTestWebhook(srv.URL, "Authorization: Bearer my-token-123")
	wh.alert(AlertEvent{
		Type:      AlertCounterStoreDown,
		Message:   "down",
		Count:     10,
		Threshold: 10,
		Timestamp: ts,
	})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, AlertCounterStoreDown, received.Type)
	assert.Equal(t, 10, received.Count)
	assert.True(t, ts.Equal(received.Timestamp))
	assert.Equal(t, "Bearer my-token-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.alert(AlertEvent{Type: AlertRateLimitSpike})
	wh.close()

	assert.Equal(t, int32(2), attempts.Load(), "should have retried once after 500")
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.alert(AlertEvent{Type: AlertRateLimitSpike})
	wh.close()

	assert.Equal(t, int32(1), attempts.Load(), "should not retry on 4xx")
}

func TestWebhook_QueueFullNonBlocking(t *testing.T) {
	// No loop goroutine: nothing drains the queue.
	wh := &alertWebhook{events: make(chan AlertEvent, 2)}

	for i := 0; i < 10; i++ {
		wh.alert(AlertEvent{Type: AlertCSRFRejectionSpike})
	}
	assert.Len(t, wh.events, 2)
}

func TestWebhook_GracefulShutdownDrains(t *testing.T) {
	var count atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	for i := 0; i < 5; i++ {
		wh.alert(AlertEvent{Type: AlertRateLimitSpike})
	}
	wh.close()

	assert.Equal(t, int32(5), count.Load(), "all queued alerts should be delivered on close")
}

func TestWebhook_PayloadFields(t *testing.T) {
	var body []byte
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := newTestWebhook(srv.URL, "")
	wh.alert(AlertEvent{Type: AlertCSRFRejectionSpike, Message: "spike", Count: 51, Threshold: 50})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, body)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "csrf_rejection_spike", parsed["type"])
	assert.Equal(t, "spike", parsed["message"])
	assert.EqualValues(t, 51, parsed["count"])
	assert.EqualValues(t, 50, parsed["threshold"])
	assert.Contains(t, parsed, "timestamp")
}
