package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/cmdgate/internal/event"
)

func TestWebhook_DeliversApprovalRequests(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.Store(body)
	}))
	defer srv.Close()

	event.Reset()
	defer event.Reset()

	wh := NewWebhook(srv.URL, WithRetryIntervals(time.Millisecond, 10*time.Millisecond))
	wh.Start()
	defer wh.Stop()

	event.Publish(event.Event{
		Type: event.ApprovalRequested,
		Data: event.ApprovalRequestedData{ID: "req-1", Command: "npm install"},
	})

	require.Eventually(t, func() bool { return got.Load() != nil }, 2*time.Second, 10*time.Millisecond)

	var e struct {
		Type string `json:"type"`
		Data struct {
			ID      string `json:"id"`
			Command string `json:"command"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.Load().([]byte), &e))
	assert.Equal(t, "approval.requested", e.Type)
	assert.Equal(t, "req-1", e.Data.ID)
	assert.Equal(t, "npm install", e.Data.Command)
}

func TestWebhook_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	event.Reset()
	defer event.Reset()

	wh := NewWebhook(srv.URL, WithRetryIntervals(time.Millisecond, 10*time.Millisecond))
	wh.Start()
	defer wh.Stop()

	event.Publish(event.Event{Type: event.ApprovalRequested, Data: event.ApprovalRequestedData{ID: "req-1"}})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhook_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	event.Reset()
	defer event.Reset()

	wh := NewWebhook(srv.URL, WithRetryIntervals(time.Millisecond, 5*time.Millisecond))
	wh.Start()
	defer wh.Stop()

	event.Publish(event.Event{Type: event.ApprovalRequested, Data: event.ApprovalRequestedData{ID: "req-1"}})

	// Initial attempt plus MaxRetries, then the event is dropped.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == MaxRetries+1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(MaxRetries+1), atomic.LoadInt32(&calls))
}

func TestWebhook_StopUnsubscribes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	event.Reset()
	defer event.Reset()

	wh := NewWebhook(srv.URL, WithRetryIntervals(time.Millisecond, 5*time.Millisecond))
	wh.Start()
	wh.Stop()

	event.PublishSync(event.Event{Type: event.ApprovalRequested, Data: event.ApprovalRequestedData{ID: "req-1"}})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}
