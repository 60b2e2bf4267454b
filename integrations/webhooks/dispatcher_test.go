package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"yieldredirect/core/events"
	"yieldredirect/core/types"
)

func conversionReceipt() *types.Receipt {
	return &types.Receipt{
		ID:        "r-1",
		Operation: "convertProfits",
		Caller:    "keeper",
		At:        time.Unix(1700, 0).UTC(),
		Events: []*types.Event{
			{Type: events.TypeProfitsConverted, Attributes: map[string]string{"net": "98000"}},
			{Type: events.TypeRewardsClaimed, Attributes: map[string]string{"amount": "1000"}},
		},
	}
}

func TestDispatcherSignsPayload(t *testing.T) {
	secret := []byte("secret")
	var (
		mu     sync.Mutex
		topics = map[string]bool{}
		bad    atomic.Bool
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if r.Header.Get("X-Vault-Signature") != Sign(secret, body) {
			bad.Store(true)
		}
		var note Notification
		if err := json.Unmarshal(body, &note); err != nil || len(note.Events) != 1 {
			bad.Store(true)
		}
		mu.Lock()
		topics[r.Header.Get("X-Vault-Topic")] = true
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, secret)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Record(context.Background(), conversionReceipt()); err != nil {
		t.Fatalf("record: %v", err)
	}
	waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(topics) == 2
	}, time.Second)
	mu.Lock()
	defer mu.Unlock()
	if !topics[string(TopicProfitsConverted)] || !topics[string(TopicRewardsPaid)] {
		t.Fatalf("unexpected topics %v", topics)
	}
	if bad.Load() {
		t.Fatalf("received malformed or unsigned delivery")
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, time.Millisecond*10, time.Millisecond*20))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	receipt := conversionReceipt()
	receipt.Events = receipt.Events[:1]
	if err := dispatcher.Record(context.Background(), receipt); err != nil {
		t.Fatalf("record: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", attempts)
	}
}

func TestDispatcherIgnoresQuietReceipts(t *testing.T) {
	dispatcher, err := NewDispatcher("http://127.0.0.1:1", []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	err = dispatcher.Record(context.Background(), &types.Receipt{ID: "r", Events: []*types.Event{{Type: events.TypeVaultDeposited}}})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(dispatcher.queue) != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestRecordDoesNotBlockOnStalledEndpoint(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	defer close(release)
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithQueueSize(1), WithRetryPolicy(5, time.Second, time.Second))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	var full int
	for i := 0; i < 20; i++ {
		receipt := conversionReceipt()
		receipt.ID = fmt.Sprintf("r-%d", i)
		receipt.Events = receipt.Events[:1]
		if err := dispatcher.Record(ctx, receipt); errors.Is(err, ErrQueueFull) {
			full++
		} else if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("record blocked for %s", elapsed)
	}
	if full == 0 || dispatcher.Dropped() != uint64(full) {
		t.Fatalf("expected dropped notifications, full=%d dropped=%d", full, dispatcher.Dropped())
	}

	cancel()
	if err := dispatcher.Record(ctx, conversionReceipt()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context error, got %v", err)
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
}
