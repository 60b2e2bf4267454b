package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"yieldredirect/core/events"
	"yieldredirect/core/types"
)

// Topic represents the logical webhook topic.
type Topic string

const (
	// TopicProfitsConverted is sent when a conversion credits a reward pool.
	TopicProfitsConverted Topic = "vault.profits.converted"
	// TopicRewardsPaid is sent when an operation transfers rewards to depositors.
	TopicRewardsPaid Topic = "vault.rewards.paid"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 32
)

// ErrQueueFull is returned when a notification is dropped because the
// delivery queue is saturated.
var ErrQueueFull = errors.New("webhook: delivery queue full")

// Notification describes the webhook body.
type Notification struct {
	Topic      Topic          `json:"topic"`
	Receipt    string         `json:"receipt"`
	Operation  string         `json:"operation"`
	Caller     string         `json:"caller"`
	Events     []*types.Event `json:"events"`
	At         time.Time      `json:"at"`
	DeliveryID string         `json:"deliveryId"`
}

// Dispatcher forwards committed receipts to an HTTP endpoint with retry and
// exponential backoff.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	queueSize   int

	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan delivery
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

type delivery struct {
	topic Topic
	body  []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithQueueSize bounds the number of notifications waiting for delivery.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		queueSize:   defaultQueueSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.queue = make(chan delivery, dispatcher.queueSize)
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Dropped reports how many notifications were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Record enqueues one notification per topic the receipt carries. Receipts
// without conversions or payouts are ignored. It never waits for queue space:
// a saturated queue drops the notification and returns ErrQueueFull.
func (d *Dispatcher) Record(ctx context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	topics := []struct {
		topic Topic
		event string
	}{
		{TopicProfitsConverted, events.TypeProfitsConverted},
		{TopicRewardsPaid, events.TypeRewardsClaimed},
	}
	for _, entry := range topics {
		matched := receipt.EventsOfType(entry.event)
		if len(matched) == 0 {
			continue
		}
		note := Notification{
			Topic:      entry.topic,
			Receipt:    receipt.ID,
			Operation:  receipt.Operation,
			Caller:     receipt.Caller,
			Events:     matched,
			At:         receipt.At.UTC(),
			DeliveryID: fmt.Sprintf("%s-%s", entry.topic, receipt.ID),
		}
		if err := d.enqueue(ctx, note); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, note Notification) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ctx.Err() != nil {
		return errors.New("webhook: dispatcher closed")
	}
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	select {
	case d.queue <- delivery{topic: note.Topic, body: data}:
		return nil
	default:
		d.dropped.Add(1)
		return fmt.Errorf("%w: %s dropped", ErrQueueFull, note.DeliveryID)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil || attempt >= d.maxAttempts {
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Topic", string(job.topic))
	req.Header.Set("X-Vault-Signature", Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
