// Package notify delivers change alerts to a chat webhook with bounded
// retries, a circuit breaker, and an encrypted dead-letter queue for
// deliveries that exhaust their attempts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/retry"
	"stock_monitor/internal/state"
)

// QueueKey is the snapshot key under which dead-lettered deliveries persist.
const QueueKey = "failed_webhooks"

// FailedDelivery is one delivery that exhausted its attempts, held durably
// for manual reconciliation. The whole queue is dropped on the next
// successful delivery: success means the channel is healthy again, so stale
// failures stop being worth surfacing.
type FailedDelivery struct {
	Payload   json.RawMessage `json:"payload"`
	Endpoint  string          `json:"endpoint"`
	Error     string          `json:"error"`
	Timestamp string          `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	Status    string          `json:"status"`
}

// DeliveryError carries the classification a caller (and the retry loop)
// needs to decide what a failure means.
type DeliveryError struct {
	Kind       string // network, timeout, server, rate_limit, client, circuit_open, exhausted
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed [%s] attempt %d: %v", e.Kind, e.Attempt, e.Underlying)
}

func (e *DeliveryError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether another attempt could plausibly succeed.
// 4xx is a permanent payload or endpoint problem; retrying it only burns
// the attempt budget.
func (e *DeliveryError) IsRetryable() bool {
	switch e.Kind {
	case "network", "timeout", "server", "rate_limit":
		return true
	case "client", "circuit_open":
		return false
	default:
		return e.StatusCode >= 500
	}
}

// callerFault reports whether the failure says nothing about downstream
// health. Such failures stay out of the breaker's count.
func (e *DeliveryError) callerFault() bool {
	return e.Kind == "client"
}

// BreakerConfig governs the circuit breaker. The consecutive-failure count
// accumulates across Deliver calls and is only reset by a successful
// delivery, so the breaker trips across separate runs against an endpoint
// that has been down for a while, and an open breaker rejects without any
// network I/O until the cooldown elapses.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig opens after 5 consecutive failed deliveries and
// rejects without network I/O for 60 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 60 * time.Second}
}

// Client posts JSON payloads to a single webhook endpoint.
type Client struct {
	httpClient *http.Client
	webhookURL string
	policy     retry.Config
	breaker    BreakerConfig
	store      *state.Store

	// Circuit breaker state, shared across Deliver calls.
	mutex       sync.Mutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
}

// NewClient builds a notifier around the given endpoint, retry policy and
// breaker configuration. The store holds the dead-letter queue.
func NewClient(webhookURL string, policy retry.Config, breaker BreakerConfig, store *state.Store) *Client {
	return &Client{
		httpClient: &http.Client{},
		webhookURL: webhookURL,
		policy:     policy,
		breaker:    breaker,
		store:      store,
	}
}

// Deliver posts the payload, retrying transient failures per the policy.
// On success the entire dead-letter queue is cleared. On exhaustion, a
// terminal 4xx, or an open breaker, the payload is dead-lettered and the
// error returned. The caller must still persist its new snapshot, or the
// next run would re-detect the same change forever.
func (c *Client) Deliver(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %w", err)
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, not attempting delivery")
		deliveryErr := &DeliveryError{
			Kind:       "circuit_open",
			Underlying: fmt.Errorf("circuit breaker is open"),
		}
		if qErr := c.deadLetter(raw, deliveryErr, 0); qErr != nil {
			return qErr
		}
		return deliveryErr
	}

	var lastErr *DeliveryError
	attempts := 0
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retry.Backoff(attempt-1, c.policy.BaseDelay, c.policy.MaxDelay)
			log.Debug().
				Dur("delay", delay).
				Int("next_attempt", attempt+1).
				Msg("Retrying delivery after delay")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempts++
		err := c.post(ctx, raw, attempts)
		if err == nil {
			c.recordSuccess()
			return c.clearDeadLetters()
		}

		lastErr = err
		// 4xx is the caller's fault, not a downstream health signal; it
		// stays out of the breaker's count.
		if !err.callerFault() {
			c.recordFailure()
		}
		if !err.IsRetryable() {
			log.Warn().
				Err(err).
				Int("attempt", attempts).
				Msg("Non-retryable delivery error, giving up")
			break
		}
		log.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", c.policy.MaxRetries+1).
			Msg("Delivery attempt failed")
	}

	if qErr := c.deadLetter(raw, lastErr, attempts); qErr != nil {
		return qErr
	}
	if lastErr.IsRetryable() {
		return &DeliveryError{
			Kind:       "exhausted",
			StatusCode: lastErr.StatusCode,
			Attempt:    attempts,
			Underlying: lastErr,
		}
	}
	return lastErr
}

// post performs one webhook POST with the per-attempt timeout.
func (c *Client) post(ctx context.Context, payload []byte, attempt int) *DeliveryError {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Kind: "client", Attempt: attempt, Underlying: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := "network"
		if attemptCtx.Err() == context.DeadlineExceeded {
			kind = "timeout"
		}
		return &DeliveryError{Kind: kind, Attempt: attempt, Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &DeliveryError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Int("attempt", attempt).
		Msg("Webhook delivered")
	return nil
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.circuitOpen {
		return false
	}
	if time.Since(c.lastFailure) > c.breaker.Cooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker cooldown elapsed, allowing delivery")
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.circuitOpen || c.failures > 0 {
		log.Info().Msg("Delivery succeeded, circuit breaker reset")
	}
	c.circuitOpen = false
	c.failures = 0
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= c.breaker.FailureThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().
			Int("failures", c.failures).
			Dur("cooldown", c.breaker.Cooldown).
			Msg("Circuit breaker opened")
	}
}

// deadLetter appends a FailedDelivery to the durable queue. A queue write
// failure is a durability failure and propagates.
func (c *Client) deadLetter(payload []byte, cause *DeliveryError, attempts int) error {
	var queue []FailedDelivery
	c.store.LoadJSON(QueueKey, &queue)

	queue = append(queue, FailedDelivery{
		Payload:   payload,
		Endpoint:  c.webhookURL,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Attempts:  attempts,
		Status:    "failed",
	})

	if err := c.store.SaveJSON(QueueKey, queue); err != nil {
		return err
	}
	log.Warn().
		Int("queue_depth", len(queue)).
		Str("error", cause.Error()).
		Msg("Delivery dead-lettered")
	return nil
}

func (c *Client) clearDeadLetters() error {
	if err := c.store.Delete(QueueKey); err != nil {
		return err
	}
	return nil
}

// QueueReport summarizes the dead-letter queue for operator inspection.
type QueueReport struct {
	Count   int
	Entries []FailedDelivery
}

// CheckDeadLetterQueue reads the queue without modifying it. A queue that
// cannot be decrypted raises the store's read-failure alert and reports as
// empty, same as any other unreadable snapshot.
func (c *Client) CheckDeadLetterQueue() QueueReport {
	var queue []FailedDelivery
	c.store.LoadJSON(QueueKey, &queue)
	return QueueReport{Count: len(queue), Entries: queue}
}
