package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"email_forwarder/internal/ledger"

	"github.com/rs/zerolog/log"
)

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
	maxRowsShown     = 10
)

type Config struct {
	BaseURL    string
	Topic      string
	Enabled    bool
	Priority   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client posts plain-text notifications to an ntfy topic. After repeated
// failures it stops trying for a cooldown period.
type Client struct {
	httpClient *http.Client
	cfg        Config

	mutex       sync.Mutex
	failures    int
	lastFailure time.Time
	circuitOpen bool

	totalSent    int64
	totalFailed  int64
	totalRetries int64
}

type NotificationError struct {
	Type       string
	StatusCode int
	Attempt    int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s] attempt %d: %v", e.Type, e.Attempt, e.Underlying)
}

func (e *NotificationError) Unwrap() error {
	return e.Underlying
}

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "timeout", "rate_limit":
		return true
	case "auth", "client":
		return false
	default:
		return e.StatusCode >= 500
	}
}

func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
	}
}

// Send posts message with an optional title.
func (c *Client) Send(ctx context.Context, title, message string) error {
	if !c.cfg.Enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	if c.isCircuitOpen() {
		log.Warn().Msg("Circuit breaker open, skipping notification")
		return &NotificationError{Type: "circuit_open", Underlying: fmt.Errorf("circuit breaker is open")}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Retrying notification after delay")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			c.incrementRetries()
		}

		err := c.sendOnce(ctx, title, message, attempt+1)
		if err == nil {
			c.recordSuccess()
			return nil
		}
		lastErr = err

		var notifErr *NotificationError
		if errors.As(err, &notifErr) && !notifErr.IsRetryable() {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("Non-retryable error, giving up")
			c.recordFailure()
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Int("max_retries", c.cfg.MaxRetries).Msg("Notification attempt failed")
	}

	c.recordFailure()
	return &NotificationError{Type: "max_retries_exceeded", Attempt: c.cfg.MaxRetries + 1, Underlying: lastErr}
}

func (c *Client) sendOnce(ctx context.Context, title, message string, attempt int) error {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return &NotificationError{Type: "client", Attempt: attempt, Underlying: err}
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if c.cfg.Priority != "" {
		req.Header.Set("Priority", c.cfg.Priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NotificationError{Type: "network", Attempt: attempt, Underlying: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Attempt:    attempt,
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	log.Debug().Int("status_code", resp.StatusCode).Int("attempt", attempt).Msg("Notification sent")
	return nil
}

// NotifyLedgerRows reports rows appended to a project's ledger.
func (c *Client) NotifyLedgerRows(ctx context.Context, project string, rows []ledger.WrittenRow) {
	if !c.cfg.Enabled || len(rows) == 0 {
		return
	}
	if err := c.Send(ctx, "Ledger updated: "+project, FormatLedgerRows(project, rows)); err != nil {
		log.Warn().Err(err).Str("project", project).Msg("Ledger notification failed")
	}
}

// NotifyFailure reports an email that could not be processed.
func (c *Client) NotifyFailure(ctx context.Context, subject string, cause error) {
	if !c.cfg.Enabled {
		return
	}
	message := fmt.Sprintf("Subject: %s\nError: %v", subject, cause)
	if err := c.Send(ctx, "Email processing failed", message); err != nil {
		log.Warn().Err(err).Msg("Failure notification failed")
	}
}

// FormatLedgerRows lists up to ten rows, one per line.
func FormatLedgerRows(project string, rows []ledger.WrittenRow) string {
	var sb strings.Builder
	if len(rows) == 1 {
		sb.WriteString(fmt.Sprintf("%s: 1 new ledger row\n", project))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %d new ledger rows\n", project, len(rows)))
	}

	shown := min(len(rows), maxRowsShown)
	for _, r := range rows[:shown] {
		line := fmt.Sprintf("• #%d %s", r.Row.Ref, r.Row.Description)
		if r.Row.Total != nil {
			line += " = " + r.Row.Total.StringFixed(2)
		}
		sb.WriteString(line + "\n")
	}
	if len(rows) > shown {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", len(rows)-shown))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (c *Client) isCircuitOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.circuitOpen && time.Since(c.lastFailure) > circuitCooldown {
		c.circuitOpen = false
		c.failures = 0
		log.Info().Msg("Circuit breaker moving to half-open state")
	}
	return c.circuitOpen
}

func (c *Client) recordSuccess() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalSent++
	c.failures = 0
	if c.circuitOpen {
		c.circuitOpen = false
		log.Info().Msg("Circuit breaker closed after successful notification")
	}
}

func (c *Client) recordFailure() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.totalFailed++
	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= circuitThreshold && !c.circuitOpen {
		c.circuitOpen = true
		log.Warn().Int("failures", c.failures).Msg("Circuit breaker opened due to consecutive failures")
	}
}

func (c *Client) incrementRetries() {
	c.mutex.Lock()
	c.totalRetries++
	c.mutex.Unlock()
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))

	// ±25%
	jitter := rand.Float64()*0.5 - 0.25
	backoff = backoff * (1 + jitter)

	if maxBackoff := float64(c.cfg.MaxDelay); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
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

// GetMetrics returns current notification metrics
func (c *Client) GetMetrics() (sent, failed, retries int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.totalSent, c.totalFailed, c.totalRetries
}
