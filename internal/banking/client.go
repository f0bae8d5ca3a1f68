// Package banking fetches a user's transactions from the banking
// collaborator over HTTP.
package banking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"

	"github.com/shopspring/decimal"
)

const maxBackoff = 30 * time.Second

// Config holds the collaborator endpoint and retry policy.
type Config struct {
	BaseURL string
	// Timeout bounds a single HTTP attempt (default: 15s).
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt (default: 3).
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles per retry up to 30s (default: 1s).
	BaseDelay time.Duration
}

type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		sleep:      sleepContext,
	}
}

// wireTransaction is one element of the collaborator's JSON array.
type wireTransaction struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      json.RawMessage `json:"amount"`
	Date        string          `json:"date"`
}

// FetchTransactions returns the transactions visible through connectionToken.
//
// Transient failures (network errors, 429 and 5xx) are retried with
// exponential backoff. A rejected token yields core.ErrAuthentication. When
// the body breaks off mid-array, the items decoded so far are returned with an
// error wrapping core.ErrUpstream.
func (c *Client) FetchTransactions(ctx context.Context, connectionToken string) ([]core.RawTransaction, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt-1, c.baseDelay)
			slog.WarnContext(ctx, "Retrying banking fetch",
				log.FieldComponent, log.ComponentBanking,
				"attempt", attempt,
				"delay", delay,
				log.FieldError, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %w", core.ErrUpstream, err)
			}
		}

		items, retry, err := c.fetchOnce(ctx, connectionToken)
		if err == nil || !retry {
			return items, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("banking fetch gave up after %d attempts: %w", c.maxRetries+1, lastErr)
}

// fetchOnce performs one attempt and reports whether a failure is worth retrying.
func (c *Client) fetchOnce(ctx context.Context, token string) ([]core.RawTransaction, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions", nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %w", core.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: %w", core.ErrUpstream, ctx.Err())
		}
		return nil, true, fmt.Errorf("%w: %w", core.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: banking collaborator rejected the connection token", core.ErrAuthentication)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, true, fmt.Errorf("%w: banking collaborator returned %d", core.ErrUpstream, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: banking collaborator returned %d", core.ErrUpstream, resp.StatusCode)
	}

	items, err := Decode(resp.Body)
	return items, false, err
}

// Decode reads a JSON array of transactions. Fields that do not parse are
// left zero so that validation rejects that item alone. A body that is not an
// array, or breaks off, returns every item completed so far and an error
// wrapping core.ErrUpstream.
func Decode(r io.Reader) ([]core.RawTransaction, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", core.ErrUpstream, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: response is not a JSON array", core.ErrUpstream)
	}

	var items []core.RawTransaction
	for dec.More() {
		var w wireTransaction
		if err := dec.Decode(&w); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				// The value was consumed; mistyped fields stay zero.
				items = append(items, w.toRaw())
				continue
			}
			return items, fmt.Errorf("%w: response broke off after %d items: %w", core.ErrUpstream, len(items), err)
		}
		items = append(items, w.toRaw())
	}
	if _, err := dec.Token(); err != nil {
		return items, fmt.Errorf("%w: response broke off after %d items: %w", core.ErrUpstream, len(items), err)
	}
	return items, nil
}

func (w wireTransaction) toRaw() core.RawTransaction {
	raw := core.RawTransaction{Description: w.Description, Category: w.Category}
	if len(w.Amount) > 0 {
		var d decimal.Decimal
		if err := d.UnmarshalJSON(w.Amount); err == nil {
			raw.Amount = d
		}
	}
	raw.OccurredAt = parseDate(w.Date)
	return raw
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Backoff returns base doubled attempt times, capped at 30s.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
