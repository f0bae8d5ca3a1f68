// This file implements parsing and validation of request bodies and query
// parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/services"

	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input that never reached the services.
var errBadRequest = errors.New("bad request")

// decodeJSON reads exactly one JSON value from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// transactionRequest is one expense as posted by a client.
type transactionRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

// toRaw converts the request. An empty date stays zero; the services decide
// what that means.
func (t transactionRequest) toRaw() (core.RawTransaction, error) {
	amount, err := core.ParseAmount(t.Amount)
	if err != nil {
		return core.RawTransaction{}, err
	}
	at, err := parseDateParam(t.Date)
	if err != nil {
		return core.RawTransaction{}, err
	}
	return core.RawTransaction{
		Description: sanitizeInput(t.Description),
		Category:    sanitizeInput(t.Category),
		Amount:      amount,
		OccurredAt:  at,
	}, nil
}

// toRawLenient converts the request leaving unparseable fields zero, so the
// ingestor rejects the item at its own index.
func (t transactionRequest) toRawLenient() core.RawTransaction {
	amount, _ := core.ParseAmount(t.Amount)
	at, _ := parseDateParam(t.Date)
	return core.RawTransaction{
		Description: sanitizeInput(t.Description),
		Category:    sanitizeInput(t.Category),
		Amount:      amount,
		OccurredAt:  at,
	}
}

type amendmentRequest struct {
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Amount      *string `json:"amount"`
}

func (a amendmentRequest) toAmendment() (core.Amendment, error) {
	var out core.Amendment
	if a.Description != nil {
		d := sanitizeInput(*a.Description)
		out.Description = &d
	}
	if a.Category != nil {
		c := sanitizeInput(*a.Category)
		out.Category = &c
	}
	if a.Amount != nil {
		amt, err := core.ParseAmount(*a.Amount)
		if err != nil {
			return core.Amendment{}, err
		}
		out.Amount = &amt
	}
	return out, nil
}

type budgetRequest struct {
	Category string `json:"category"`
	Limit    string `json:"limit"`
}

func (b budgetRequest) parse() (string, decimal.Decimal, error) {
	limit, err := core.ParseAmount(b.Limit)
	if err != nil {
		return "", decimal.Zero, core.ErrInvalidLimit
	}
	return sanitizeInput(b.Category), limit, nil
}

type goalRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Target   string `json:"target"`
	Deadline string `json:"deadline"`
}

func (g goalRequest) parse() (services.GoalInput, error) {
	target, err := core.ParseAmount(g.Target)
	if err != nil {
		return services.GoalInput{}, core.ErrInvalidTarget
	}
	deadline, err := parseDateParam(g.Deadline)
	if err != nil {
		return services.GoalInput{}, err
	}
	return services.GoalInput{
		Title:    sanitizeInput(g.Title),
		Category: sanitizeInput(g.Category),
		Target:   target,
		Deadline: deadline,
	}, nil
}

type syncRequest struct {
	ConnectionToken string `json:"connection_token"`
}

// parseDateParam accepts YYYY-MM-DD or RFC 3339. Empty input is the zero time.
func parseDateParam(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", errBadRequest, s)
}

// ParsePeriodParam reads ?period=YYYY-MM. Absent means the zero period.
func ParsePeriodParam(query url.Values) (core.Period, error) {
	v := strings.TrimSpace(query.Get("period"))
	if v == "" {
		return core.Period{}, nil
	}
	p, err := core.ParsePeriod(v)
	if err != nil {
		return core.Period{}, fmt.Errorf("%w: invalid period %q, want YYYY-MM", errBadRequest, v)
	}
	return p, nil
}

// ParseBoolParam reads a boolean query flag, false when absent or malformed.
func ParseBoolParam(query url.Values, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return b
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
