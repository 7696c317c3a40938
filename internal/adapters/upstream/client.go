package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/matchday/internal/domain/failure"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// client is the rate-limited JSON transport shared by both providers.
type client struct {
	base    string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// ClientOption customises a provider client.
type ClientOption func(*client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRate bounds outgoing requests. A non-positive rps disables limiting.
func WithRate(rps float64, burst int) ClientOption {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func newClient(base, apiKey string, timeout time.Duration, opts ...ClientOption) *client {
	c := &client{
		base:    strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	full := c.base + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return c.do(ctx, op, http.MethodGet, full, nil, out)
}

func (c *client) post(ctx context.Context, op, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return failure.Permanent(op, err)
	}
	return c.do(ctx, op, http.MethodPost, c.base+path, raw, out)
}

func (c *client) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return failure.Transient(op, err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return failure.Config(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classify(op, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))})
	}
	if resp.StatusCode == http.StatusNoContent {
		return failure.NoData(op, ErrNoData)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return failure.NoData(op, ErrNoData)
		}
		return failure.Transient(op, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// classify maps a provider status onto the failure taxonomy.
func classify(op string, err *StatusError) error {
	switch {
	case err.Status == http.StatusTooManyRequests:
		return failure.RateLimited(op, err)
	case err.Status == http.StatusUnauthorized || err.Status == http.StatusForbidden:
		return failure.Config(op, err)
	case err.Status == http.StatusNotFound:
		return failure.NoData(op, errors.Join(ErrNoData, err))
	case err.Status == http.StatusRequestTimeout || err.Status >= 500:
		return failure.Transient(op, err)
	default:
		return failure.Permanent(op, err)
	}
}
