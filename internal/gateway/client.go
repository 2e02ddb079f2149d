package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the gateway's REST API. Zero-value timeouts get a
// sane default; the circuit breaker around CreateSession is the caller's
// responsibility.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", params, &sess); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &sess, nil
}

func (c *HTTPClient) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+id, nil, &sess); err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", id, err)
	}
	return &sess, nil
}

func (c *HTTPClient) ExpireSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions/"+id+"/expire", nil, nil); err != nil {
		return fmt.Errorf("expire checkout session %s: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
