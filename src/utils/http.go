package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// GetJSON performs a GET and decodes a JSON body into out. Transport
// failures and HTTP status >= 400 wrap eventmodels.ErrTransport.
func GetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("GetJSON: failed to create request: %w", err)
	}

	body, err := do(client, req)
	if err != nil {
		return fmt.Errorf("GetJSON: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GetJSON: failed to decode body: %v: %w", err, eventmodels.ErrData)
	}

	return nil
}

// SendJSON marshals payload and sends it with the given method and headers.
func SendJSON(ctx context.Context, client *http.Client, method, url string, payload interface{}, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("SendJSON: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("SendJSON: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := do(client, req)
	if err != nil {
		return nil, fmt.Errorf("SendJSON: %w", err)
	}

	return body, nil
}

// Fetch performs a GET and returns the raw body.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: failed to create request: %w", err)
	}

	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Host, err, eventmodels.ErrTransport)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read body: %v: %w", req.Method, req.URL.Host, err, eventmodels.ErrTransport)
	}

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s: %w", req.Method, req.URL.Host, res.StatusCode, truncate(body, 200), eventmodels.ErrTransport)
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}
