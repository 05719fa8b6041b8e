// parley/utils/http/httputils.go
package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClient is used when a caller passes a nil *http.Client.
var DefaultClient = &http.Client{Timeout: 60 * time.Second}

// StatusError is returned for any non-2xx response. Body holds at most the
// first 4KiB of the response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// Headers are extra request headers; Bearer sets Authorization when non-empty.
type Headers map[string]string

func Bearer(token string) Headers {
	if token == "" {
		return nil
	}
	return Headers{"Authorization": "Bearer " + token}
}

func PostJSON(ctx context.Context, client *http.Client, url string, headers Headers, body interface{}, resp interface{}) error {
	return DoJSON(ctx, client, http.MethodPost, url, headers, body, resp)
}

func GetJSON(ctx context.Context, client *http.Client, url string, headers Headers, resp interface{}) error {
	return DoJSON(ctx, client, http.MethodGet, url, headers, nil, resp)
}

// DoJSON sends body (if any) as JSON and decodes a 2xx response into resp (if any).
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers Headers, body interface{}, resp interface{}) error {
	r, err := do(ctx, client, method, url, headers, body)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if resp != nil {
		if err := json.NewDecoder(r.Body).Decode(resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// PostStream returns the raw body of a successful response; the caller closes it.
func PostStream(ctx context.Context, client *http.Client, url string, headers Headers, body interface{}) (io.ReadCloser, error) {
	r, err := do(ctx, client, http.MethodPost, url, headers, body)
	if err != nil {
		return nil, err
	}
	return r.Body, nil
}

func do(ctx context.Context, client *http.Client, method, url string, headers Headers, body interface{}) (*http.Response, error) {
	if client == nil {
		client = DefaultClient
	}
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		defer r.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
		return nil, &StatusError{StatusCode: r.StatusCode, Body: b}
	}
	return r, nil
}
