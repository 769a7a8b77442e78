package neo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type neoResponse[T any] struct {
	Stat    string `json:"stat"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

func (r *neoResponse[T]) stat() (string, string) {
	return r.Stat, r.Message
}

type stater interface {
	stat() (string, string)
}

// doRequest issues one API call. An empty token means an
// unauthenticated call, otherwise it is sent as the bearer token
// (the view token during login, the session token afterwards).
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any, token string, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	urlStr := c.baseURL + path
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("neo-fin-key", c.consumerKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		c.sessionMu.Lock()
		sid := c.sid
		c.sessionMu.Unlock()
		if sid != "" {
			req.Header.Set("Sid", sid)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if s, ok := out.(stater); ok {
		if st, msg := s.stat(); st != "" && st != "Ok" {
			return fmt.Errorf("neo api error: %s (stat=%s)", msg, st)
		}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}

// session returns the current session token or an error when the
// client has not logged in yet.
func (c *Client) session() (string, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.sessionToken == "" {
		return "", fmt.Errorf("no active session, login first")
	}
	return c.sessionToken, nil
}
