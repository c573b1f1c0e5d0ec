package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "xtap/0.1.0"

// httpChannel is the request/response delivery path (channel A): a localhost
// HTTP daemon authenticated with a bearer credential.
type httpChannel struct {
	base         string
	token        string
	client       *http.Client
	probeTimeout time.Duration
}

func newHTTPChannel(address, token string, sendTimeout, probeTimeout time.Duration) *httpChannel {
	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &httpChannel{
		base:         strings.TrimRight(base, "/"),
		token:        token,
		client:       &http.Client{Timeout: sendTimeout},
		probeTimeout: probeTimeout,
	}
}

// Probe checks daemon liveness with a short GET /status.
func (c *httpChannel) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var status struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.OK
}

// Post issues one authenticated request and decodes the daemon's response.
// A timeout, connection error, or non-success response is returned as an
// error; the caller decides whether to fail over.
func (c *httpChannel) Post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}

	if resp.StatusCode >= 300 {
		return decoded, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, responseError(decoded))
	}
	if ok, present := decoded["ok"].(bool); present && !ok {
		return decoded, fmt.Errorf("%s rejected: %s", path, responseError(decoded))
	}
	return decoded, nil
}

func responseError(decoded map[string]any) string {
	if msg, ok := decoded["error"].(string); ok && msg != "" {
		return msg
	}
	return "unknown error"
}
