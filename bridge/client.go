package bridge

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

// maxResponseBody caps responses read from the daemon (1 MiB).
const maxResponseBody int64 = 1 << 20

// Client talks to a daemon's Bridge over HTTP.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets addr ("host:port" or a full http:// URL).
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// Send posts req and returns the raw response body, nil when the daemon
// answered with no content.
func (c *Client) Send(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/message", body)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, &ErrNoListener{Action: req.Action}
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	return resp.body, nil
}

// ChannelNames asks the page for its visible channel names.
func (c *Client) ChannelNames(ctx context.Context) ([]string, error) {
	raw, err := c.Send(ctx, Request{Action: ActionGetChannelNames})
	if err != nil {
		return nil, err
	}
	var out ChannelNamesResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("bridge: decode channel names: %w", err)
		}
	}
	return out.ChannelNames, nil
}

// NotifySettingsUpdated tells the page to reload its settings.
func (c *Client) NotifySettingsUpdated(ctx context.Context) error {
	_, err := c.Send(ctx, Request{Action: ActionSettingsUpdated})
	return err
}

// ActiveTab reports the page the daemon is attached to.
func (c *Client) ActiveTab(ctx context.Context) (Tab, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tab", nil)
	if err != nil {
		return Tab{}, err
	}
	if err := resp.check(); err != nil {
		return Tab{}, err
	}
	var t Tab
	if err := json.Unmarshal(resp.body, &t); err != nil {
		return Tab{}, fmt.Errorf("bridge: decode tab: %w", err)
	}
	return t, nil
}

type response struct {
	status int
	body   []byte
}

func (r response) check() error {
	if r.status < 200 || r.status >= 300 {
		return fmt.Errorf("bridge: status %d: %s", r.status, bytes.TrimSpace(r.body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return response{}, fmt.Errorf("bridge: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, &ErrUnreachable{Endpoint: c.base, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return response{}, fmt.Errorf("bridge: read response: %w", err)
	}
	return response{status: resp.StatusCode, body: data}, nil
}
