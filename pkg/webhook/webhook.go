package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when the receiver resolves to a blocked address.
var ErrBlockedAddress = errors.New("webhook address not allowed")

// StatusError is returned when the receiver answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// Blocked rejects dialed addresses it matches. When set, redirects are
	// not followed: a 3xx answer is returned as a StatusError.
	Blocked func(netip.Addr) bool
}

// Client posts JSON payloads to webhook receivers.
type Client struct {
	httpClient *http.Client
}

func New(opts Options) *Client {
	if opts.Blocked == nil {
		return &Client{httpClient: &http.Client{Timeout: opts.Timeout}}
	}

	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
		Control:   dialGuard(opts.Blocked),
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Client{httpClient: client}
}

// dialGuard checks the address actually being connected to, after DNS
// resolution, so a rebinding resolver cannot slip past the URL check.
func dialGuard(blocked func(netip.Addr) bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, _ syscall.RawConn) error {
		addrPort, err := netip.ParseAddrPort(address)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
		}
		if blocked(addrPort.Addr().Unmap()) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
		}
		return nil
	}
}

// Send posts payload as JSON to url. Any network error or non-2xx status is an error.
func (c *Client) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
