// Package notify pushes plain-text messages to an ntfy-style HTTP endpoint.
// It is used to surface rate-limit stops that would otherwise only appear in
// the logs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client posts notifications to a fixed endpoint. A Client with an empty
// endpoint is valid and drops every message.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a notification client for the given endpoint. httpClient may be
// nil to use http.DefaultClient.
func New(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.endpoint != "" }

// Send posts message to the configured endpoint. With no endpoint configured
// the message is silently dropped.
func (c *Client) Send(ctx context.Context, message string) error {
	if !c.Enabled() {
		return nil
	}
	return post(ctx, c.http, c.endpoint, message)
}

func post(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("notify: no endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: endpoint returned status=%d", resp.StatusCode)
	}
	return nil
}
