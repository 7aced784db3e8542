// Package notify posts alert messages to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/raidwatch/raidwatch/internal/metrics"
)

// DefaultTimeout bounds a single fire-and-forget delivery.
const DefaultTimeout = 10 * time.Second

// Payload is the webhook request body.
type Payload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Target is a webhook destination. An empty URL disables delivery.
type Target struct {
	URL      string
	Username string
}

// Enabled reports whether t has somewhere to post.
func (t Target) Enabled() bool {
	return t.URL != ""
}

// Notifier delivers payloads. Go must return immediately.
type Notifier interface {
	Go(managerID, url string, p Payload)
}

// Client posts JSON payloads to webhook URLs.
type Client struct {
	http    *http.Client
	timeout time.Duration
	metrics metrics.Collector
	log     *log.Entry

	wg sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-delivery timeout used by Go.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) { c.metrics = metrics.OrNoop(m) }
}

// NewClient creates a webhook client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		metrics: metrics.Noop{},
		log:     log.WithField("component", "notify"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts p to url and waits for the response. Any 2xx status is success.
func (c *Client) Send(ctx context.Context, url string, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode webhook payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Go sends p in the background. The outcome is only logged and counted.
func (c *Client) Go(managerID, url string, p Payload) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		err := c.Send(ctx, url, p)
		c.metrics.Notification(managerID, metrics.Result(err))
		if err != nil {
			c.log.WithField("manager", managerID).WithError(err).Warn("webhook notification failed")
			return
		}
		c.log.WithField("manager", managerID).Debug("webhook notification sent")
	}()
}

// Wait blocks until every delivery started by Go has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}
