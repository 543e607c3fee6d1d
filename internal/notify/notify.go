// Package notify forwards alarm transitions to a user webhook and to a WLED
// light controller. Each delivery is a single request with a short timeout;
// failures are counted and never retried.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds every outbound request.
const DefaultTimeout = 5 * time.Second

// EventTest is the synthetic event used by the test endpoints.
const EventTest = "TEST"

// Stats are delivery counters for one forwarder.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

type counter struct {
	mu    sync.Mutex
	stats Stats
}

func (c *counter) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Failed++
		c.stats.LastError = err.Error()
		return
	}
	c.stats.Sent++
}

func (c *counter) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func trimBase(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}
