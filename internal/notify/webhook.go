package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoTarget means no webhook URL, or neither GET nor POST, is configured.
var ErrNoTarget = errors.New("notify: no webhook configured")

// Target is the live webhook configuration.
type Target struct {
	URL    string
	GET    bool
	POST   bool
	Device string // display name sent with each event
}

// Enabled reports whether a delivery would be attempted.
func (t Target) Enabled() bool {
	return t.URL != "" && (t.GET || t.POST)
}

// Message describes one alarm transition.
type Message struct {
	Event        string        `json:"event"`
	Device       string        `json:"device"`
	State        string        `json:"state"`
	Duration     time.Duration `json:"-"`
	MotionEvents uint64        `json:"motionEvents"`
	AlarmEvents  uint64        `json:"alarmEvents"`
	Timestamp    time.Time     `json:"-"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		alias
		Duration  int64  `json:"duration"`
		Timestamp string `json:"timestamp"`
	}{
		alias:     alias(m),
		Duration:  int64(m.Duration / time.Second),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// Webhook delivers Messages to a user endpoint.
type Webhook struct {
	client *http.Client
	counter
}

// NewWebhook creates a webhook forwarder with the given per-request timeout
// (DefaultTimeout if zero).
func NewWebhook(timeout time.Duration) *Webhook {
	return &Webhook{client: newClient(timeout)}
}

// Send issues a GET with query parameters and/or a JSON POST, as configured.
// Both are attempted even if the first fails; the first error is returned.
func (w *Webhook) Send(ctx context.Context, t Target, m Message) error {
	if !t.Enabled() {
		return ErrNoTarget
	}
	m.Device = t.Device

	var first error
	if t.GET {
		err := w.get(ctx, t.URL, m)
		w.record(err)
		if err != nil {
			first = fmt.Errorf("webhook get: %w", err)
		}
	}
	if t.POST {
		err := w.post(ctx, t.URL, m)
		w.record(err)
		if err != nil && first == nil {
			first = fmt.Errorf("webhook post: %w", err)
		}
	}
	return first
}

// Stats returns a copy of the delivery counters.
func (w *Webhook) Stats() Stats {
	return w.snapshot()
}

func (w *Webhook) get(ctx context.Context, raw string, m Message) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("event", m.Event)
	q.Set("device", m.Device)
	q.Set("duration", strconv.FormatInt(int64(m.Duration/time.Second), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return do(w.client, req)
}

func (w *Webhook) post(ctx context.Context, raw string, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return postJSON(ctx, w.client, raw, body)
}
