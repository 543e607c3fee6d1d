package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoWLED means no WLED controller URL is configured.
var ErrNoWLED = errors.New("notify: no wled configured")

// wledOff is posted when an alarm clears.
const wledOff = `{"on":false}`

// WLED pushes JSON state to a WLED controller's /json/state endpoint.
type WLED struct {
	client *http.Client
	counter
}

// NewWLED creates a WLED forwarder with the given per-request timeout
// (DefaultTimeout if zero).
func NewWLED(timeout time.Duration) *WLED {
	return &WLED{client: newClient(timeout)}
}

// Trigger posts payload to the controller at base.
func (w *WLED) Trigger(ctx context.Context, base, payload string) error {
	return w.push(ctx, base, payload)
}

// Clear switches the controller off.
func (w *WLED) Clear(ctx context.Context, base string) error {
	return w.push(ctx, base, wledOff)
}

// Stats returns a copy of the delivery counters.
func (w *WLED) Stats() Stats {
	return w.snapshot()
}

func (w *WLED) push(ctx context.Context, base, payload string) error {
	base = trimBase(base)
	if base == "" {
		return ErrNoWLED
	}
	err := postJSON(ctx, w.client, base+"/json/state", []byte(payload))
	w.record(err)
	if err != nil {
		return fmt.Errorf("wled: %w", err)
	}
	return nil
}
