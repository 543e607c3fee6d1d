// Package status provides a thread-safe status tracker for the motion
// sensor. The control loop writes it every tick; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/notify"
)

// NetworkInfo contains network state, supplied by the host environment.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
	RSSI       int
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs   int64
	HTTPAddr string
	Store    string
	DeviceID string
	Version  string
}

// MQTTInfo is a copy of the broker link summary. It is kept local so that
// status does not import internal/mqtt.
type MQTTInfo struct {
	State              string
	Connected          bool
	Broker             string
	ReconnectDelay     time.Duration
	DiscoveryPublished bool
	Published          uint64
	PublishFailures    uint64
	ConnectFailures    uint64
}

// Filter is the noise filter output.
type Filter struct {
	Raw     bool
	Percent int
	Stable  bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Alarm     alarm.Snapshot
	Filter    Filter
	StartTime time.Time
	Now       time.Time
	LastTick  time.Time
	MQTT      MQTTInfo
	Webhook   notify.Stats
	WLED      notify.Stats
	Network   *NetworkInfo
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// AlarmActive reports whether an alarm is raised (ACTIVE or CLEARING).
func (s Snapshot) AlarmActive() bool {
	return s.Alarm.State == alarm.StateActive || s.Alarm.State == alarm.StateClearing
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Alarm:     alarm.Snapshot{State: alarm.StateIdle, Since: startTime},
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update sets the alarm and filter state. Called from the loop on every tick.
func (t *Tracker) Update(a alarm.Snapshot, f Filter, tick time.Time) {
	t.mu.Lock()
	t.snap.Alarm = a
	t.snap.Filter = f
	t.snap.LastTick = tick
	t.mu.Unlock()
}

// SetMQTT sets the broker link summary.
func (t *Tracker) SetMQTT(info MQTTInfo) {
	t.mu.Lock()
	t.snap.MQTT = info
	t.mu.Unlock()
}

// SetDelivery sets the forwarder counters.
func (t *Tracker) SetDelivery(webhook, wled notify.Stats) {
	t.mu.Lock()
	t.snap.Webhook = webhook
	t.snap.WLED = wled
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	s.Now = now()
	return s
}
