// Package app wires the subsystems into one device and runs its control
// loop. Every subsystem is owned by Device and touched only from the loop
// goroutine; other goroutines reach it through Do.
package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/device"
	"github.com/miswired/esp32-radar-sub000/internal/filter"
	"github.com/miswired/esp32-radar-sub000/internal/gpio"
	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/mqtt"
	"github.com/miswired/esp32-radar-sub000/internal/notify"
	"github.com/miswired/esp32-radar-sub000/internal/status"
)

// DefaultWatchdog is the longest a loop iteration may take.
const DefaultWatchdog = 30 * time.Second

// networkRefresh is how often Options.Network is polled.
const networkRefresh = time.Minute

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("app: device stopped")

// Options configures a Device. Config and Reader are required.
type Options struct {
	Config *config.Manager
	Reader gpio.Reader
	LED    gpio.LED // nil disables the status LED

	DeviceID string
	Version  string
	Dialer   mqtt.Dialer // nil uses paho

	FilterSize    int
	NotifyTimeout time.Duration
	Watchdog      time.Duration // 0 selects DefaultWatchdog, negative disables

	Tracker *status.Tracker // nil creates one
	Network func() *status.NetworkInfo

	// Probes for diagnostics; nil selects the host implementations.
	SignalLevel func() (int, bool)
	FreeMemory  func() uint64

	Now func() time.Time
}

// Device is the application context: one instance per process.
type Device struct {
	cfg      *config.Manager
	filter   *filter.Filter
	machine  *alarm.Machine
	dispatch alarm.Dispatcher
	apiKeys  *auth.APIKeyGuard
	sessions *auth.SessionGuard
	link     *mqtt.Link
	webhook  *notify.Webhook
	wled     *notify.WLED
	reader   gpio.Reader
	led      gpio.LED
	tracker  *status.Tracker

	deviceID    string
	start       time.Time
	now         func() time.Time
	network     func() *status.NetworkInfo
	signalLevel func() (int, bool)
	freeMemory  func() uint64

	ledOn       bool
	ledFailed   bool
	lastRaw     bool
	readErrors  uint64
	lastNetwork time.Time

	requests chan request
	stopped  chan struct{}

	watchdog time.Duration
	beat     atomic.Int64

	restartOnce   sync.Once
	restart       chan struct{}
	restartReason atomic.Value
}

// New builds a device from opts. The configuration must already be loaded.
func New(opts Options) (*Device, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config manager required")
	}
	if opts.Reader == nil {
		return nil, errors.New("app: gpio reader required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LED == nil {
		opts.LED = gpio.NopLED{}
	}
	if opts.SignalLevel == nil {
		opts.SignalLevel = device.SignalLevel
	}
	if opts.FreeMemory == nil {
		opts.FreeMemory = device.FreeMemory
	}
	if opts.Watchdog == 0 {
		opts.Watchdog = DefaultWatchdog
	}
	start := opts.Now()
	if opts.Tracker == nil {
		opts.Tracker = status.NewTracker(start, status.Config{DeviceID: opts.DeviceID, Version: opts.Version})
	}

	d := &Device{
		cfg:         opts.Config,
		filter:      filter.New(opts.FilterSize),
		machine:     alarm.NewMachine(start),
		apiKeys:     auth.NewAPIKeyGuard(opts.Now),
		sessions:    auth.NewSessionGuard(opts.Config, opts.Now),
		webhook:     notify.NewWebhook(opts.NotifyTimeout),
		wled:        notify.NewWLED(opts.NotifyTimeout),
		reader:      opts.Reader,
		led:         opts.LED,
		tracker:     opts.Tracker,
		deviceID:    opts.DeviceID,
		start:       start,
		now:         opts.Now,
		network:     opts.Network,
		signalLevel: opts.SignalLevel,
		freeMemory:  opts.FreeMemory,
		requests:    make(chan request),
		stopped:     make(chan struct{}),
		watchdog:    opts.Watchdog,
		restart:     make(chan struct{}),
	}
	d.link = mqtt.NewLink(d, mqtt.NewTopics(opts.DeviceID), opts.Dialer, opts.Version)
	d.subscribe()
	if err := d.led.Set(false); err != nil {
		logger.Warnf("app: led: %v", err)
	}
	return d, nil
}

// Tracker returns the read-side status tracker.
func (d *Device) Tracker() *status.Tracker {
	return d.tracker
}

// Link returns the MQTT link. Loop goroutine only.
func (d *Device) Link() *mqtt.Link {
	return d.link
}

// RestartRequested is closed once a restart has been requested.
func (d *Device) RestartRequested() <-chan struct{} {
	return d.restart
}

// RestartReason returns why a restart was requested, or "".
func (d *Device) RestartReason() string {
	r, _ := d.restartReason.Load().(string)
	return r
}

// RequestRestart asks main to restart the process. Only the first reason
// is kept.
func (d *Device) RequestRestart(reason string) {
	d.restartOnce.Do(func() {
		d.restartReason.Store(reason)
		logger.Warnf("app: restart requested: %s", reason)
		close(d.restart)
	})
}

func (d *Device) setLED(on bool) {
	if on == d.ledOn && !d.ledFailed {
		return
	}
	if err := d.led.Set(on); err != nil {
		if !d.ledFailed {
			logger.Warnf("app: led: %v", err)
		}
		d.ledFailed = true
		return
	}
	d.ledFailed = false
	d.ledOn = on
}
