package app

import (
	"context"
	"fmt"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/mqtt"
	"github.com/miswired/esp32-radar-sub000/internal/notify"
)

// The methods in this file are safe to call from any goroutine; each runs
// its body on the loop through Do.

// AuthStatus is the GET /auth/status body.
type AuthStatus struct {
	PasswordConfigured bool `json:"passwordConfigured"`
	Authenticated      bool `json:"authenticated"`
	APIKeyEnabled      bool `json:"apiKeyEnabled"`
}

// call runs fn on the loop and returns its error.
func (d *Device) call(ctx context.Context, fn func() error) error {
	var err error
	if derr := d.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// Authorize admits a privileged request when the session token is valid
// or the API key guard passes. The guard's denial is returned otherwise.
func (d *Device) Authorize(ctx context.Context, apiKey, sessionToken string) error {
	return d.call(ctx, func() error {
		if d.sessions.Validate(sessionToken) {
			return nil
		}
		cfg := d.cfg.Get()
		return d.apiKeys.Check(cfg.AuthEnabled, cfg.APIKey, apiKey)
	})
}

// Config returns a copy of the live configuration.
func (d *Device) Config(ctx context.Context) (config.Config, error) {
	var cfg config.Config
	err := d.call(ctx, func() error {
		cfg = d.cfg.Get()
		return nil
	})
	return cfg, err
}

// UpdateConfig applies a configuration patch. A WiFi credential change
// requests a restart.
func (d *Device) UpdateConfig(ctx context.Context, p config.Patch) (config.Result, error) {
	var res config.Result
	err := d.call(ctx, func() error {
		var err error
		res, err = d.applyPatch(p)
		return err
	})
	return res, err
}

func (d *Device) applyPatch(p config.Patch) (config.Result, error) {
	res, err := d.cfg.ApplyPatch(p)
	if err != nil {
		return res, err
	}
	if res.Changed {
		d.link.PublishControls(d.SensorState())
	}
	if res.RestartRequired {
		d.RequestRestart("wifi credentials changed")
	}
	return res, nil
}

// FactoryReset wipes the configuration, resets every subsystem and
// requests a restart.
func (d *Device) FactoryReset(ctx context.Context) error {
	return d.call(ctx, func() error {
		if err := d.cfg.FactoryReset(); err != nil {
			return err
		}
		now := d.now()
		d.machine.Reset(now)
		d.filter.Reset()
		d.apiKeys.Reset()
		d.sessions.Logout()
		d.RequestRestart("factory reset")
		return nil
	})
}

// TestNotification sends a synthetic event to the configured webhook.
func (d *Device) TestNotification(ctx context.Context) error {
	return d.call(ctx, func() error {
		target := d.webhookTarget()
		if !target.Enabled() {
			return notify.ErrNoTarget
		}
		return d.webhook.Send(ctx, target, d.testMessage())
	})
}

// TestWLED pushes the configured payload to the WLED controller.
func (d *Device) TestWLED(ctx context.Context) error {
	return d.call(ctx, func() error {
		cfg := d.cfg.Get()
		return d.wled.Trigger(ctx, cfg.WLEDURL, cfg.WLEDPayload)
	})
}

func (d *Device) testMessage() notify.Message {
	snap := d.machine.Snapshot()
	return notify.Message{
		Event:        notify.EventTest,
		State:        string(snap.State),
		MotionEvents: snap.Counts.MotionEvents,
		AlarmEvents:  snap.Counts.AlarmEvents,
		Timestamp:    d.now(),
	}
}

// AuthStatus reports the password and API key configuration and whether
// sessionToken is a valid session.
func (d *Device) AuthStatus(ctx context.Context, sessionToken string) (AuthStatus, error) {
	var st AuthStatus
	err := d.call(ctx, func() error {
		cfg := d.cfg.Get()
		st = AuthStatus{
			PasswordConfigured: d.sessions.IsConfigured(),
			Authenticated:      d.sessions.Validate(sessionToken),
			APIKeyEnabled:      cfg.AuthEnabled,
		}
		return nil
	})
	return st, err
}

// Setup sets the initial password and returns the new session.
func (d *Device) Setup(ctx context.Context, password, confirm string) (auth.Session, error) {
	var s auth.Session
	err := d.call(ctx, func() error {
		var err error
		s, err = d.sessions.Setup(password, confirm)
		return err
	})
	return s, err
}

// Login starts a new session, replacing any other.
func (d *Device) Login(ctx context.Context, password string) (auth.Session, error) {
	var s auth.Session
	err := d.call(ctx, func() error {
		var err error
		s, err = d.sessions.Login(password)
		return err
	})
	return s, err
}

// Logout ends the session.
func (d *Device) Logout(ctx context.Context) error {
	return d.call(ctx, func() error {
		d.sessions.Logout()
		return nil
	})
}

// ClearPassword is the recovery path for a lost password.
func (d *Device) ClearPassword(ctx context.Context) error {
	return d.call(ctx, d.sessions.ClearPassword)
}

// MQTTSettings implements mqtt.Backend.
func (d *Device) MQTTSettings() mqtt.Settings {
	return mqtt.SettingsFrom(d.cfg.Get())
}

// SensorState implements mqtt.Backend.
func (d *Device) SensorState() mqtt.State {
	cfg := d.cfg.Get()
	snap := d.machine.Snapshot()
	rssi, _ := d.signalLevel()
	return mqtt.State{
		Motion:          snap.Motion,
		Alarm:           snap.State == alarm.StateActive || snap.State == alarm.StateClearing,
		TripDelay:       cfg.TripDelay,
		ClearTimeout:    cfg.ClearTimeout,
		FilterThreshold: cfg.FilterThreshold,
		Diagnostics: mqtt.Diagnostics{
			RSSI:         rssi,
			Uptime:       int64(d.now().Sub(d.start).Seconds()),
			FreeMemory:   d.freeMemory(),
			MotionEvents: snap.Counts.MotionEvents,
			AlarmEvents:  snap.Counts.AlarmEvents,
		},
	}
}

// ApplyControl implements mqtt.Backend. Out-of-range values are ignored
// the same way as on the HTTP path; the value in force is returned.
func (d *Device) ApplyControl(c mqtt.Control, value int) (int, error) {
	var p config.Patch
	switch c {
	case mqtt.ControlTripDelay:
		p.TripDelay = config.Int(value)
	case mqtt.ControlClearTimeout:
		p.ClearTimeout = config.Int(value)
	case mqtt.ControlFilterThreshold:
		p.FilterThreshold = config.Int(value)
	default:
		return 0, fmt.Errorf("app: unknown control %q", c)
	}
	_, err := d.cfg.ApplyPatch(p)
	return controlValue(d.cfg.Get(), c), err
}

func controlValue(cfg config.Config, c mqtt.Control) int {
	switch c {
	case mqtt.ControlTripDelay:
		return cfg.TripDelay
	case mqtt.ControlClearTimeout:
		return cfg.ClearTimeout
	case mqtt.ControlFilterThreshold:
		return cfg.FilterThreshold
	}
	return 0
}
