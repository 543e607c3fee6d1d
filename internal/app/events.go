package app

import (
	"context"
	"errors"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/notify"
)

// subscribe registers the event consumers in delivery order.
func (d *Device) subscribe() {
	d.dispatch.Subscribe(alarm.SubscriberFunc(logEvent))
	d.dispatch.Subscribe(alarm.SubscriberFunc(d.mirrorToMQTT))
	d.dispatch.Subscribe(alarm.SubscriberFunc(d.forwardWebhook))
	d.dispatch.Subscribe(alarm.SubscriberFunc(d.forwardWLED))
}

func logEvent(e alarm.Event) {
	switch e.Type {
	case alarm.EventAlarmTriggered:
		logger.Noticef("alarm: triggered (alarm #%d)", e.Counts.AlarmEvents)
	case alarm.EventAlarmCleared:
		logger.Noticef("alarm: cleared after %s", e.Duration)
	default:
		logger.Debugf("alarm: %s (state=%s)", e.Type, e.State)
	}
}

func (d *Device) mirrorToMQTT(e alarm.Event) {
	switch e.Type {
	case alarm.EventMotionDetected:
		d.link.PublishMotion(true)
	case alarm.EventMotionCleared:
		d.link.PublishMotion(false)
	case alarm.EventAlarmTriggered:
		d.link.PublishAlarm(true)
	case alarm.EventAlarmCleared:
		d.link.PublishAlarm(false)
	}
}

func (d *Device) forwardWebhook(e alarm.Event) {
	if e.Type != alarm.EventAlarmTriggered && e.Type != alarm.EventAlarmCleared {
		return
	}
	target := d.webhookTarget()
	if !target.Enabled() {
		return
	}
	if err := d.webhook.Send(context.Background(), target, message(e)); err != nil {
		logger.Warnf("notify: %v", err)
	}
}

func (d *Device) forwardWLED(e alarm.Event) {
	cfg := d.cfg.Get()
	if cfg.WLEDURL == "" {
		return
	}
	var err error
	switch e.Type {
	case alarm.EventAlarmTriggered:
		err = d.wled.Trigger(context.Background(), cfg.WLEDURL, cfg.WLEDPayload)
	case alarm.EventAlarmCleared:
		err = d.wled.Clear(context.Background(), cfg.WLEDURL)
	default:
		return
	}
	if err != nil && !errors.Is(err, notify.ErrNoWLED) {
		logger.Warnf("notify: %v", err)
	}
}

func (d *Device) webhookTarget() notify.Target {
	cfg := d.cfg.Get()
	return notify.Target{
		URL:    cfg.NotifyURL,
		GET:    cfg.NotifyGET,
		POST:   cfg.NotifyPOST,
		Device: cfg.DeviceName,
	}
}

func message(e alarm.Event) notify.Message {
	return notify.Message{
		Event:        string(e.Type),
		State:        string(e.State),
		Duration:     e.Duration,
		MotionEvents: e.Counts.MotionEvents,
		AlarmEvents:  e.Counts.AlarmEvents,
		Timestamp:    e.Timestamp,
	}
}
