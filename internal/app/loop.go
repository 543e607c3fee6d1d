package app

import (
	"context"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/status"
)

type request struct {
	fn   func()
	done chan struct{}
}

// Run is the control loop. It samples the sensor on every tick and runs
// funnelled requests between ticks, so the two never interleave. Run
// returns when ctx is done, after publishing offline and releasing the LED.
func (d *Device) Run(ctx context.Context, tick <-chan time.Time) error {
	defer close(d.stopped)
	defer d.shutdown()

	d.beat.Store(time.Now().UnixNano())
	if tick != nil && d.watchdog > 0 {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go d.watch(wctx)
	}

	logger.Infof("app: control loop started (device %s)", d.deviceID)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("app: control loop stopping")
			return nil
		case <-tick:
			d.Step(d.now())
			d.beat.Store(time.Now().UnixNano())
		case req := <-d.requests:
			d.serve(req)
			d.beat.Store(time.Now().UnixNano())
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (d *Device) Do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case d.requests <- req:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) serve(req request) {
	defer close(req.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("app: request panic: %v", r)
		}
	}()
	req.fn()
}

// Step runs one loop iteration at now: sensor, filter, state machine,
// event dispatch, LED, MQTT, then the status tracker.
func (d *Device) Step(now time.Time) {
	cfg := d.cfg.Get()

	raw, err := d.reader.Read()
	if err != nil {
		d.readErrors++
		if d.readErrors == 1 || d.readErrors%1000 == 0 {
			logger.Errorf("app: gpio read error (%d): %v", d.readErrors, err)
		}
	} else {
		d.lastRaw = raw
		_, stable := d.filter.Sample(raw, cfg.FilterThreshold)
		events := d.machine.Tick(
			alarm.Input{Motion: stable, Time: now},
			alarm.TimingSeconds(cfg.TripDelay, cfg.ClearTimeout),
		)
		d.dispatch.Publish(events)
	}
	d.setLED(d.machine.State() == alarm.StateActive)

	d.link.Tick(now)
	d.updateTracker(now)
}

func (d *Device) updateTracker(now time.Time) {
	d.tracker.Update(d.machine.Snapshot(), status.Filter{
		Raw:     d.lastRaw,
		Percent: d.filter.Percent(),
		Stable:  d.filter.Stable(),
	}, now)

	ls := d.link.Status()
	d.tracker.SetMQTT(status.MQTTInfo{
		State:              string(ls.State),
		Connected:          d.link.Connected(),
		Broker:             ls.Broker,
		ReconnectDelay:     ls.ReconnectDelay,
		DiscoveryPublished: ls.DiscoveryPublished,
		Published:          ls.Published,
		PublishFailures:    ls.PublishFailures,
		ConnectFailures:    ls.ConnectFailures,
	})
	d.tracker.SetDelivery(d.webhook.Stats(), d.wled.Stats())

	if d.network != nil && (d.lastNetwork.IsZero() || now.Sub(d.lastNetwork) >= networkRefresh) {
		d.lastNetwork = now
		if info := d.network(); info != nil {
			if level, ok := d.signalLevel(); ok {
				info.RSSI = level
			}
			d.tracker.SetNetwork(info)
		}
	}
}

// watch requests a restart when the loop stops beating for longer than the
// watchdog deadline.
func (d *Device) watch(ctx context.Context) {
	interval := d.watchdog / 4
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-t.C:
			last := time.Unix(0, d.beat.Load())
			if stalled := n.Sub(last); stalled > d.watchdog {
				logger.Errorf("app: watchdog: loop stalled for %s", stalled.Truncate(time.Millisecond))
				d.RequestRestart("watchdog")
				return
			}
		}
	}
}

func (d *Device) shutdown() {
	d.link.Close()
	if err := d.led.Close(); err != nil {
		logger.Warnf("app: close led: %v", err)
	}
}
