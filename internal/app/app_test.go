package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/alarm"
	"github.com/miswired/esp32-radar-sub000/internal/auth"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/gpio"
	"github.com/miswired/esp32-radar-sub000/internal/mqtt"
	"github.com/miswired/esp32-radar-sub000/internal/store"
)

const poll = 100 * time.Millisecond

const testKey = "0b7e2c44-5f7a-4d1e-9c3b-2a1f0e9d8c7b"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t      *testing.T
	clock  *clock
	reader *gpio.FakeReader
	led    *gpio.FakeLED
	dialer *mqtt.FakeDialer
	store  *store.MemStore
	cfg    *config.Manager
	dev    *Device
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		reader: gpio.NewFakeReader(false),
		led:    &gpio.FakeLED{},
		dialer: &mqtt.FakeDialer{},
		store:  store.NewMemStore(),
	}
	h.cfg = config.NewManager(h.store, func() config.Config {
		c := config.Defaults()
		if mutate != nil {
			mutate(&c)
		}
		return c
	})
	if _, err := h.cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	dev, err := New(Options{
		Config:      h.cfg,
		Reader:      h.reader,
		LED:         h.led,
		DeviceID:    "a1b2c3",
		Dialer:      h.dialer.Dial,
		Watchdog:    -1,
		SignalLevel: func() (int, bool) { return -60, true },
		FreeMemory:  func() uint64 { return 4096 },
		Now:         h.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.dev = dev
	return h
}

// run steps the loop for d of simulated time.
func (h *harness) run(d time.Duration) {
	for i := 0; i < int(d/poll); i++ {
		h.clock.Advance(poll)
		h.dev.Step(h.clock.Now())
	}
}

// runUntil steps until the machine reaches want, failing after limit.
func (h *harness) runUntil(want alarm.State, limit time.Duration) time.Duration {
	h.t.Helper()
	var elapsed time.Duration
	for elapsed < limit {
		h.clock.Advance(poll)
		h.dev.Step(h.clock.Now())
		elapsed += poll
		if h.dev.machine.State() == want {
			return elapsed
		}
	}
	h.t.Fatalf("state %s not reached within %s (at %s)", want, limit, h.dev.machine.State())
	return 0
}

// serve runs the loop in the background until the test ends.
func (h *harness) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dev.Run(ctx, nil)
		close(done)
	}()
	h.t.Cleanup(func() {
		cancel()
		<-done
	})
}

type hookServer struct {
	mu     sync.Mutex
	events []map[string]any
	wled   []string
}

func (s *hookServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.URL.Path {
	case "/hook":
		var m map[string]any
		json.Unmarshal(body, &m)
		s.events = append(s.events, m)
	case "/json/state":
		s.wled = append(s.wled, string(body))
	}
}

func (s *hookServer) snapshot() ([]map[string]any, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.events...), append([]string(nil), s.wled...)
}

func TestNewRequiresConfigAndReader(t *testing.T) {
	if _, err := New(Options{Reader: gpio.NewFakeReader(false)}); err == nil {
		t.Error("expected error without config")
	}
	m := config.NewManager(store.NewMemStore(), nil)
	if _, err := New(Options{Config: m}); err == nil {
		t.Error("expected error without reader")
	}
}

func TestAlarmLifecycleDrivesOutputs(t *testing.T) {
	hooks := &hookServer{}
	srv := httptest.NewServer(hooks)
	defer srv.Close()

	h := newHarness(t, func(c *config.Config) {
		c.NotifyURL = srv.URL + "/hook"
		c.NotifyPOST = true
		c.WLEDURL = srv.URL
		c.DeviceName = "Hallway"
	})

	h.run(time.Second)
	if h.dev.machine.State() != alarm.StateIdle {
		t.Fatalf("state: %s", h.dev.machine.State())
	}

	h.reader.Hold(true)
	h.runUntil(alarm.StatePending, 2*time.Second)
	if h.led.On {
		t.Error("led must stay off while pending")
	}
	waited := h.runUntil(alarm.StateActive, 5*time.Second)
	if waited < 3*time.Second-poll {
		t.Errorf("triggered after %s, want about 3s", waited)
	}
	if !h.led.On {
		t.Error("led should be on while active")
	}

	h.reader.Hold(false)
	h.runUntil(alarm.StateClearing, 2*time.Second)
	if h.led.On {
		t.Error("led must be off while clearing")
	}
	h.runUntil(alarm.StateIdle, 11*time.Second)

	events, wled := hooks.snapshot()
	if len(events) != 2 {
		t.Fatalf("webhook events: got %d, want 2 (%v)", len(events), events)
	}
	if events[0]["event"] != "ALARM_TRIGGERED" || events[1]["event"] != "ALARM_CLEARED" {
		t.Errorf("events: %v", events)
	}
	if events[1]["device"] != "Hallway" {
		t.Errorf("device: %v", events[1]["device"])
	}
	if d, _ := events[1]["duration"].(float64); d < 3 || d > 4 {
		t.Errorf("cleared duration: got %v, want about 3", events[1]["duration"])
	}
	if len(wled) != 2 || wled[0] != config.DefaultWLEDPayload || wled[1] != `{"on":false}` {
		t.Errorf("wled: %v", wled)
	}

	snap := h.dev.Tracker().Snapshot()
	if snap.Alarm.Counts.AlarmEvents != 1 || snap.Alarm.Counts.MotionEvents != 1 {
		t.Errorf("counts: %+v", snap.Alarm.Counts)
	}
	if snap.Webhook.Sent != 2 || snap.WLED.Sent != 2 {
		t.Errorf("delivery stats: %+v %+v", snap.Webhook, snap.WLED)
	}
}

func TestLiveTimingChange(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.Hold(true)
	h.runUntil(alarm.StatePending, 2*time.Second)
	h.run(time.Second)

	// Shorten the trip delay below the elapsed time; next tick trips
	if _, err := h.dev.ApplyControl(mqtt.ControlTripDelay, 1); err != nil {
		t.Fatal(err)
	}
	h.run(poll)
	if h.dev.machine.State() != alarm.StateActive {
		t.Errorf("state: got %s, want ACTIVE", h.dev.machine.State())
	}
}

func TestApplyControl(t *testing.T) {
	h := newHarness(t, nil)

	got, err := h.dev.ApplyControl(mqtt.ControlClearTimeout, 42)
	if err != nil || got != 42 || h.cfg.Get().ClearTimeout != 42 {
		t.Errorf("apply: got %d, %v (stored %d)", got, err, h.cfg.Get().ClearTimeout)
	}
	stored, _ := config.ReadRecord(h.store)
	if stored.ClearTimeout != 42 {
		t.Error("control change not persisted")
	}

	got, err = h.dev.ApplyControl(mqtt.ControlFilterThreshold, 101)
	if err != nil || got != config.DefaultFilterThreshold {
		t.Errorf("out of range: got %d, %v", got, err)
	}

	h.store.FailPut = errors.New("flash worn out")
	got, err = h.dev.ApplyControl(mqtt.ControlTripDelay, 9)
	if err == nil || got != config.DefaultTripDelay {
		t.Errorf("store failure: got %d, %v", got, err)
	}

	if _, err := h.dev.ApplyControl("bogus", 1); err == nil {
		t.Error("unknown control should fail")
	}
}

func TestMQTTMirrorsState(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.MQTTEnabled = true
		c.MQTTHost = "broker.local"
	})
	h.run(2 * poll) // dial + connect
	conn := h.dialer.Last()
	if conn == nil || !h.dev.Link().Connected() {
		t.Fatal("link not connected")
	}
	topics := h.dev.Link().Topics()

	h.reader.Hold(true)
	h.runUntil(alarm.StateActive, 5*time.Second)
	if m, _ := conn.Last(topics.State(mqtt.KindBinarySensor, mqtt.EntityMotion)); string(m.Payload) != "ON" {
		t.Errorf("motion: %q", m.Payload)
	}
	if m, _ := conn.Last(topics.State(mqtt.KindBinarySensor, mqtt.EntityAlarm)); string(m.Payload) != "ON" {
		t.Errorf("alarm: %q", m.Payload)
	}

	// Remote control converges on the config manager
	conn.Deliver(topics.Command(mqtt.ControlTripDelay), "8")
	h.run(poll)
	if h.cfg.Get().TripDelay != 8 {
		t.Errorf("trip delay: got %d, want 8", h.cfg.Get().TripDelay)
	}
	if m, _ := conn.Last(topics.ControlState(mqtt.ControlTripDelay)); string(m.Payload) != "8" {
		t.Errorf("echo: %q", m.Payload)
	}

	snap := h.dev.Tracker().Snapshot()
	if !snap.MQTT.Connected || snap.MQTT.State != "CONNECTED" {
		t.Errorf("tracker mqtt: %+v", snap.MQTT)
	}

	diag, ok := conn.Last(topics.Diagnostics())
	if !ok {
		t.Fatal("no diagnostics")
	}
	var d mqtt.Diagnostics
	json.Unmarshal(diag.Payload, &d)
	if d.RSSI != -60 || d.FreeMemory != 4096 {
		t.Errorf("diagnostics: %+v", d)
	}
}

func TestHTTPConfigChangeEchoesControls(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.MQTTEnabled = true
		c.MQTTHost = "broker.local"
	})
	h.run(2 * poll)
	conn := h.dialer.Last()
	h.serve()

	if _, err := h.dev.UpdateConfig(context.Background(), config.Patch{FilterThreshold: config.Int(70)}); err != nil {
		t.Fatal(err)
	}
	m, _ := conn.Last(h.dev.Link().Topics().ControlState(mqtt.ControlFilterThreshold))
	if string(m.Payload) != "70" {
		t.Errorf("echo after http patch: %q", m.Payload)
	}
}

func TestDoAndStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dev.Run(ctx, nil)
		close(done)
	}()

	ran := false
	if err := h.dev.Do(context.Background(), func() { ran = true }); err != nil || !ran {
		t.Fatalf("Do: ran=%v err=%v", ran, err)
	}

	// A panicking request is contained
	if err := h.dev.Do(context.Background(), func() { panic("boom") }); err != nil {
		t.Errorf("panic request: %v", err)
	}

	cancel()
	<-done
	if err := h.dev.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("after stop: got %v, want ErrStopped", err)
	}
	if !h.led.Closed {
		t.Error("led not released on stop")
	}
}

func TestRunTicks(t *testing.T) {
	h := newHarness(t, nil)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dev.Run(ctx, tick)
		close(done)
	}()

	h.reader.Hold(true)
	for i := 0; i < 10; i++ {
		h.clock.Advance(poll)
		tick <- h.clock.Now()
	}
	var percent int
	h.dev.Do(context.Background(), func() { percent = h.dev.filter.Percent() })
	cancel()
	<-done
	if percent != 100 {
		t.Errorf("percent after 10 positive ticks: got %d, want 100", percent)
	}
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, nil)
	h.serve()
	ctx := context.Background()

	// Auth disabled admits everything
	if err := h.dev.Authorize(ctx, "", ""); err != nil {
		t.Errorf("disabled: %v", err)
	}

	if _, err := h.dev.UpdateConfig(ctx, config.Patch{AuthEnabled: config.Bool(true), APIKey: config.String(testKey)}); err != nil {
		t.Fatalf("enable auth: %v", err)
	}
	var aerr *auth.Error
	if err := h.dev.Authorize(ctx, "", ""); !errors.As(err, &aerr) || aerr.Code != http.StatusUnauthorized {
		t.Errorf("no credentials: %v", err)
	}
	if err := h.dev.Authorize(ctx, testKey, ""); err != nil {
		t.Errorf("correct key: %v", err)
	}

	// A valid session is enough on its own
	s, err := h.dev.Setup(ctx, "password1", "password1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := h.dev.Authorize(ctx, "", s.Token); err != nil {
		t.Errorf("session: %v", err)
	}
	st, _ := h.dev.AuthStatus(ctx, s.Token)
	if !st.PasswordConfigured || !st.Authenticated || !st.APIKeyEnabled {
		t.Errorf("auth status: %+v", st)
	}

	h.dev.Logout(ctx)
	if err := h.dev.Authorize(ctx, "", s.Token); err == nil {
		t.Error("logged-out session admitted")
	}

	if err := h.dev.ClearPassword(ctx); err != nil {
		t.Fatal(err)
	}
	if st, _ := h.dev.AuthStatus(ctx, ""); st.PasswordConfigured {
		t.Error("password still configured after clear")
	}
}

func TestUpdateConfigRequestsRestartForWiFi(t *testing.T) {
	h := newHarness(t, nil)
	h.serve()

	res, err := h.dev.UpdateConfig(context.Background(), config.Patch{TripDelay: config.Int(5)})
	if err != nil || !res.Changed || res.RestartRequired {
		t.Fatalf("timing patch: %+v %v", res, err)
	}
	select {
	case <-h.dev.RestartRequested():
		t.Fatal("timing change must not restart")
	default:
	}

	res, err = h.dev.UpdateConfig(context.Background(), config.Patch{WiFiSSID: config.String("attic")})
	if err != nil || !res.RestartRequired {
		t.Fatalf("wifi patch: %+v %v", res, err)
	}
	select {
	case <-h.dev.RestartRequested():
	default:
		t.Fatal("restart not requested")
	}
	if h.dev.RestartReason() != "wifi credentials changed" {
		t.Errorf("reason: %q", h.dev.RestartReason())
	}
}

func TestUpdateConfigValidationError(t *testing.T) {
	h := newHarness(t, nil)
	h.serve()
	_, err := h.dev.UpdateConfig(context.Background(), config.Patch{WLEDPayload: config.String("{not json")})
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestFactoryReset(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.Hold(true)
	h.runUntil(alarm.StateActive, 5*time.Second)
	h.serve()

	ctx := context.Background()
	h.dev.UpdateConfig(ctx, config.Patch{DeviceName: config.String("Garage")})
	if err := h.dev.FactoryReset(ctx); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}

	var snap alarm.Snapshot
	h.dev.Do(ctx, func() { snap = h.dev.machine.Snapshot() })
	if snap.State != alarm.StateIdle || snap.Counts.AlarmEvents != 0 {
		t.Errorf("machine after reset: %+v", snap)
	}
	cfg, _ := h.dev.Config(ctx)
	if cfg.DeviceName != config.DefaultDeviceName {
		t.Errorf("device name: %q", cfg.DeviceName)
	}
	if h.dev.RestartReason() != "factory reset" {
		t.Errorf("reason: %q", h.dev.RestartReason())
	}
}

func TestTestEndpoints(t *testing.T) {
	hooks := &hookServer{}
	srv := httptest.NewServer(hooks)
	defer srv.Close()

	h := newHarness(t, nil)
	h.serve()
	ctx := context.Background()

	if err := h.dev.TestNotification(ctx); err == nil {
		t.Error("expected error without webhook")
	}
	if err := h.dev.TestWLED(ctx); err == nil {
		t.Error("expected error without wled")
	}

	h.dev.UpdateConfig(ctx, config.Patch{
		NotifyURL:  config.String(srv.URL + "/hook"),
		NotifyPOST: config.Bool(true),
		WLEDURL:    config.String(srv.URL),
	})
	if err := h.dev.TestNotification(ctx); err != nil {
		t.Errorf("TestNotification: %v", err)
	}
	if err := h.dev.TestWLED(ctx); err != nil {
		t.Errorf("TestWLED: %v", err)
	}
	events, wled := hooks.snapshot()
	if len(events) != 1 || events[0]["event"] != "TEST" {
		t.Errorf("events: %v", events)
	}
	if len(wled) != 1 {
		t.Errorf("wled: %v", wled)
	}
}

func TestReadErrorHoldsState(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.ReadError = errors.New("line busy")
	h.run(time.Second)
	if h.dev.readErrors != 10 {
		t.Errorf("read errors: %d", h.dev.readErrors)
	}
	if h.dev.filter.Percent() != 0 || h.dev.machine.State() != alarm.StateIdle {
		t.Error("failed reads must not feed the filter")
	}
}

func TestLEDFailureRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.led.SetError = errors.New("busy")
	h.reader.Hold(true)
	h.runUntil(alarm.StateActive, 5*time.Second)
	if h.led.On {
		t.Fatal("led write should have failed")
	}
	h.led.SetError = nil
	h.run(poll)
	if !h.led.On {
		t.Error("led not retried after failure")
	}
}

func TestWatchdogRequestsRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.dev.watchdog = 50 * time.Millisecond

	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.dev.Run(ctx, tick)

	// Stall the loop well past the deadline
	go h.dev.Do(ctx, func() { time.Sleep(300 * time.Millisecond) })

	select {
	case <-h.dev.RestartRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	if h.dev.RestartReason() != "watchdog" {
		t.Errorf("reason: %q", h.dev.RestartReason())
	}
}

func TestShutdownPublishesOffline(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.MQTTEnabled = true
		c.MQTTHost = "broker.local"
	})
	h.run(2 * poll)
	conn := h.dialer.Last()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dev.Run(ctx, nil)
		close(done)
	}()
	cancel()
	<-done

	m, _ := conn.Last(h.dev.Link().Topics().Availability)
	if string(m.Payload) != "offline" || !m.Retained {
		t.Errorf("availability on shutdown: %+v", m)
	}
}
