package mqtt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/miswired/esp32-radar-sub000/internal/logger"
)

// Reconnect backoff bounds.
const (
	BaseReconnectDelay = 5 * time.Second
	MaxReconnectDelay  = 300 * time.Second
)

// DiagnosticsInterval is the periodic diagnostics cadence while connected.
const DiagnosticsInterval = 60 * time.Second

const inboxSize = 32

// LinkState is the broker link state.
type LinkState string

const (
	LinkDisabled     LinkState = "DISABLED"
	LinkDisconnected LinkState = "DISCONNECTED"
	LinkConnecting   LinkState = "CONNECTING"
	LinkConnected    LinkState = "CONNECTED"
)

// Backend is what the link needs from the rest of the device.
type Backend interface {
	// MQTTSettings returns the live broker configuration.
	MQTTSettings() Settings
	// SensorState returns the current state to publish.
	SensorState() State
	// ApplyControl validates and persists a remote control value and
	// returns the value now in force.
	ApplyControl(c Control, value int) (int, error)
}

// Status is a read-only summary of the link.
type Status struct {
	State              LinkState     `json:"state"`
	Broker             string        `json:"broker,omitempty"`
	ReconnectDelay     time.Duration `json:"-"`
	NextAttempt        time.Time     `json:"-"`
	DiscoveryPublished bool          `json:"discoveryPublished"`
	ConnectFailures    uint64        `json:"connectFailures"`
	Published          uint64        `json:"published"`
	PublishFailures    uint64        `json:"publishFailures"`
}

type lostEvent struct {
	gen int
	err error
}

type inbound struct {
	gen     int
	topic   string
	payload []byte
}

// Link is the MQTT client state machine. Every method is called from the
// control loop goroutine; paho callbacks only hand work to it through
// channels, which Tick drains.
type Link struct {
	backend Backend
	dial    Dialer
	topics  Topics
	version string

	state        LinkState
	conn         Conn
	connectTok   paho.Token
	connectStart time.Time
	gen          int
	key          string
	broker       string

	delay       time.Duration
	nextAttempt time.Time
	discovered  bool
	stalled     bool
	lastDiag    time.Time

	connectFailures uint64
	published       uint64
	publishFailures uint64

	lost  chan lostEvent
	inbox chan inbound
}

// NewLink creates a link in the DISABLED state. dial defaults to PahoDialer.
func NewLink(backend Backend, topics Topics, dial Dialer, version string) *Link {
	if dial == nil {
		dial = PahoDialer
	}
	return &Link{
		backend: backend,
		dial:    dial,
		topics:  topics,
		version: version,
		state:   LinkDisabled,
		delay:   BaseReconnectDelay,
		lost:    make(chan lostEvent, 4),
		inbox:   make(chan inbound, inboxSize),
	}
}

// Topics returns the namespace the link publishes under.
func (l *Link) Topics() Topics {
	return l.topics
}

// State returns the link state.
func (l *Link) State() LinkState {
	return l.state
}

// Connected reports whether the link is up.
func (l *Link) Connected() bool {
	return l.state == LinkConnected
}

// Status returns a summary of the link.
func (l *Link) Status() Status {
	return Status{
		State:              l.state,
		Broker:             l.broker,
		ReconnectDelay:     l.delay,
		NextAttempt:        l.nextAttempt,
		DiscoveryPublished: l.discovered,
		ConnectFailures:    l.connectFailures,
		Published:          l.published,
		PublishFailures:    l.publishFailures,
	}
}

// Tick advances the link. It never blocks on the network for longer than
// one publish timeout: a session that stops acknowledging is dropped and
// retried with backoff.
func (l *Link) Tick(now time.Time) {
	s := l.backend.MQTTSettings()
	if !s.Enabled || s.Host == "" {
		if l.state != LinkDisabled {
			logger.Infof("mqtt: disabled")
			l.teardown()
			l.state = LinkDisabled
		}
		return
	}

	key := s.brokerKey()
	switch {
	case l.state == LinkDisabled:
		logger.Infof("mqtt: enabled")
		l.reset(now)
	case key != l.key && l.state != LinkDisconnected:
		logger.Infof("mqtt: broker settings changed, reconnecting")
		l.teardown()
		l.reset(now)
	case key != l.key:
		l.reset(now)
	}
	l.key = key

	l.drainLost(now)
	l.dropStalled(now)

	switch l.state {
	case LinkDisconnected:
		if !now.Before(l.nextAttempt) {
			l.connect(now, s)
		}
	case LinkConnecting:
		l.pollConnect(now)
	case LinkConnected:
		l.drainInbox()
		if now.Sub(l.lastDiag) >= DiagnosticsInterval {
			l.PublishDiagnostics(now)
		}
	}
	l.dropStalled(now)
}

// Close publishes offline and disconnects. Used on shutdown.
func (l *Link) Close() {
	l.teardown()
	l.state = LinkDisabled
}

// PublishMotion publishes the filtered motion state.
func (l *Link) PublishMotion(on bool) {
	l.publish(l.topics.State(KindBinarySensor, EntityMotion), 0, false, onOff(on))
}

// PublishAlarm publishes the alarm state.
func (l *Link) PublishAlarm(on bool) {
	l.publish(l.topics.State(KindBinarySensor, EntityAlarm), 0, false, onOff(on))
}

// PublishControls echoes every control value, retained.
func (l *Link) PublishControls(st State) {
	for _, c := range controls {
		l.publishControl(c.key, st.control(c.key))
	}
}

// PublishDiagnostics publishes the diagnostics document.
func (l *Link) PublishDiagnostics(now time.Time) {
	if l.state != LinkConnected {
		return
	}
	l.lastDiag = now
	payload, err := FormatDiagnostics(l.backend.SensorState().Diagnostics)
	if err != nil {
		logger.Errorf("mqtt: format diagnostics: %v", err)
		return
	}
	l.publish(l.topics.Diagnostics(), 0, false, payload)
}

func (l *Link) reset(now time.Time) {
	l.state = LinkDisconnected
	l.delay = BaseReconnectDelay
	l.nextAttempt = now
}

func (l *Link) connect(now time.Time, s Settings) {
	l.gen++
	gen := l.gen
	opts := clientOptions(s, l.topics.Device, l.topics.Availability)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		select {
		case l.lost <- lostEvent{gen: gen, err: err}:
		default:
		}
	})

	l.broker = s.BrokerURL()
	logger.Infof("mqtt: connecting to %s", l.broker)
	l.conn = l.dial(opts)
	l.connectTok = l.conn.Connect()
	l.connectStart = now
	l.state = LinkConnecting
}

func (l *Link) pollConnect(now time.Time) {
	select {
	case <-l.connectTok.Done():
		if err := l.connectTok.Error(); err != nil {
			l.fail(now, err)
			return
		}
		l.onConnect(now)
	default:
		if now.Sub(l.connectStart) > connectTimeout+publishTimeout {
			l.fail(now, fmt.Errorf("connect timeout"))
		}
	}
}

// fail schedules the next attempt after the current delay, then doubles
// the delay up to MaxReconnectDelay.
func (l *Link) fail(now time.Time, err error) {
	l.connectFailures++
	if l.conn != nil {
		l.conn.Disconnect(0)
		l.conn = nil
	}
	l.connectTok = nil
	l.stalled = false
	l.state = LinkDisconnected
	l.nextAttempt = now.Add(l.delay)
	logger.Warnf("mqtt: connect to %s failed: %v (retry in %s)", l.broker, err, l.delay)
	l.delay *= 2
	if l.delay > MaxReconnectDelay {
		l.delay = MaxReconnectDelay
	}
}

// dropStalled ends a session that timed out an acknowledgement and
// schedules the next attempt through the usual backoff.
func (l *Link) dropStalled(now time.Time) {
	if !l.stalled || l.state != LinkConnected {
		l.stalled = false
		return
	}
	logger.Warnf("mqtt: %s stopped acknowledging, dropping session", l.broker)
	l.discovered = false
	l.fail(now, errors.New("acknowledgement timeout"))
}

func (l *Link) onConnect(now time.Time) {
	logger.Infof("mqtt: connected to %s", l.broker)
	l.state = LinkConnected
	l.connectTok = nil

	l.publish(l.topics.Availability, 1, true, []byte(PayloadOnline))

	gen := l.gen
	handler := func(_ paho.Client, m paho.Message) {
		select {
		case l.inbox <- inbound{gen: gen, topic: m.Topic(), payload: m.Payload()}:
		default:
			logger.Warnf("mqtt: inbox full, dropping message on %s", m.Topic())
		}
	}
	for _, c := range controls {
		l.subscribe(l.topics.Command(c.key), handler)
	}
	l.subscribe(l.topics.HubStatus, handler)

	l.announce()
	l.PublishDiagnostics(now)
	if !l.stalled {
		l.delay = BaseReconnectDelay
	}
}

// announce publishes discovery followed by current state.
func (l *Link) announce() {
	settings := l.backend.MQTTSettings()
	ok := true
	for _, a := range Announcements(l.topics, settings.DeviceName, l.version) {
		payload, err := a.Marshal()
		if err != nil {
			logger.Errorf("mqtt: %v", err)
			ok = false
			continue
		}
		if !l.publish(a.Topic, 1, true, payload) {
			ok = false
		}
	}
	l.discovered = ok

	st := l.backend.SensorState()
	l.PublishMotion(st.Motion)
	l.PublishAlarm(st.Alarm)
	l.PublishControls(st)
}

func (l *Link) drainLost(now time.Time) {
	for {
		select {
		case ev := <-l.lost:
			if ev.gen != l.gen || l.state != LinkConnected {
				continue
			}
			logger.Warnf("mqtt: connection lost: %v", ev.err)
			l.conn = nil
			l.discovered = false
			l.state = LinkDisconnected
			l.nextAttempt = now.Add(l.delay)
		default:
			return
		}
	}
}

func (l *Link) drainInbox() {
	for {
		select {
		case m := <-l.inbox:
			if m.gen != l.gen {
				continue
			}
			l.handle(m.topic, m.payload)
		default:
			return
		}
	}
}

func (l *Link) handle(topic string, payload []byte) {
	if topic == l.topics.HubStatus {
		if strings.TrimSpace(string(payload)) == PayloadOnline {
			logger.Infof("mqtt: hub online, republishing discovery")
			l.announce()
		}
		return
	}

	c, ok := l.topics.controlFor(topic)
	if !ok {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		logger.Warnf("mqtt: invalid value %q for %s", payload, c)
		l.publishControl(c, l.backend.SensorState().control(c))
		return
	}
	applied, err := l.backend.ApplyControl(c, v)
	if err != nil {
		logger.Errorf("mqtt: apply %s=%d: %v", c, v, err)
	} else if applied != v {
		logger.Warnf("mqtt: %s=%d out of range, keeping %d", c, v, applied)
	} else {
		logger.Infof("mqtt: %s set to %d", c, v)
	}
	l.publishControl(c, applied)
}

func (l *Link) publishControl(c Control, v int) {
	l.publish(l.topics.ControlState(c), 1, true, []byte(strconv.Itoa(v)))
}

func (l *Link) subscribe(topic string, h paho.MessageHandler) {
	if l.stalled || l.conn == nil {
		return
	}
	tok := l.conn.Subscribe(topic, 1, h)
	if !tok.WaitTimeout(publishTimeout) {
		l.stalled = true
		logger.Warnf("mqtt: subscribe %s: timeout", topic)
		return
	}
	if err := tok.Error(); err != nil {
		logger.Warnf("mqtt: subscribe %s: %v", topic, err)
	}
}

// publish sends payload if connected and reports success. Nothing is sent
// on a stalled session.
func (l *Link) publish(topic string, qos byte, retained bool, payload []byte) bool {
	if l.state != LinkConnected || l.conn == nil || l.stalled {
		return false
	}
	tok := l.conn.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		l.stalled = true
		l.publishFailures++
		logger.Warnf("mqtt: publish %s: timeout", topic)
		return false
	}
	if err := tok.Error(); err != nil {
		l.publishFailures++
		logger.Warnf("mqtt: publish %s: %v", topic, err)
		return false
	}
	l.published++
	return true
}

// teardown publishes offline and disconnects if a session is up.
func (l *Link) teardown() {
	if l.state == LinkConnected {
		l.publish(l.topics.Availability, 1, true, []byte(PayloadOffline))
	}
	if l.conn != nil {
		l.conn.Disconnect(250)
		l.conn = nil
	}
	l.gen++
	l.connectTok = nil
	l.discovered = false
	l.stalled = false
}
