// Package mqtt mirrors the sensor into Home Assistant over MQTT: topic
// namespace, discovery descriptors, state and diagnostics payloads, remote
// control of the timing settings, and a reconnecting broker link.
package mqtt

import (
	"encoding/json"
	"strconv"

	"github.com/miswired/esp32-radar-sub000/internal/config"
)

// Prefix is the Home Assistant discovery prefix.
const Prefix = "homeassistant"

// Payloads for binary sensors and availability.
const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Control is a remotely settable numeric setting.
type Control string

const (
	ControlTripDelay       Control = "trip_delay"
	ControlClearTimeout    Control = "clear_timeout"
	ControlFilterThreshold Control = "filter_threshold"
)

type controlSpec struct {
	key  Control
	name string
	min  int
	max  int
	unit string
}

var controls = []controlSpec{
	{ControlTripDelay, "Trip Delay", config.MinTripDelay, config.MaxTripDelay, "s"},
	{ControlClearTimeout, "Clear Timeout", config.MinClearTimeout, config.MaxClearTimeout, "s"},
	{ControlFilterThreshold, "Filter Threshold", config.MinFilterThreshold, config.MaxFilterThreshold, "%"},
}

// Controls lists every remote control in publish order.
func Controls() []Control {
	out := make([]Control, len(controls))
	for i, c := range controls {
		out[i] = c.key
	}
	return out
}

// Settings is the broker configuration the link follows.
type Settings struct {
	Enabled    bool
	Host       string
	Port       int
	User       string
	Password   string
	TLS        bool
	DeviceName string
}

// SettingsFrom extracts link settings from a configuration record.
func SettingsFrom(c config.Config) Settings {
	return Settings{
		Enabled:    c.MQTTEnabled,
		Host:       c.MQTTHost,
		Port:       c.MQTTPort,
		User:       c.MQTTUser,
		Password:   c.MQTTPassword,
		TLS:        c.MQTTTLS,
		DeviceName: c.DeviceName,
	}
}

// BrokerURL returns tcp://host:port or ssl://host:port.
func (s Settings) BrokerURL() string {
	scheme := "tcp"
	if s.TLS {
		scheme = "ssl"
	}
	port := s.Port
	if port == 0 {
		port = config.DefaultMQTTPort
	}
	return scheme + "://" + s.Host + ":" + strconv.Itoa(port)
}

// brokerKey changes whenever a reconnect is required.
func (s Settings) brokerKey() string {
	c := config.Config{
		MQTTHost:     s.Host,
		MQTTPort:     s.Port,
		MQTTUser:     s.User,
		MQTTPassword: s.Password,
		MQTTTLS:      s.TLS,
	}
	return c.BrokerKey()
}

// State is what the link publishes about the sensor.
type State struct {
	Motion bool
	Alarm  bool

	TripDelay       int
	ClearTimeout    int
	FilterThreshold int

	Diagnostics Diagnostics
}

func (s State) control(c Control) int {
	switch c {
	case ControlTripDelay:
		return s.TripDelay
	case ControlClearTimeout:
		return s.ClearTimeout
	case ControlFilterThreshold:
		return s.FilterThreshold
	}
	return 0
}

// Diagnostics is the periodic health payload. All diagnostic sensors read
// their value from this one JSON document.
type Diagnostics struct {
	RSSI         int    `json:"rssi"`
	Uptime       int64  `json:"uptime"`
	FreeMemory   uint64 `json:"free_memory"`
	MotionEvents uint64 `json:"motion_events"`
	AlarmEvents  uint64 `json:"alarm_events"`
}

// FormatDiagnostics creates the JSON payload for the diagnostics topic.
func FormatDiagnostics(d Diagnostics) ([]byte, error) {
	return json.Marshal(d)
}

func onOff(v bool) []byte {
	if v {
		return []byte(PayloadOn)
	}
	return []byte(PayloadOff)
}
