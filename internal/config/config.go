// Package config owns the device's single persisted configuration record:
// its bounds, compiled defaults, binary layout and integrity checksum.
package config

import (
	"strconv"
	"strings"
)

// Numeric bounds. Values outside these ranges are never stored.
const (
	MinTripDelay       = 1
	MaxTripDelay       = 60
	MinClearTimeout    = 1
	MaxClearTimeout    = 300
	MinFilterThreshold = 10
	MaxFilterThreshold = 100
	MinMQTTPort        = 1
	MaxMQTTPort        = 65535
)

// String capacities in bytes.
const (
	CapWiFiSSID     = 32
	CapWiFiPassword = 64
	CapURL          = 128
	CapWLEDPayload  = 256
	CapMQTTHost     = 64
	CapMQTTUser     = 32
	CapMQTTPassword = 64
	CapDeviceName   = 32
	CapAPIKey       = 36
	CapPasswordHash = 60
)

// Compiled-in defaults.
const (
	DefaultTripDelay       = 3
	DefaultClearTimeout    = 10
	DefaultFilterThreshold = 50
	DefaultMQTTPort        = 1883
	DefaultDeviceName      = "Motion Sensor"
	DefaultWLEDPayload     = `{"on":true,"bri":255,"seg":[{"col":[[255,0,0]]}]}`
)

// Config is the persisted device configuration. Callers only ever see
// copies; the Manager owns the live record.
type Config struct {
	WiFiSSID     string
	WiFiPassword string

	TripDelay       int // seconds of sustained motion before an alarm
	ClearTimeout    int // seconds without motion before an alarm clears
	FilterThreshold int // percent of positive samples that counts as motion

	NotifyURL  string
	NotifyGET  bool
	NotifyPOST bool

	WLEDURL     string
	WLEDPayload string

	MQTTEnabled  bool
	MQTTHost     string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTTLS      bool
	DeviceName   string

	AuthEnabled bool
	APIKey      string

	// PasswordHash is empty until the session password has been set up.
	PasswordHash string
}

// Defaults returns the compiled-in configuration.
func Defaults() Config {
	return Config{
		TripDelay:       DefaultTripDelay,
		ClearTimeout:    DefaultClearTimeout,
		FilterThreshold: DefaultFilterThreshold,
		WLEDPayload:     DefaultWLEDPayload,
		MQTTPort:        DefaultMQTTPort,
		DeviceName:      DefaultDeviceName,
	}
}

// Timing returns the alarm timing parameters.
func (c Config) Timing() (tripDelay, clearTimeout int) {
	return c.TripDelay, c.ClearTimeout
}

// PasswordConfigured reports whether a session password has been set.
func (c Config) PasswordConfigured() bool {
	return c.PasswordHash != ""
}

// BrokerKey identifies the broker connection settings. Two configs with
// equal keys can share an MQTT session.
func (c Config) BrokerKey() string {
	return strings.Join([]string{
		c.MQTTHost,
		strconv.Itoa(c.MQTTPort),
		c.MQTTUser,
		c.MQTTPassword,
		strconv.FormatBool(c.MQTTTLS),
	}, "\x00")
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}
