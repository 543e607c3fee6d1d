package config

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// recordVersion is the first byte of every encoded record.
const recordVersion byte = 1

// checksumMask is XORed into the additive checksum. The checksum only
// detects accidental corruption; it is not a tamper check.
const checksumMask uint32 = 0x5A5A5A5A

// ErrCorrupt is returned when a stored record fails length, version,
// checksum or bounds validation.
var ErrCorrupt = errors.New("config: record corrupt")

type fieldKind int

const (
	kindString fieldKind = iota
	kindUint16
	kindBool
)

// field describes one entry of the fixed record layout. Exactly one of the
// accessors is set, matching kind.
type field struct {
	name     string
	kind     fieldKind
	capacity int // strings only
	min, max int // uint16 only
	str      func(*Config) *string
	num      func(*Config) *int
	flag     func(*Config) *bool
}

func (f field) size() int {
	switch f.kind {
	case kindString:
		return 2 + f.capacity
	case kindUint16:
		return 2
	default:
		return 1
	}
}

// layout is the on-store field order. Appending or reordering fields
// requires bumping recordVersion.
var layout = []field{
	{name: "wifiSsid", kind: kindString, capacity: CapWiFiSSID, str: func(c *Config) *string { return &c.WiFiSSID }},
	{name: "wifiPassword", kind: kindString, capacity: CapWiFiPassword, str: func(c *Config) *string { return &c.WiFiPassword }},
	{name: "tripDelay", kind: kindUint16, min: MinTripDelay, max: MaxTripDelay, num: func(c *Config) *int { return &c.TripDelay }},
	{name: "clearTimeout", kind: kindUint16, min: MinClearTimeout, max: MaxClearTimeout, num: func(c *Config) *int { return &c.ClearTimeout }},
	{name: "filterThreshold", kind: kindUint16, min: MinFilterThreshold, max: MaxFilterThreshold, num: func(c *Config) *int { return &c.FilterThreshold }},
	{name: "notifyUrl", kind: kindString, capacity: CapURL, str: func(c *Config) *string { return &c.NotifyURL }},
	{name: "notifyGet", kind: kindBool, flag: func(c *Config) *bool { return &c.NotifyGET }},
	{name: "notifyPost", kind: kindBool, flag: func(c *Config) *bool { return &c.NotifyPOST }},
	{name: "wledUrl", kind: kindString, capacity: CapURL, str: func(c *Config) *string { return &c.WLEDURL }},
	{name: "wledPayload", kind: kindString, capacity: CapWLEDPayload, str: func(c *Config) *string { return &c.WLEDPayload }},
	{name: "mqttEnabled", kind: kindBool, flag: func(c *Config) *bool { return &c.MQTTEnabled }},
	{name: "mqttHost", kind: kindString, capacity: CapMQTTHost, str: func(c *Config) *string { return &c.MQTTHost }},
	{name: "mqttPort", kind: kindUint16, min: MinMQTTPort, max: MaxMQTTPort, num: func(c *Config) *int { return &c.MQTTPort }},
	{name: "mqttUser", kind: kindString, capacity: CapMQTTUser, str: func(c *Config) *string { return &c.MQTTUser }},
	{name: "mqttPassword", kind: kindString, capacity: CapMQTTPassword, str: func(c *Config) *string { return &c.MQTTPassword }},
	{name: "mqttTls", kind: kindBool, flag: func(c *Config) *bool { return &c.MQTTTLS }},
	{name: "deviceName", kind: kindString, capacity: CapDeviceName, str: func(c *Config) *string { return &c.DeviceName }},
	{name: "authEnabled", kind: kindBool, flag: func(c *Config) *bool { return &c.AuthEnabled }},
	{name: "apiKey", kind: kindString, capacity: CapAPIKey, str: func(c *Config) *string { return &c.APIKey }},
	{name: "passwordHash", kind: kindString, capacity: CapPasswordHash, str: func(c *Config) *string { return &c.PasswordHash }},
}

// RecordSize is the exact length of an encoded record including the
// version byte and trailing checksum.
var RecordSize = func() int {
	n := 1
	for _, f := range layout {
		n += f.size()
	}
	return n + 4
}()

// capacityOf returns the byte capacity of the named string field.
func capacityOf(name string) int {
	for _, f := range layout {
		if f.name == name {
			return f.capacity
		}
	}
	return 0
}

// Checksum returns the integrity value over data: the sum of all bytes
// XORed with checksumMask.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum ^ checksumMask
}

// Encode serializes c into the fixed layout with a trailing checksum.
// Strings longer than their capacity and numbers outside uint16 are errors.
func Encode(c Config) ([]byte, error) {
	buf := make([]byte, RecordSize)
	buf[0] = recordVersion
	off := 1
	for _, f := range layout {
		switch f.kind {
		case kindString:
			s := *f.str(&c)
			if len(s) > f.capacity {
				return nil, fmt.Errorf("encode %s: %d bytes exceeds capacity %d", f.name, len(s), f.capacity)
			}
			binary.BigEndian.PutUint16(buf[off:], uint16(len(s)))
			copy(buf[off+2:off+2+f.capacity], s)
		case kindUint16:
			v := *f.num(&c)
			if v < 0 || v > 0xFFFF {
				return nil, fmt.Errorf("encode %s: %d out of range", f.name, v)
			}
			binary.BigEndian.PutUint16(buf[off:], uint16(v))
		case kindBool:
			if *f.flag(&c) {
				buf[off] = 1
			}
		}
		off += f.size()
	}
	binary.BigEndian.PutUint32(buf[off:], Checksum(buf[:off]))
	return buf, nil
}

// Decode parses a record produced by Encode. Any length, version,
// checksum or bounds violation yields ErrCorrupt; a partially valid
// record is never returned.
func Decode(data []byte) (Config, error) {
	if len(data) != RecordSize {
		return Config{}, fmt.Errorf("%w: length %d, want %d", ErrCorrupt, len(data), RecordSize)
	}
	body := data[:RecordSize-4]
	stored := binary.BigEndian.Uint32(data[RecordSize-4:])
	if sum := Checksum(body); sum != stored {
		return Config{}, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, stored, sum)
	}
	if body[0] != recordVersion {
		return Config{}, fmt.Errorf("%w: version %d", ErrCorrupt, body[0])
	}

	var c Config
	off := 1
	for _, f := range layout {
		switch f.kind {
		case kindString:
			n := int(binary.BigEndian.Uint16(body[off:]))
			if n > f.capacity {
				return Config{}, fmt.Errorf("%w: %s length %d", ErrCorrupt, f.name, n)
			}
			*f.str(&c) = string(body[off+2 : off+2+n])
		case kindUint16:
			v := int(binary.BigEndian.Uint16(body[off:]))
			if !inRange(v, f.min, f.max) {
				return Config{}, fmt.Errorf("%w: %s=%d", ErrCorrupt, f.name, v)
			}
			*f.num(&c) = v
		case kindBool:
			switch body[off] {
			case 0:
			case 1:
				*f.flag(&c) = true
			default:
				return Config{}, fmt.Errorf("%w: %s=%d", ErrCorrupt, f.name, body[off])
			}
		}
		off += f.size()
	}
	return c, nil
}
