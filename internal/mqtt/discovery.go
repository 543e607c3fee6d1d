package mqtt

import (
	"encoding/json"
	"fmt"
)

// Manufacturer and Model appear in the discovery device block.
const (
	Manufacturer = "miswired"
	Model        = "Radar Motion Sensor"
)

// DeviceInfo groups every entity under one Home Assistant device.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// Discovery is a Home Assistant MQTT discovery descriptor.
type Discovery struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic,omitempty"`
	CommandTopic      string     `json:"command_topic,omitempty"`
	AvailabilityTopic string     `json:"availability_topic"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
	Unit              string     `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string     `json:"value_template,omitempty"`
	PayloadOn         string     `json:"payload_on,omitempty"`
	PayloadOff        string     `json:"payload_off,omitempty"`
	Min               int        `json:"min,omitempty"`
	Max               int        `json:"max,omitempty"`
	Step              int        `json:"step,omitempty"`
	Mode              string     `json:"mode,omitempty"`
	Retain            bool       `json:"retain,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// Announcement is one retained discovery message.
type Announcement struct {
	Topic   string
	Payload Discovery
}

type diagSensor struct {
	key         string
	name        string
	unit        string
	deviceClass string
	stateClass  string
}

var diagSensors = []diagSensor{
	{"rssi", "Signal Strength", "dBm", "signal_strength", "measurement"},
	{"uptime", "Uptime", "s", "duration", "total_increasing"},
	{"free_memory", "Free Memory", "B", "data_size", "measurement"},
	{"motion_events", "Motion Events", "", "", "total_increasing"},
	{"alarm_events", "Alarm Events", "", "", "total_increasing"},
}

// Announcements returns every discovery descriptor for the device.
// displayName is the user-facing device name; version may be empty.
func Announcements(t Topics, displayName, version string) []Announcement {
	dev := DeviceInfo{
		Identifiers:  []string{t.Device},
		Name:         displayName,
		Manufacturer: Manufacturer,
		Model:        Model,
		SWVersion:    version,
	}
	base := func(name, entity string) Discovery {
		return Discovery{
			Name:              name,
			UniqueID:          t.Device + "_" + entity,
			AvailabilityTopic: t.Availability,
			Device:            dev,
		}
	}

	var out []Announcement

	motion := base("Motion", EntityMotion)
	motion.StateTopic = t.State(KindBinarySensor, EntityMotion)
	motion.DeviceClass = "motion"
	motion.PayloadOn, motion.PayloadOff = PayloadOn, PayloadOff
	out = append(out, Announcement{t.Config(KindBinarySensor, EntityMotion), motion})

	alarm := base("Alarm", EntityAlarm)
	alarm.StateTopic = t.State(KindBinarySensor, EntityAlarm)
	alarm.DeviceClass = "occupancy"
	alarm.PayloadOn, alarm.PayloadOff = PayloadOn, PayloadOff
	out = append(out, Announcement{t.Config(KindBinarySensor, EntityAlarm), alarm})

	for _, c := range controls {
		n := base(c.name, string(c.key))
		n.StateTopic = t.ControlState(c.key)
		n.CommandTopic = t.Command(c.key)
		n.Min, n.Max, n.Step = c.min, c.max, 1
		n.Unit = c.unit
		n.Mode = "box"
		n.EntityCategory = "config"
		out = append(out, Announcement{t.Config(KindNumber, string(c.key)), n})
	}

	for _, s := range diagSensors {
		d := base(s.name, s.key)
		d.StateTopic = t.Diagnostics()
		d.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", s.key)
		d.Unit = s.unit
		d.DeviceClass = s.deviceClass
		d.StateClass = s.stateClass
		d.EntityCategory = "diagnostic"
		out = append(out, Announcement{t.Config(KindSensor, s.key), d})
	}
	return out
}

// Marshal encodes the descriptor.
func (a Announcement) Marshal() ([]byte, error) {
	b, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal discovery payload for %s: %w", a.Payload.UniqueID, err)
	}
	return b, nil
}
