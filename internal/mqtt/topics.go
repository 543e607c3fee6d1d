package mqtt

import "github.com/miswired/esp32-radar-sub000/internal/device"

// Entity kinds used in discovery topics.
const (
	KindBinarySensor = "binary_sensor"
	KindNumber       = "number"
	KindSensor       = "sensor"
)

// Entity keys.
const (
	EntityMotion      = "motion"
	EntityAlarm       = "alarm"
	EntityDiagnostics = "diagnostics"
)

// Topics is the per-device topic namespace. It depends only on the device
// id, never on the display name.
type Topics struct {
	Device       string // mw_motion_<id>
	Availability string
	HubStatus    string
}

// NewTopics builds the namespace for deviceID.
func NewTopics(deviceID string) Topics {
	dev := device.Segment(deviceID)
	return Topics{
		Device:       dev,
		Availability: Prefix + "/" + dev + "/availability",
		HubStatus:    Prefix + "/status",
	}
}

func (t Topics) base(kind, entity string) string {
	return Prefix + "/" + kind + "/" + t.Device + "/" + entity
}

// Config is the retained discovery topic for an entity.
func (t Topics) Config(kind, entity string) string {
	return t.base(kind, entity) + "/config"
}

// State is the state topic for an entity.
func (t Topics) State(kind, entity string) string {
	return t.base(kind, entity) + "/state"
}

// Command is the set topic for a numeric control.
func (t Topics) Command(c Control) string {
	return t.base(KindNumber, string(c)) + "/set"
}

// ControlState is the retained echo topic for a numeric control.
func (t Topics) ControlState(c Control) string {
	return t.State(KindNumber, string(c))
}

// Diagnostics is the shared diagnostics JSON topic.
func (t Topics) Diagnostics() string {
	return t.State(KindSensor, EntityDiagnostics)
}

// controlFor maps a command topic back to its control.
func (t Topics) controlFor(topic string) (Control, bool) {
	for _, c := range controls {
		if t.Command(c.key) == topic {
			return c.key, true
		}
	}
	return "", false
}
