package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provisioning holds factory values supplied at install time. They seed
// the record only when no valid persisted record exists.
type Provisioning struct {
	DeviceName string `yaml:"device_name"`

	WiFi struct {
		SSID     string `yaml:"ssid"`
		Password string `yaml:"password"`
	} `yaml:"wifi"`

	Alarm struct {
		TripDelay       int `yaml:"trip_delay"`
		ClearTimeout    int `yaml:"clear_timeout"`
		FilterThreshold int `yaml:"filter_threshold"`
	} `yaml:"alarm"`

	Notify struct {
		URL  string `yaml:"url"`
		GET  bool   `yaml:"get"`
		POST bool   `yaml:"post"`
	} `yaml:"notify"`

	WLED struct {
		URL     string `yaml:"url"`
		Payload string `yaml:"payload"`
	} `yaml:"wled"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		TLS      bool   `yaml:"tls"`
	} `yaml:"mqtt"`
}

// LoadProvisioning reads a YAML provisioning file.
func LoadProvisioning(path string) (*Provisioning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provisioning file: %w", err)
	}

	var p Provisioning
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning file: %w", err)
	}
	return &p, nil
}

// Patch converts the provisioning values into a patch. Zero values are
// treated as absent so compiled defaults survive.
func (p *Provisioning) Patch() Patch {
	var patch Patch
	if p == nil {
		return patch
	}
	optString := func(v string) *string {
		if v == "" {
			return nil
		}
		return String(v)
	}
	optInt := func(v int) *int {
		if v == 0 {
			return nil
		}
		return Int(v)
	}
	optBool := func(v bool) *bool {
		if !v {
			return nil
		}
		return Bool(v)
	}

	patch.DeviceName = optString(p.DeviceName)
	patch.WiFiSSID = optString(p.WiFi.SSID)
	patch.WiFiPassword = optString(p.WiFi.Password)
	patch.TripDelay = optInt(p.Alarm.TripDelay)
	patch.ClearTimeout = optInt(p.Alarm.ClearTimeout)
	patch.FilterThreshold = optInt(p.Alarm.FilterThreshold)
	patch.NotifyURL = optString(p.Notify.URL)
	patch.NotifyGET = optBool(p.Notify.GET)
	patch.NotifyPOST = optBool(p.Notify.POST)
	patch.WLEDURL = optString(p.WLED.URL)
	patch.WLEDPayload = optString(p.WLED.Payload)
	patch.MQTTEnabled = optBool(p.MQTT.Enabled)
	patch.MQTTHost = optString(p.MQTT.Host)
	patch.MQTTPort = optInt(p.MQTT.Port)
	patch.MQTTUser = optString(p.MQTT.User)
	patch.MQTTPassword = optString(p.MQTT.Password)
	patch.MQTTTLS = optBool(p.MQTT.TLS)
	return patch
}

// DefaultsFunc returns a defaults builder that overlays p on the compiled
// defaults. Out-of-range numbers keep the compiled value; anything a
// config patch would reject is returned as an error.
func (p *Provisioning) DefaultsFunc() (func() Config, error) {
	base, err := p.Patch().apply(Defaults())
	if err != nil {
		return nil, fmt.Errorf("invalid provisioning: %w", err)
	}
	return func() Config { return base }, nil
}
