package config

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// apiKeyPattern matches the 36-character UUID-shaped API key format.
var apiKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidationError rejects a whole patch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Patch is a partial configuration update. nil fields are left untouched.
//
// Numeric fields outside their bounds are dropped without error. Strings
// over capacity, an invalid WLED JSON payload, a malformed API key, or
// enabling API-key auth without a key reject the entire patch.
type Patch struct {
	WiFiSSID     *string `json:"wifiSsid,omitempty"`
	WiFiPassword *string `json:"wifiPassword,omitempty"`

	TripDelay       *int `json:"tripDelay,omitempty"`
	ClearTimeout    *int `json:"clearTimeout,omitempty"`
	FilterThreshold *int `json:"filterThreshold,omitempty"`

	NotifyURL  *string `json:"notifyUrl,omitempty"`
	NotifyGET  *bool   `json:"notifyGet,omitempty"`
	NotifyPOST *bool   `json:"notifyPost,omitempty"`

	WLEDURL     *string `json:"wledUrl,omitempty"`
	WLEDPayload *string `json:"wledPayload,omitempty"`

	MQTTEnabled  *bool   `json:"mqttEnabled,omitempty"`
	MQTTHost     *string `json:"mqttHost,omitempty"`
	MQTTPort     *int    `json:"mqttPort,omitempty"`
	MQTTUser     *string `json:"mqttUser,omitempty"`
	MQTTPassword *string `json:"mqttPassword,omitempty"`
	MQTTTLS      *bool   `json:"mqttTls,omitempty"`
	DeviceName   *string `json:"deviceName,omitempty"`

	AuthEnabled *bool   `json:"authEnabled,omitempty"`
	APIKey      *string `json:"apiKey,omitempty"`
}

// Result reports the effect of a patch.
type Result struct {
	Changed         bool
	RestartRequired bool
}

// Int returns a pointer to v, for building patches.
func Int(v int) *int { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }

func (p Patch) validate() error {
	strs := []struct {
		name string
		v    *string
	}{
		{"wifiSsid", p.WiFiSSID},
		{"wifiPassword", p.WiFiPassword},
		{"notifyUrl", p.NotifyURL},
		{"wledUrl", p.WLEDURL},
		{"wledPayload", p.WLEDPayload},
		{"mqttHost", p.MQTTHost},
		{"mqttUser", p.MQTTUser},
		{"mqttPassword", p.MQTTPassword},
		{"deviceName", p.DeviceName},
		{"apiKey", p.APIKey},
	}
	for _, s := range strs {
		if s.v == nil {
			continue
		}
		if limit := capacityOf(s.name); len(*s.v) > limit {
			return &ValidationError{Field: s.name, Message: fmt.Sprintf("must be at most %d characters", limit)}
		}
	}
	if p.WLEDPayload != nil && *p.WLEDPayload != "" && !json.Valid([]byte(*p.WLEDPayload)) {
		return &ValidationError{Field: "wledPayload", Message: "invalid JSON payload"}
	}
	if p.APIKey != nil && *p.APIKey != "" && !apiKeyPattern.MatchString(*p.APIKey) {
		return &ValidationError{Field: "apiKey", Message: "must be a 36-character key"}
	}
	return nil
}

// apply returns cur with the patch merged in, or a ValidationError.
func (p Patch) apply(cur Config) (Config, error) {
	if err := p.validate(); err != nil {
		return cur, err
	}
	next := cur

	setString(&next.WiFiSSID, p.WiFiSSID)
	setString(&next.WiFiPassword, p.WiFiPassword)
	setRange(&next.TripDelay, p.TripDelay, MinTripDelay, MaxTripDelay)
	setRange(&next.ClearTimeout, p.ClearTimeout, MinClearTimeout, MaxClearTimeout)
	setRange(&next.FilterThreshold, p.FilterThreshold, MinFilterThreshold, MaxFilterThreshold)
	setString(&next.NotifyURL, p.NotifyURL)
	setBool(&next.NotifyGET, p.NotifyGET)
	setBool(&next.NotifyPOST, p.NotifyPOST)
	setString(&next.WLEDURL, p.WLEDURL)
	setString(&next.WLEDPayload, p.WLEDPayload)
	setBool(&next.MQTTEnabled, p.MQTTEnabled)
	setString(&next.MQTTHost, p.MQTTHost)
	setRange(&next.MQTTPort, p.MQTTPort, MinMQTTPort, MaxMQTTPort)
	setString(&next.MQTTUser, p.MQTTUser)
	setString(&next.MQTTPassword, p.MQTTPassword)
	setBool(&next.MQTTTLS, p.MQTTTLS)
	setString(&next.DeviceName, p.DeviceName)
	setBool(&next.AuthEnabled, p.AuthEnabled)
	setString(&next.APIKey, p.APIKey)

	if next.AuthEnabled && next.APIKey == "" {
		return cur, &ValidationError{Field: "apiKey", Message: "required when authEnabled is set"}
	}
	return next, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// setRange assigns v only when it lies within [lo, hi].
func setRange(dst *int, v *int, lo, hi int) {
	if v != nil && inRange(*v, lo, hi) {
		*dst = *v
	}
}
