package config

// Public is the JSON view of the configuration served to unauthenticated
// readers. Secrets are reported only as presence flags.
type Public struct {
	WiFiSSID        string `json:"wifiSsid"`
	HasWiFiPassword bool   `json:"hasWifiPassword"`

	TripDelay       int `json:"tripDelay"`
	ClearTimeout    int `json:"clearTimeout"`
	FilterThreshold int `json:"filterThreshold"`

	NotifyURL  string `json:"notifyUrl"`
	NotifyGET  bool   `json:"notifyGet"`
	NotifyPOST bool   `json:"notifyPost"`

	WLEDURL     string `json:"wledUrl"`
	WLEDPayload string `json:"wledPayload"`

	MQTTEnabled     bool   `json:"mqttEnabled"`
	MQTTHost        string `json:"mqttHost"`
	MQTTPort        int    `json:"mqttPort"`
	MQTTUser        string `json:"mqttUser"`
	HasMQTTPassword bool   `json:"hasMqttPassword"`
	MQTTTLS         bool   `json:"mqttTls"`
	DeviceName      string `json:"deviceName"`

	AuthEnabled bool `json:"authEnabled"`
	HasAPIKey   bool `json:"hasApiKey"`
	PasswordSet bool `json:"passwordSet"`
}

// Public returns the redacted view of c.
func (c Config) Public() Public {
	return Public{
		WiFiSSID:        c.WiFiSSID,
		HasWiFiPassword: c.WiFiPassword != "",
		TripDelay:       c.TripDelay,
		ClearTimeout:    c.ClearTimeout,
		FilterThreshold: c.FilterThreshold,
		NotifyURL:       c.NotifyURL,
		NotifyGET:       c.NotifyGET,
		NotifyPOST:      c.NotifyPOST,
		WLEDURL:         c.WLEDURL,
		WLEDPayload:     c.WLEDPayload,
		MQTTEnabled:     c.MQTTEnabled,
		MQTTHost:        c.MQTTHost,
		MQTTPort:        c.MQTTPort,
		MQTTUser:        c.MQTTUser,
		HasMQTTPassword: c.MQTTPassword != "",
		MQTTTLS:         c.MQTTTLS,
		DeviceName:      c.DeviceName,
		AuthEnabled:     c.AuthEnabled,
		HasAPIKey:       c.APIKey != "",
		PasswordSet:     c.PasswordHash != "",
	}
}
