package status

import (
	"encoding/json"
	"runtime"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/notify"
)

// StatusJSON is the GET /status body.
type StatusJSON struct {
	State         string `json:"state"`
	StateSince    string `json:"stateSince"`
	AlarmActive   bool   `json:"alarmActive"`
	Motion        bool   `json:"motion"`
	RawMotion     bool   `json:"rawMotion"`
	MotionPercent int    `json:"motionPercent"`
	MotionEvents  uint64 `json:"motionEvents"`
	AlarmEvents   uint64 `json:"alarmEvents"`
	UptimeSeconds int64  `json:"uptime"`
	MQTTConnected bool   `json:"mqttConnected"`
	DeviceID      string `json:"deviceId"`
	Timestamp     string `json:"timestamp"`
}

// DiagnosticsJSON is the GET /diagnostics body.
type DiagnosticsJSON struct {
	DeviceID      string       `json:"deviceId"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime"`
	StartTime     string       `json:"startTime"`
	LastTick      string       `json:"lastTick,omitempty"`
	PollMs        int64        `json:"pollMs"`
	Store         string       `json:"store"`
	Memory        MemoryJSON   `json:"memory"`
	Goroutines    int          `json:"goroutines"`
	Network       *NetworkJSON `json:"network,omitempty"`
	MQTT          MQTTJSON     `json:"mqtt"`
	Webhook       notify.Stats `json:"webhook"`
	WLED          notify.Stats `json:"wled"`
}

// MemoryJSON reports Go runtime memory.
type MemoryJSON struct {
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
	Sys       uint64 `json:"sys"`
	NumGC     uint32 `json:"numGC"`
}

// MQTTJSON reports the broker link.
type MQTTJSON struct {
	State              string `json:"state"`
	Connected          bool   `json:"connected"`
	Broker             string `json:"broker,omitempty"`
	ReconnectDelay     int64  `json:"reconnectDelay"`
	DiscoveryPublished bool   `json:"discoveryPublished"`
	Published          uint64 `json:"published"`
	PublishFailures    uint64 `json:"publishFailures"`
	ConnectFailures    uint64 `json:"connectFailures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
	RSSI       int    `json:"rssi,omitempty"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func uptimeSeconds(snap Snapshot) int64 {
	return int64(snap.Uptime().Truncate(time.Second).Seconds())
}

// BuildStatus renders the status document.
func BuildStatus(snap Snapshot) StatusJSON {
	return StatusJSON{
		State:         string(snap.Alarm.State),
		StateSince:    rfc3339(snap.Alarm.Since),
		AlarmActive:   snap.AlarmActive(),
		Motion:        snap.Filter.Stable,
		RawMotion:     snap.Filter.Raw,
		MotionPercent: snap.Filter.Percent,
		MotionEvents:  snap.Alarm.Counts.MotionEvents,
		AlarmEvents:   snap.Alarm.Counts.AlarmEvents,
		UptimeSeconds: uptimeSeconds(snap),
		MQTTConnected: snap.MQTT.Connected,
		DeviceID:      snap.Config.DeviceID,
		Timestamp:     rfc3339(snap.Now),
	}
}

// BuildDiagnostics renders the diagnostics document with current runtime
// memory figures.
func BuildDiagnostics(snap Snapshot) DiagnosticsJSON {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	d := DiagnosticsJSON{
		DeviceID:      snap.Config.DeviceID,
		Version:       snap.Config.Version,
		UptimeSeconds: uptimeSeconds(snap),
		StartTime:     rfc3339(snap.StartTime),
		LastTick:      rfc3339(snap.LastTick),
		PollMs:        snap.Config.PollMs,
		Store:         snap.Config.Store,
		Memory: MemoryJSON{
			HeapAlloc: ms.HeapAlloc,
			HeapSys:   ms.HeapSys,
			Sys:       ms.Sys,
			NumGC:     ms.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
		MQTT: MQTTJSON{
			State:              snap.MQTT.State,
			Connected:          snap.MQTT.Connected,
			Broker:             snap.MQTT.Broker,
			ReconnectDelay:     int64(snap.MQTT.ReconnectDelay / time.Second),
			DiscoveryPublished: snap.MQTT.DiscoveryPublished,
			Published:          snap.MQTT.Published,
			PublishFailures:    snap.MQTT.PublishFailures,
			ConnectFailures:    snap.MQTT.ConnectFailures,
		},
		Webhook: snap.Webhook,
		WLED:    snap.WLED,
	}
	if n := snap.Network; n != nil {
		d.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
			RSSI:       n.RSSI,
		}
	}
	return d
}

// FormatJSON returns the indented status document.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(BuildStatus(snap), "", "  ")
	return data
}
