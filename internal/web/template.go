package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Motion Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.alarm { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Motion Sensor <small>{{.Config.DeviceID}}</small></h1>

<h2>State</h2>
<table>
<tr><th>Alarm</th><td id="state" class="{{if .AlarmActive}}alarm{{else}}idle{{end}}">{{.Alarm.State}}</td></tr>
<tr><th>Motion</th><td>{{if .Filter.Stable}}yes{{else}}no{{end}} ({{.Filter.Percent}}%)</td></tr>
<tr><th>Motion events</th><td>{{.Alarm.Counts.MotionEvents}}</td></tr>
<tr><th>Alarm events</th><td>{{.Alarm.Counts.AlarmEvents}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTT.Connected}}connected{{else}}disconnected{{end}}">{{.MQTT.State}}</td></tr>
{{if .MQTT.Broker}}<tr><th>Broker</th><td>{{.MQTT.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
{{if .Config.Version}}<tr><th>Version</th><td>{{.Config.Version}}</td></tr>{{end}}
</table>

<p><a href="/status">status</a> · <a href="/diagnostics">diagnostics</a> · <a href="/logs">logs</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Uptime and AlarmActive are methods; the template needs fields.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		AlarmActive bool
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		AlarmActive: snap.AlarmActive(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		logger.Warnf("http: render index: %v", err)
	}
}
