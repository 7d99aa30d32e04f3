package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pulse-gen/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
	"limit": func(n int) string {
		if n == 0 {
			return "unbounded"
		}
		return fmt.Sprintf("%d", n)
	},
	"pin": func(n int) string {
		if n < 0 {
			return "unwired"
		}
		return fmt.Sprintf("GPIO%d", n)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Pulse Generator</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.RUNNING { color: green; font-weight: bold; }
.PAUSED { color: orange; font-weight: bold; }
.STOPPED { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pulse Generator</h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td class="{{.State}}">{{.State}}</td></tr>
<tr><th>Session</th><td>{{if .SessionID}}{{.SessionID}}{{else}}none{{end}}</td></tr>
<tr><th>Completed</th><td>{{.Completed}}</td></tr>
</table>

<h2>Channels</h2>
{{if .Channels}}<table>
<tr><th>Output</th><th>Mode</th><th>Interval</th><th>Pulse</th><th>Limit</th><th>Phase</th><th>Pulses</th></tr>
{{range .Channels}}<tr><td>{{.Label}}</td><td>{{.Mode}}</td><td>{{.IntervalMs}}ms</td><td>{{.PulseMs}}ms</td><td>{{limit .MaxPulses}}</td><td class="{{.Phase}}">{{.Phase}}</td><td>{{.Pulses}}</td></tr>
{{end}}</table>{{else}}<p>No active channels.</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Serial</th><td>{{.Config.Serial}} @ {{.Config.Baud}}</td></tr>
<tr><th>Output 1</th><td>{{.Config.Chip}} {{pin .Config.Pin1}}</td></tr>
<tr><th>Output 2</th><td>{{.Config.Chip}} {{pin .Config.Pin2}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
