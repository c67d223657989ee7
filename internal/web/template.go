package web

import (
	"html/template"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/sump-controller/internal/gpio"
	"github.com/sweeney/sump-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		now := time.Now()
		return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"water": gpio.WaterString,
	"stateClass": func(s string) string {
		switch s {
		case "pumping", "verified":
			return "on"
		case "idle", "ready":
			return "off"
		default:
			return "unknown"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Sump Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sump Controller</h1>

<h2>Pump</h2>
<table>
<tr><th>State</th><td id="pump-state" class="{{stateClass .Pump.State.String}}">{{.Pump.State}}</td></tr>
<tr><th>Previous</th><td>{{.Pump.Prev}}</td></tr>
<tr><th>Relay</th><td class="{{if .Pump.PumpRunning}}on{{else}}off{{end}}">{{if .Pump.PumpRunning}}running{{else}}off{{end}}</td></tr>
<tr><th>Bottom probe</th><td>{{water .Pump.Bottom}}</td></tr>
<tr><th>Top probe</th><td>{{water .Pump.Top}}</td></tr>
{{if .Pump.Started}}<tr><th>Started</th><td>{{ago .Pump.PumpStart}}</td></tr>{{end}}
{{if not .Pump.VerifyDeadline.IsZero}}<tr><th>Verify by</th><td>{{ago .Pump.VerifyDeadline}}</td></tr>{{end}}
{{if not .Pump.FinishDeadline.IsZero}}<tr><th>Finish by</th><td>{{ago .Pump.FinishDeadline}}</td></tr>{{end}}
<tr><th>Pump events</th><td>{{comma .Pump.PumpEventCount}}</td></tr>
<tr><th>Last run</th><td>{{.Pump.LastPumpElapsed}}</td></tr>
{{if .Pump.EventID}}<tr><th>Event</th><td>{{.Pump.EventID}}</td></tr>{{end}}
{{if .LastError}}<tr><th>Last error</th><td class="unknown">{{.LastError}}</td></tr>{{end}}
</table>

<h2>Remote</h2>
<table>
<tr><th>Server</th><td>{{.Config.RemoteURL}}</td></tr>
<tr><th>Summary</th><td id="display">{{.DisplayLine}}</td></tr>
<tr><th>Address</th><td>{{if .Transport.Address}}{{.Transport.Address}}{{else}}not connected{{end}}</td></tr>
{{if .Transport.LastError}}<tr><th>Last error</th><td class="unknown">{{.Transport.LastError}}</td></tr>{{end}}
{{if not .Transport.BreakerDeadline.IsZero}}<tr><th>Paused until</th><td>{{ago .Transport.BreakerDeadline}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if .Host}}<tr><th>Memory</th><td>{{printf "%.1f" .Host.MemPercent}}%</td></tr>
<tr><th>Load</th><td>{{printf "%.2f" .Host.Load1}}</td></tr>{{end}}
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render: %v", err)
	}
}
