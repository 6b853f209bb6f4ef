package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/smart-house/internal/house"
	"github.com/sweeney/smart-house/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"stateClass": func(s string) string {
		switch s {
		case house.StateOn, house.StateAutoOn:
			return "on"
		case house.StateOff, house.StateAutoOff:
			return "off"
		}
		return "other"
	},
	"ago": func(t, now time.Time) string {
		return humanize.RelTime(t, now, "ago", "from now")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Smart House</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; margin: 1.4em 0 0.2em; color: #555; text-transform: uppercase; letter-spacing: 0.05em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 5px 8px; border-bottom: 1px solid #e4e4e4; }
th { width: 45%; font-weight: normal; color: #444; }
.on { color: #1a7f37; font-weight: bold; }
.off { color: #999; }
.other { color: #0b5cad; }
.connected { color: #1a7f37; }
.disconnected { color: #c62828; }
.live-dot { display: inline-block; width: 9px; height: 9px; border-radius: 50%; margin-left: 8px; }
.live-dot.ok { background: #1a7f37; }
.live-dot.err { background: #c62828; }
.live-dot.pending { background: #f0a000; }
</style>
</head>
<body>
<h1>Smart House<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Sala</h2>
<table>
<tr><th>Temperatura</th><td id="temperatura">{{if .HasReading}}{{printf "%.1f" .Reading.Temperature}} °C{{else}}--{{end}}</td></tr>
<tr><th>Umidade</th><td id="umidade">{{if .HasReading}}{{printf "%.0f" .Reading.Humidity}} %{{else}}--{{end}}</td></tr>
<tr><th>Leitura</th><td id="leitura">{{if .HasReading}}{{ago .Reading.Timestamp .Now}}{{else}}--{{end}}</td></tr>
</table>

<h2>Dispositivos</h2>
<table id="devices">
{{range .Rows}}<tr><th>{{.Room}} / {{.Device}}</th><td class="{{stateClass .State}}">{{.State}}</td></tr>
{{end}}</table>

<h2>Conexão</h2>
<table>
<tr><th>MQTT</th><td id="mqtt" class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{if .Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Estado</th><td>{{.State}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Mensagens</th><td id="log-count">{{.LogEntries}}</td></tr>
</table>

<h2>Histórico</h2>
<table>
{{if .Cache}}<tr><th>Registros</th><td>{{.Cache.Records}}</td></tr>
<tr><th>Tamanho</th><td>{{.Cache.Size}}</td></tr>
{{if not .Cache.Oldest.IsZero}}<tr><th>Mais antigo</th><td>{{ago .Cache.Oldest .Now}}</td></tr>{{end}}
{{else}}<tr><th>Registros</th><td>indisponível</td></tr>{{end}}
<tr><th>Retenção</th><td>{{.Config.Retention}}</td></tr>
</table>

<h2>Sistema</h2>
<table>
<tr><th>Em execução</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Início</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05 UTC"}}</td></tr>
<tr><th>Reconnect</th><td>{{.Config.ReconnectInterval}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/log">Log</a> · <a href="/api/history?period=24h">24h</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";

  function live(state) {
    dot.className = "live-dot " + state;
    dot.title = state;
  }

  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { live("ok"); };
    ws.onclose = function() {
      live("err");
      setTimeout(connect, 3000);
    };
    ws.onmessage = function(ev) {
      var msg;
      try { msg = JSON.parse(ev.data); } catch (e) { return; }
      if (msg.type === "sensor") {
        document.getElementById("temperatura").textContent = msg.data.temperatura.toFixed(1) + " °C";
        document.getElementById("umidade").textContent = msg.data.umidade.toFixed(0) + " %";
        document.getElementById("leitura").textContent = "agora";
      } else if (msg.type === "connection") {
        var el = document.getElementById("mqtt");
        el.textContent = msg.data.isConnected ? "connected" : "disconnected";
        el.className = msg.data.isConnected ? "connected" : "disconnected";
      } else if (msg.type === "log") {
        document.getElementById("log-count").textContent = msg.data.length;
      }
    };
  }
  connect();
})();
</script>
</body>
</html>
`

// formatUptime renders d as "1d 2h 3m 4s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}}

	var parts []string
	for _, u := range units {
		n := secs / u.size
		secs %= u.size
		if n > 0 || len(parts) > 0 || u.size == 1 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		}
	}
	return strings.Join(parts, " ")
}

type deviceRow struct {
	Room   string
	Device string
	State  string
}

func deviceRows(snap status.Snapshot) []deviceRow {
	var rows []deviceRow
	all := status.DeviceRows(snap.Devices)
	for _, room := range house.Rooms {
		devices := all[string(room)]
		names := make([]string, 0, len(devices))
		for name := range devices {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, deviceRow{Room: string(room), Device: name, State: devices[name]})
		}
	}
	return rows
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		HasReading bool
		Rows       []deviceRow
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		HasReading: !snap.Reading.IsZero(),
		Rows:       deviceRows(snap),
	}
	indexTmpl.Execute(w, data)
}
