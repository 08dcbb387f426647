package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
)

type docsLink struct {
	Href  string
	Label string
}

// apiDocsTemplate renders the OpenAPI reference with Stoplight Elements.
var apiDocsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>{{.Title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    .console-links { position: fixed; top: 12px; right: 16px; z-index: 9999; display: flex; gap: 8px; }
    .console-links a {
      background: #161b22; border: 1px solid #30363d; border-radius: 6px; color: #58a6ff;
      font: 500 12px -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      padding: 5px 12px; text-decoration: none;
    }
  </style>
</head>
<body style="height: 100vh; margin: 0; position: relative;">
  <nav class="console-links">{{range .Links}}<a href="{{.Href}}">{{.Label}}</a>{{end}}</nav>
  <elements-api apiDescriptionUrl="{{.SpecURL}}" router="hash" layout="sidebar" tryItCredentialsPolicy="same-origin" darkMode />
</body>
</html>`))

func renderAPIDocs(title, specURL string, links []docsLink) string {
	var buf bytes.Buffer
	err := apiDocsTemplate.Execute(&buf, struct {
		Title   string
		SpecURL string
		Links   []docsLink
	}{title, specURL, links})
	if err != nil {
		panic(err)
	}
	return buf.String()
}

var docsHTML = renderAPIDocs("MediRunner Console API", "/openapi.json", []docsLink{
	{Href: "/docs/events", Label: "Event Stream"},
	{Href: "/metrics", Label: "Metrics"},
})

func htmlPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(page)); err != nil {
			slog.Debug("docs response write failed", "path", r.URL.Path, "error", err)
		}
	}
}

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream | MediRunner Console</title>
  <style>
    body {
      margin: 0 auto;
      max-width: 860px;
      padding: 24px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    code, pre { font-family: "SFMono-Regular", Consolas, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border-bottom: 1px solid #30363d; padding: 6px 10px; text-align: left; vertical-align: top; }
    th { color: #8b949e; font-weight: 600; }
  </style>
</head>
<body>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Event Stream</h1>
  <p>
    <code>GET /api/v1/events</code> is a server-sent event stream of session changes.
    Each event is named after its feed and carries one JSON document.
    Pass <code>?feeds=log,connection</code> to receive only some feeds.
  </p>
  <pre>curl -N 'http://127.0.0.1:8190/api/v1/events?feeds=log'

event: log
data: {"id":"...","timestamp":"...","message":"Connected to robot robot-01","level":"success"}</pre>

  <h2>Feeds</h2>
  <table>
    <tr><th>Feed</th><th>Data</th></tr>
    <tr><td><code>connection</code></td><td>Session status: state, connected, robot_id, pending_pings</td></tr>
    <tr><td><code>log</code></td><td>One log entry: id, timestamp, message, level (info, success, error)</td></tr>
    <tr><td><code>logs_cleared</code></td><td><code>{}</code> after the log was cleared</td></tr>
    <tr><td><code>vision_frame</code></td><td>The latest camera frame as received from the robot</td></tr>
    <tr><td><code>panoramic_image</code></td><td>A panoramic capture as received from the robot</td></tr>
    <tr><td><code>robot</code></td><td>Registry update: robot_id plus online and/or battery</td></tr>
  </table>

  <p>
    Slow clients do not hold up the session: events that do not fit a client's buffer
    are dropped for that client and counted in <code>console_listener_events_dropped_total</code>.
  </p>
</body>
</html>`
