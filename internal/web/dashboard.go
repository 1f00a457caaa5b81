// Package web serves the live masking dashboard. The page subscribes to the
// websocket hub and only ever shows counts, never text.
package web

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type dashboardData struct {
	Version       string
	WebSocketPath string
}

// Dashboard returns a handler for the dashboard page. wsPath is the hub's
// route, relative to the server root.
func Dashboard(version, wsPath string) http.HandlerFunc {
	data := dashboardData{Version: version, WebSocketPath: wsPath}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		if err := dashboardTmpl.Execute(w, data); err != nil {
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		}
	}
}
