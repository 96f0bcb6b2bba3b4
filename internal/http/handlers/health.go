package handlers

import (
	"net/http"
	"time"
)

// Health is a liveness probe. It reports which optional collaborators are
// wired but never calls them.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(a.now().Sub(a.StartedAt) / time.Second),
		"history":        a.History != nil,
		"geo":            a.Geo != nil,
	})
}
