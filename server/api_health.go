package main

import (
	"context"
	"net/http"
	"time"
)

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.log.Error("health ping", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "store unavailable"})
		return
	}
	writeJSON(w, 200, map[string]any{"success": true, "ts": time.Now().UTC().Format(time.RFC3339)})
}
