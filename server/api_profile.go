package main

import (
	"net/http"
	"strings"
)

// PATCH /api/v1/auth/me { name }
func (a *api) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name *string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode update me", err)
		return
	}
	if req.Name == nil {
		writeError(w, 400, "nothing to update")
		return
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" {
		writeError(w, 400, "name required")
		return
	}
	u, err := a.store.UpdateUserName(r.Context(), requesterID(r), name)
	if err != nil {
		a.fail(w, "update me", err)
		return
	}
	writeData(w, 200, u)
}
