package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type api struct {
	store   Repository
	log     *slog.Logger
	cfg     Config
	hub     *Hub
	notify  *notifier
	tokens  *tokens
	limiter *rateLimiter
}

func newAPI(store Repository, log *slog.Logger, cfg Config, hub *Hub) *api {
	return &api{
		store:   store,
		log:     log,
		cfg:     cfg,
		hub:     hub,
		notify:  &notifier{hub: hub, log: log},
		tokens:  newTokens(cfg.JWTSecret, cfg.JWTTTL),
		limiter: newRateLimiter(cfg.AuthRatePerSec, cfg.AuthRateBurst),
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, envelope{Success: true, Data: v})
}

// writeItems answers a collection read with its size.
func writeItems[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Count: &n, Data: items})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// fail reports err to the client. Only unexpected failures are logged; the
// rest are ordinary client mistakes.
func (a *api) fail(w http.ResponseWriter, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(op, "err", err)
	}
	writeError(w, status, msg)
}

func (a *api) setAuthCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: a.cfg.sameSite(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func (a *api) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: a.cfg.sameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

type ctxKey int

const requesterKey ctxKey = iota

func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// requireAuth wraps a handler and enforces a valid token.
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r, a.cfg.CookieName)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}
		id, err := a.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), requesterKey, id)))
	}
}

func requesterID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(requesterKey).(uuid.UUID)
	return id
}

func (a *api) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && a.cfg.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)
		observeRequest(r, sw.status, elapsed)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", elapsed.Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Implement http.Flusher if underlying writer supports it (needed for SSE)
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed for the websocket upgrade.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (a *api) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// authorized resolves ref for the requester and answers the request itself
// when access is denied.
func (a *api) authorized(w http.ResponseWriter, r *http.Request, op string, ref entityRef) (Ownership, bool) {
	o, err := authorize(r.Context(), a.store, requesterID(r), ref)
	if err != nil {
		a.fail(w, op, err)
		return Ownership{}, false
	}
	return o, true
}

type moveRequest struct {
	TargetContainerID *string `json:"targetContainerId"`
	TargetPosition    *int    `json:"targetPosition"`
}

// target returns the requested container, defaulting to current.
func (m moveRequest) target(current uuid.UUID) (uuid.UUID, int, error) {
	if m.TargetPosition == nil {
		return uuid.Nil, 0, invalidInput("targetPosition is required")
	}
	if m.TargetContainerID == nil || *m.TargetContainerID == "" {
		return current, *m.TargetPosition, nil
	}
	id, err := parseID(*m.TargetContainerID)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return id, *m.TargetPosition, nil
}

// patchRequest validates the optional title and description of an update.
type patchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (p patchRequest) patch(allowDescription bool) (Patch, error) {
	if p.Title == nil && p.Description == nil {
		return Patch{}, invalidInput("nothing to update")
	}
	if p.Description != nil && !allowDescription {
		return Patch{}, invalidInput("description is not supported")
	}
	var out Patch
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return Patch{}, invalidInput("title cannot be empty")
		}
		out.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		out.Description = &d
	}
	return out, nil
}

func requireTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", invalidInput("title is required")
	}
	return t, nil
}
