package main

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (a *api) issueSession(w http.ResponseWriter, status int, u User) {
	token, exp, err := a.tokens.Issue(u.ID)
	if err != nil {
		a.log.Error("issue token", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	a.setAuthCookie(w, token, exp)
	writeData(w, status, authResponse{Token: token, User: u})
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode register", err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(email); err != nil || name == "" {
		writeError(w, 400, "name and a valid email are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, 400, "password too short")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("bcrypt", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	u, err := a.store.CreateUser(r.Context(), email, string(hash), name)
	if err != nil {
		a.fail(w, "register", err)
		return
	}
	a.issueSession(w, http.StatusCreated, u)
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	u, hash, err := a.store.UserCredsByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 401, "invalid credentials")
			return
		}
		a.fail(w, "login", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, 401, "invalid credentials")
		return
	}
	a.issueSession(w, http.StatusOK, u)
}

// Tokens are stateless, so logout only drops the cookie.
func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.clearAuthCookie(w)
	writeJSON(w, 200, envelope{Success: true, Message: "logged out"})
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.GetUser(r.Context(), requesterID(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// token outlived its user
			writeError(w, 401, ErrUnauthenticated.Error())
			return
		}
		a.fail(w, "me", err)
		return
	}
	writeData(w, 200, u)
}
