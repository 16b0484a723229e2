package main

import "net/http"

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", a.withRateLimit("auth", a.handleRegister))
	mux.HandleFunc("POST /api/v1/auth/login", a.withRateLimit("auth", a.handleLogin))
	mux.HandleFunc("POST /api/v1/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("PATCH /api/v1/auth/me", a.requireAuth(a.handleUpdateMe))

	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", metricsHandler())

	mux.HandleFunc("GET /api/v1/boards", a.requireAuth(a.handleListBoards))
	mux.HandleFunc("POST /api/v1/boards", a.requireAuth(a.handleCreateBoard))
	mux.HandleFunc("GET /api/v1/boards/{id}", a.requireAuth(a.handleGetBoard))
	mux.HandleFunc("PUT /api/v1/boards/{id}", a.requireAuth(a.handleUpdateBoard))
	mux.HandleFunc("PATCH /api/v1/boards/{id}", a.requireAuth(a.handleUpdateBoard))
	mux.HandleFunc("DELETE /api/v1/boards/{id}", a.requireAuth(a.handleDeleteBoard))
	mux.HandleFunc("PUT /api/v1/boards/{id}/move", a.requireAuth(a.handleMoveBoard))
	mux.HandleFunc("GET /api/v1/boards/{id}/events", a.requireAuth(a.handleBoardEvents))
	mux.HandleFunc("GET /api/v1/boards/{id}/ws", a.requireAuth(a.handleBoardSocket))

	mux.HandleFunc("GET /api/v1/boards/{id}/lists", a.requireAuth(a.handleListsByBoard))
	mux.HandleFunc("POST /api/v1/boards/{id}/lists", a.requireAuth(a.handleCreateListOnBoard))
	mux.HandleFunc("POST /api/v1/lists", a.requireAuth(a.handleCreateList))
	mux.HandleFunc("PUT /api/v1/lists/{id}", a.requireAuth(a.handleUpdateList))
	mux.HandleFunc("PATCH /api/v1/lists/{id}", a.requireAuth(a.handleUpdateList))
	mux.HandleFunc("DELETE /api/v1/lists/{id}", a.requireAuth(a.handleDeleteList))
	mux.HandleFunc("PUT /api/v1/lists/{id}/move", a.requireAuth(a.handleMoveList))

	mux.HandleFunc("GET /api/v1/lists/{id}/cards", a.requireAuth(a.handleCardsByList))
	mux.HandleFunc("POST /api/v1/lists/{id}/cards", a.requireAuth(a.handleCreateCardInList))
	mux.HandleFunc("POST /api/v1/cards", a.requireAuth(a.handleCreateCard))
	mux.HandleFunc("GET /api/v1/cards/{id}", a.requireAuth(a.handleGetCard))
	mux.HandleFunc("PUT /api/v1/cards/{id}", a.requireAuth(a.handleUpdateCard))
	mux.HandleFunc("PATCH /api/v1/cards/{id}", a.requireAuth(a.handleUpdateCard))
	mux.HandleFunc("DELETE /api/v1/cards/{id}", a.requireAuth(a.handleDeleteCard))
	mux.HandleFunc("PUT /api/v1/cards/{id}/move", a.requireAuth(a.handleMoveCard))
}

// handler is the full middleware chain served by main and the tests.
func (a *api) handler() http.Handler {
	mux := http.NewServeMux()
	a.routes(mux)
	return withLogging(a.log, a.withCORS(mux))
}
