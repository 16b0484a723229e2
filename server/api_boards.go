package main

import (
	"net/http"
	"strings"
)

func (a *api) handleListBoards(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.BoardsByOwner(r.Context(), requesterID(r))
	if err != nil {
		a.fail(w, "list boards", err)
		return
	}
	writeItems(w, items)
}

func (a *api) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode create board", err)
		return
	}
	title, err := requireTitle(req.Title)
	if err != nil {
		a.fail(w, "create board", err)
		return
	}
	b, err := a.store.CreateBoard(r.Context(), requesterID(r), title, strings.TrimSpace(req.Description))
	if err != nil {
		a.fail(w, "create board", err)
		return
	}
	writeData(w, http.StatusCreated, b)
}

// handleGetBoard returns the board with its lists and their cards, each level
// sorted by position.
func (a *api) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "get board", boardRef(id))
	if !ok {
		return
	}
	lists, err := a.store.ListsByBoard(r.Context(), id)
	if err != nil {
		a.fail(w, "get board lists", err)
		return
	}
	cards, err := a.store.CardsByBoard(r.Context(), id)
	if err != nil {
		a.fail(w, "get board cards", err)
		return
	}
	writeData(w, http.StatusOK, nestBoard(o.Board, lists, cards))
}

func (a *api) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "update board", boardRef(id)); !ok {
		return
	}
	var req patchRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode update board", err)
		return
	}
	p, err := req.patch(true)
	if err != nil {
		a.fail(w, "update board", err)
		return
	}
	b, err := a.store.UpdateBoard(r.Context(), id, p)
	if err != nil {
		a.fail(w, "update board", err)
		return
	}
	writeData(w, http.StatusOK, b)
	a.notify.Notify(b.ID, eventBoardUpdate, actionUpdated, "board", b)
}

func (a *api) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "delete board", boardRef(id)); !ok {
		return
	}
	b, err := a.store.DeleteBoard(r.Context(), id)
	if err != nil {
		a.fail(w, "delete board", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "board deleted", Data: b})
	a.notify.Notify(b.ID, eventBoardUpdate, actionDeleted, "board", b)
}

// handleMoveBoard reorders a board among its owner's boards.
func (a *api) handleMoveBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "move board", boardRef(id)); !ok {
		return
	}
	var req struct {
		TargetPosition *int `json:"targetPosition"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode move board", err)
		return
	}
	if req.TargetPosition == nil {
		a.fail(w, "move board", invalidInput("targetPosition is required"))
		return
	}
	b, changed, err := a.store.MoveBoard(r.Context(), id, *req.TargetPosition)
	if err != nil {
		a.fail(w, "move board", err)
		return
	}
	writeData(w, http.StatusOK, b)
	if changed {
		a.notify.Notify(b.ID, eventBoardUpdate, actionMoved, "board", b)
	}
}

func (a *api) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "board events", boardRef(id)); !ok {
		return
	}
	a.hub.ServeSSE(w, r, id)
}

func (a *api) handleBoardSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "board socket", boardRef(id)); !ok {
		return
	}
	a.hub.ServeWS(w, r, id)
}
