package main

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

func (a *api) handleListsByBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "lists by board", boardRef(id)); !ok {
		return
	}
	items, err := a.store.ListsByBoard(r.Context(), id)
	if err != nil {
		a.fail(w, "lists by board", err)
		return
	}
	writeItems(w, items)
}

// POST /api/v1/boards/{id}/lists { title }
func (a *api) handleCreateListOnBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "create list", boardRef(id)); !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode create list", err)
		return
	}
	a.createList(w, r, id, req.Title)
}

// POST /api/v1/lists { board, title }
func (a *api) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Board string `json:"board"`
		Title string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode create list", err)
		return
	}
	boardID, err := parseID(req.Board)
	if err != nil {
		a.fail(w, "create list", err)
		return
	}
	if _, ok := a.authorized(w, r, "create list", boardRef(boardID)); !ok {
		return
	}
	a.createList(w, r, boardID, req.Title)
}

func (a *api) createList(w http.ResponseWriter, r *http.Request, boardID uuid.UUID, title string) {
	title, err := requireTitle(title)
	if err != nil {
		a.fail(w, "create list", err)
		return
	}
	l, err := a.store.CreateList(r.Context(), boardID, title)
	if err != nil {
		a.fail(w, "create list", err)
		return
	}
	writeData(w, http.StatusCreated, l)
	a.notify.Notify(l.BoardID, eventListUpdated, actionCreated, "list", l)
}

func (a *api) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "update list", listRef(id)); !ok {
		return
	}
	var req patchRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode update list", err)
		return
	}
	p, err := req.patch(false)
	if err != nil {
		a.fail(w, "update list", err)
		return
	}
	l, err := a.store.UpdateList(r.Context(), id, p)
	if err != nil {
		a.fail(w, "update list", err)
		return
	}
	writeData(w, http.StatusOK, l)
	a.notify.Notify(l.BoardID, eventListUpdated, actionUpdated, "list", l)
}

func (a *api) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "delete list", listRef(id)); !ok {
		return
	}
	l, err := a.store.DeleteList(r.Context(), id)
	if err != nil {
		a.fail(w, "delete list", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "list deleted", Data: l})
	a.notify.Notify(l.BoardID, eventListUpdated, actionDeleted, "list", l)
}

// handleMoveList reorders a list within its board or moves it to another
// board owned by the same user.
func (a *api) handleMoveList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "move list", listRef(id))
	if !ok {
		return
	}
	var req moveRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode move list", err)
		return
	}
	target, pos, err := req.target(o.List.BoardID)
	if err != nil {
		a.fail(w, "move list", err)
		return
	}
	if target != o.List.BoardID {
		tb, err := a.store.GetBoard(r.Context(), target)
		if err != nil {
			a.fail(w, "move list target", fmt.Errorf("target board %s: %w", target, err))
			return
		}
		if tb.OwnerID != o.OwnerID() {
			a.fail(w, "move list target", fmt.Errorf("%w: board %s has another owner", ErrInvalidTarget, target))
			return
		}
	}
	l, changed, err := a.store.MoveList(r.Context(), id, target, pos)
	if err != nil {
		a.fail(w, "move list", err)
		return
	}
	writeData(w, http.StatusOK, l)
	if !changed {
		return
	}
	moved := map[string]any{"list": l, "from_board": o.List.BoardID, "from_position": o.List.Position}
	a.notify.Notify(o.List.BoardID, eventListUpdated, actionMoved, "list", moved)
	if l.BoardID != o.List.BoardID {
		a.notify.Notify(l.BoardID, eventListUpdated, actionMoved, "list", moved)
	}
}
