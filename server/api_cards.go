package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

func (a *api) handleCardsByList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	if _, ok := a.authorized(w, r, "cards by list", listRef(id)); !ok {
		return
	}
	items, err := a.store.CardsByList(r.Context(), id)
	if err != nil {
		a.fail(w, "cards by list", err)
		return
	}
	writeItems(w, items)
}

type createCardRequest struct {
	List        string `json:"list"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// POST /api/v1/lists/{id}/cards { title, description? }
func (a *api) handleCreateCardInList(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "create card", listRef(id))
	if !ok {
		return
	}
	var req createCardRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode create card", err)
		return
	}
	a.createCard(w, r, o, req)
}

// POST /api/v1/cards { list, title, description? }
func (a *api) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode create card", err)
		return
	}
	listID, err := parseID(req.List)
	if err != nil {
		a.fail(w, "create card", err)
		return
	}
	o, ok := a.authorized(w, r, "create card", listRef(listID))
	if !ok {
		return
	}
	a.createCard(w, r, o, req)
}

func (a *api) createCard(w http.ResponseWriter, r *http.Request, o Ownership, req createCardRequest) {
	title, err := requireTitle(req.Title)
	if err != nil {
		a.fail(w, "create card", err)
		return
	}
	c, err := a.store.CreateCard(r.Context(), o.List.ID, title, strings.TrimSpace(req.Description))
	if err != nil {
		a.fail(w, "create card", err)
		return
	}
	writeData(w, http.StatusCreated, c)
	a.notify.Notify(o.Board.ID, eventCardUpdated, actionCreated, "card", c)
}

func (a *api) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "get card", cardRef(id))
	if !ok {
		return
	}
	writeData(w, http.StatusOK, *o.Card)
}

func (a *api) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "update card", cardRef(id))
	if !ok {
		return
	}
	var req patchRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode update card", err)
		return
	}
	p, err := req.patch(true)
	if err != nil {
		a.fail(w, "update card", err)
		return
	}
	c, err := a.store.UpdateCard(r.Context(), id, p)
	if err != nil {
		a.fail(w, "update card", err)
		return
	}
	writeData(w, http.StatusOK, c)
	a.notify.Notify(o.Board.ID, eventCardUpdated, actionUpdated, "card", c)
}

func (a *api) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "delete card", cardRef(id))
	if !ok {
		return
	}
	c, err := a.store.DeleteCard(r.Context(), id)
	if err != nil {
		a.fail(w, "delete card", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "card deleted", Data: c})
	a.notify.Notify(o.Board.ID, eventCardUpdated, actionDeleted, "card", c)
}

// handleMoveCard reorders a card within its list or moves it to another list
// on the same board.
func (a *api) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	o, ok := a.authorized(w, r, "move card", cardRef(id))
	if !ok {
		return
	}
	var req moveRequest
	if err := readJSON(w, r, &req); err != nil {
		a.fail(w, "decode move card", err)
		return
	}
	target, pos, err := req.target(o.Card.ListID)
	if err != nil {
		a.fail(w, "move card", err)
		return
	}
	if err := a.checkCardTarget(r, o, target); err != nil {
		a.fail(w, "move card target", err)
		return
	}
	c, changed, err := a.store.MoveCard(r.Context(), id, target, pos)
	if err != nil {
		a.fail(w, "move card", err)
		return
	}
	writeData(w, http.StatusOK, c)
	if changed {
		a.notify.Notify(o.Board.ID, eventCardUpdated, actionMoved, "card", map[string]any{
			"card":          c,
			"from_list":     o.Card.ListID,
			"from_position": o.Card.Position,
		})
	}
}

// checkCardTarget requires the destination list to exist on the card's board.
func (a *api) checkCardTarget(r *http.Request, o Ownership, target uuid.UUID) error {
	if target == o.Card.ListID {
		return nil
	}
	tl, err := a.store.GetList(r.Context(), target)
	if err != nil {
		return fmt.Errorf("target list %s: %w", target, err)
	}
	if tl.BoardID != o.Board.ID {
		return fmt.Errorf("%w: list %s is on another board", ErrInvalidTarget, target)
	}
	return nil
}
