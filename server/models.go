package main

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Board struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	// Position orders boards among the owner's boards
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type List struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"board_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type Card struct {
	ID          uuid.UUID `json:"id"`
	ListID      uuid.UUID `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListWithCards is a list as it appears in a full board fetch.
type ListWithCards struct {
	List
	Cards []Card `json:"cards"`
}

type BoardDetail struct {
	Board Board           `json:"board"`
	Lists []ListWithCards `json:"lists"`
}

// Patch carries the editable text fields of a board, list or card.
// Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
}

func (b Board) slot() placement { return placement{ID: b.ID, Parent: b.OwnerID, Pos: b.Position} }
func (l List) slot() placement  { return placement{ID: l.ID, Parent: l.BoardID, Pos: l.Position} }
func (c Card) slot() placement  { return placement{ID: c.ID, Parent: c.ListID, Pos: c.Position} }

// nestBoard groups cards under their lists, keeping store order.
func nestBoard(b Board, lists []List, cards []Card) BoardDetail {
	byList := make(map[uuid.UUID][]Card, len(lists))
	for _, c := range cards {
		byList[c.ListID] = append(byList[c.ListID], c)
	}
	out := BoardDetail{Board: b, Lists: make([]ListWithCards, 0, len(lists))}
	for _, l := range lists {
		cs := byList[l.ID]
		if cs == nil {
			cs = []Card{}
		}
		out.Lists = append(out.Lists, ListWithCards{List: l, Cards: cs})
	}
	return out
}
