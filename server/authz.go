package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type entityKind string

const (
	entityBoard entityKind = "board"
	entityList  entityKind = "list"
	entityCard  entityKind = "card"
)

type entityRef struct {
	Kind entityKind
	ID   uuid.UUID
}

func boardRef(id uuid.UUID) entityRef { return entityRef{Kind: entityBoard, ID: id} }
func listRef(id uuid.UUID) entityRef  { return entityRef{Kind: entityList, ID: id} }
func cardRef(id uuid.UUID) entityRef  { return entityRef{Kind: entityCard, ID: id} }

// Ownership is the resolved chain from an entity up to its board. List and
// Card are set only when the walk passed through them.
type Ownership struct {
	Board Board
	List  *List
	Card  *Card
}

func (o Ownership) OwnerID() uuid.UUID { return o.Board.OwnerID }

// resolveOwner walks card -> list -> board one lookup at a time. A missing
// link anywhere in the chain is ErrNotFound.
func resolveOwner(ctx context.Context, repo Repository, ref entityRef) (Ownership, error) {
	var o Ownership
	for {
		switch ref.Kind {
		case entityCard:
			c, err := repo.GetCard(ctx, ref.ID)
			if err != nil {
				return Ownership{}, fmt.Errorf("card %s: %w", ref.ID, err)
			}
			o.Card = &c
			ref = listRef(c.ListID)
		case entityList:
			l, err := repo.GetList(ctx, ref.ID)
			if err != nil {
				return Ownership{}, fmt.Errorf("list %s: %w", ref.ID, err)
			}
			o.List = &l
			ref = boardRef(l.BoardID)
		case entityBoard:
			b, err := repo.GetBoard(ctx, ref.ID)
			if err != nil {
				return Ownership{}, fmt.Errorf("board %s: %w", ref.ID, err)
			}
			o.Board = b
			return o, nil
		default:
			return Ownership{}, fmt.Errorf("unknown entity kind %q", ref.Kind)
		}
	}
}

// authorize resolves ref and allows it only for the board's owner.
func authorize(ctx context.Context, repo Repository, requester uuid.UUID, ref entityRef) (Ownership, error) {
	o, err := resolveOwner(ctx, repo, ref)
	if err != nil {
		return Ownership{}, err
	}
	if o.OwnerID() != requester {
		return Ownership{}, fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, ErrForbidden)
	}
	return o, nil
}
