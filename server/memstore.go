package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Repository for local runs and tests. A single
// mutex serialises every operation, so a reorder is atomic to readers.
type MemStore struct {
	mu sync.Mutex

	users  map[uuid.UUID]*memUser
	boards map[uuid.UUID]*Board
	lists  map[uuid.UUID]*List
	cards  map[uuid.UUID]*Card
}

type memUser struct {
	User
	hash string
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:  map[uuid.UUID]*memUser{},
		boards: map[uuid.UUID]*Board{},
		lists:  map[uuid.UUID]*List{},
		cards:  map[uuid.UUID]*Card{},
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

// memSiblings adapts one of the maps to the reindexing code. Callers hold s.mu.
type memSiblings struct {
	name string
	// positions yields a pointer to the position of every child of parent
	positions func(parent uuid.UUID) []*int
	setPos    func(id, parent uuid.UUID, pos int) bool
	drop      func(id uuid.UUID) bool
}

func (m memSiblings) container() string { return m.name }

func (m memSiblings) count(_ context.Context, parent uuid.UUID) (int, error) {
	return len(m.positions(parent)), nil
}

func (m memSiblings) shift(_ context.Context, parent uuid.UUID, sh Shift) error {
	for _, p := range m.positions(parent) {
		if sh.covers(*p) {
			*p += sh.Delta
		}
	}
	return nil
}

func (m memSiblings) place(_ context.Context, id, parent uuid.UUID, pos int) error {
	if !m.setPos(id, parent, pos) {
		return ErrNotFound
	}
	return nil
}

func (m memSiblings) remove(_ context.Context, id uuid.UUID) error {
	if !m.drop(id) {
		return ErrNotFound
	}
	return nil
}

func (s *MemStore) boardSiblings() memSiblings {
	return memSiblings{
		name: "boards",
		positions: func(owner uuid.UUID) []*int {
			var out []*int
			for _, b := range s.boards {
				if b.OwnerID == owner {
					out = append(out, &b.Position)
				}
			}
			return out
		},
		setPos: func(id, owner uuid.UUID, pos int) bool {
			b, ok := s.boards[id]
			if ok {
				b.OwnerID, b.Position = owner, pos
			}
			return ok
		},
		drop: func(id uuid.UUID) bool {
			if _, ok := s.boards[id]; !ok {
				return false
			}
			for lid, l := range s.lists {
				if l.BoardID == id {
					s.dropList(lid)
				}
			}
			delete(s.boards, id)
			return true
		},
	}
}

func (s *MemStore) listSiblings() memSiblings {
	return memSiblings{
		name: "lists",
		positions: func(board uuid.UUID) []*int {
			var out []*int
			for _, l := range s.lists {
				if l.BoardID == board {
					out = append(out, &l.Position)
				}
			}
			return out
		},
		setPos: func(id, board uuid.UUID, pos int) bool {
			l, ok := s.lists[id]
			if ok {
				l.BoardID, l.Position = board, pos
			}
			return ok
		},
		drop: func(id uuid.UUID) bool {
			if _, ok := s.lists[id]; !ok {
				return false
			}
			s.dropList(id)
			return true
		},
	}
}

func (s *MemStore) cardSiblings() memSiblings {
	return memSiblings{
		name: "cards",
		positions: func(list uuid.UUID) []*int {
			var out []*int
			for _, c := range s.cards {
				if c.ListID == list {
					out = append(out, &c.Position)
				}
			}
			return out
		},
		setPos: func(id, list uuid.UUID, pos int) bool {
			c, ok := s.cards[id]
			if ok {
				c.ListID, c.Position = list, pos
			}
			return ok
		},
		drop: func(id uuid.UUID) bool {
			if _, ok := s.cards[id]; !ok {
				return false
			}
			delete(s.cards, id)
			return true
		},
	}
}

// dropList deletes a list and its cards without compacting anything.
func (s *MemStore) dropList(id uuid.UUID) {
	for cid, c := range s.cards {
		if c.ListID == id {
			delete(s.cards, cid)
		}
	}
	delete(s.lists, id)
}

// Users

func (s *MemStore) CreateUser(_ context.Context, email, passwordHash, name string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return User{}, fmt.Errorf("email already registered: %w", ErrConflict)
		}
	}
	u := &memUser{User: User{ID: uuid.New(), Email: email, Name: name, CreatedAt: time.Now().UTC()}, hash: passwordHash}
	s.users[u.ID] = u
	return u.User, nil
}

func (s *MemStore) UserCredsByEmail(_ context.Context, email string) (User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.User, u.hash, nil
		}
	}
	return User{}, "", ErrNotFound
}

func (s *MemStore) GetUser(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u.User, nil
}

func (s *MemStore) UpdateUserName(_ context.Context, id uuid.UUID, name string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Name = name
	return u.User, nil
}

// Boards

func (s *MemStore) BoardsByOwner(_ context.Context, ownerID uuid.UUID) ([]Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Board{}
	for _, b := range s.boards {
		if b.OwnerID == ownerID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemStore) GetBoard(_ context.Context, id uuid.UUID) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return Board{}, ErrNotFound
	}
	return *b, nil
}

func (s *MemStore) CreateBoard(ctx context.Context, ownerID uuid.UUID, title, description string) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerID]; !ok {
		return Board{}, fmt.Errorf("users %s: %w", ownerID, ErrNotFound)
	}
	pos, err := nextPosition(ctx, s.boardSiblings(), ownerID)
	if err != nil {
		return Board{}, err
	}
	b := &Board{ID: uuid.New(), OwnerID: ownerID, Title: title, Description: description, Position: pos, CreatedAt: time.Now().UTC()}
	s.boards[b.ID] = b
	return *b, nil
}

func (s *MemStore) UpdateBoard(_ context.Context, id uuid.UUID, p Patch) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return Board{}, ErrNotFound
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	return *b, nil
}

func (s *MemStore) DeleteBoard(ctx context.Context, id uuid.UUID) (Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return Board{}, ErrNotFound
	}
	out := *b
	return out, removeItem(ctx, s.boardSiblings(), out.slot())
}

func (s *MemStore) MoveBoard(ctx context.Context, id uuid.UUID, newPos int) (Board, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return Board{}, false, ErrNotFound
	}
	moved, err := moveItem(ctx, s.boardSiblings(), b.slot(), b.OwnerID, newPos)
	if err != nil {
		return Board{}, false, err
	}
	return *b, moved, nil
}

// Lists

func (s *MemStore) ListsByBoard(_ context.Context, boardID uuid.UUID) ([]List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listsOf(boardID), nil
}

func (s *MemStore) listsOf(boardID uuid.UUID) []List {
	out := []List{}
	for _, l := range s.lists {
		if l.BoardID == boardID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *MemStore) GetList(_ context.Context, id uuid.UUID) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return List{}, ErrNotFound
	}
	return *l, nil
}

func (s *MemStore) CreateList(ctx context.Context, boardID uuid.UUID, title string) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[boardID]; !ok {
		return List{}, fmt.Errorf("boards %s: %w", boardID, ErrNotFound)
	}
	pos, err := nextPosition(ctx, s.listSiblings(), boardID)
	if err != nil {
		return List{}, err
	}
	l := &List{ID: uuid.New(), BoardID: boardID, Title: title, Position: pos, CreatedAt: time.Now().UTC()}
	s.lists[l.ID] = l
	return *l, nil
}

func (s *MemStore) UpdateList(_ context.Context, id uuid.UUID, p Patch) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return List{}, ErrNotFound
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	return *l, nil
}

func (s *MemStore) DeleteList(ctx context.Context, id uuid.UUID) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return List{}, ErrNotFound
	}
	out := *l
	return out, removeItem(ctx, s.listSiblings(), out.slot())
}

func (s *MemStore) MoveList(ctx context.Context, id, targetBoardID uuid.UUID, newPos int) (List, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return List{}, false, ErrNotFound
	}
	if _, ok := s.boards[targetBoardID]; !ok {
		return List{}, false, fmt.Errorf("boards %s: %w", targetBoardID, ErrNotFound)
	}
	moved, err := moveItem(ctx, s.listSiblings(), l.slot(), targetBoardID, newPos)
	if err != nil {
		return List{}, false, err
	}
	return *l, moved, nil
}

// Cards

func (s *MemStore) CardsByList(_ context.Context, listID uuid.UUID) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardsOf(listID), nil
}

func (s *MemStore) cardsOf(listID uuid.UUID) []Card {
	out := []Card{}
	for _, c := range s.cards {
		if c.ListID == listID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *MemStore) CardsByBoard(_ context.Context, boardID uuid.UUID) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Card{}
	for _, l := range s.listsOf(boardID) {
		out = append(out, s.cardsOf(l.ID)...)
	}
	return out, nil
}

func (s *MemStore) GetCard(_ context.Context, id uuid.UUID) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemStore) CreateCard(ctx context.Context, listID uuid.UUID, title, description string) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[listID]; !ok {
		return Card{}, fmt.Errorf("lists %s: %w", listID, ErrNotFound)
	}
	pos, err := nextPosition(ctx, s.cardSiblings(), listID)
	if err != nil {
		return Card{}, err
	}
	c := &Card{ID: uuid.New(), ListID: listID, Title: title, Description: description, Position: pos, CreatedAt: time.Now().UTC()}
	s.cards[c.ID] = c
	return *c, nil
}

func (s *MemStore) UpdateCard(_ context.Context, id uuid.UUID, p Patch) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	return *c, nil
}

func (s *MemStore) DeleteCard(ctx context.Context, id uuid.UUID) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	out := *c
	return out, removeItem(ctx, s.cardSiblings(), out.slot())
}

func (s *MemStore) MoveCard(ctx context.Context, id, targetListID uuid.UUID, newPos int) (Card, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return Card{}, false, ErrNotFound
	}
	if _, ok := s.lists[targetListID]; !ok {
		return Card{}, false, fmt.Errorf("lists %s: %w", targetListID, ErrNotFound)
	}
	moved, err := moveItem(ctx, s.cardSiblings(), c.slot(), targetListID, newPos)
	if err != nil {
		return Card{}, false, err
	}
	return *c, moved, nil
}
