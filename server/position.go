package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Positions are dense: the n children of a container hold exactly 0..n-1.
// Every mutation is expressed as at most two bounded range updates plus the
// write of the item itself, so a store never has to load a whole container.

// Shift moves every sibling whose position lies in [From, To] by Delta.
// To < 0 leaves the range open at the end.
type Shift struct {
	From  int
	To    int
	Delta int
}

func (s Shift) covers(pos int) bool {
	return pos >= s.From && (s.To < 0 || pos <= s.To)
}

func (s Shift) String() string {
	if s.To < 0 {
		return fmt.Sprintf("[%d..] %+d", s.From, s.Delta)
	}
	return fmt.Sprintf("[%d..%d] %+d", s.From, s.To, s.Delta)
}

// tailPosition is where a new item lands in a container holding count items.
func tailPosition(count int) int { return count }

// compactAfter closes the gap left by removing the item at pos.
func compactAfter(pos int) Shift { return Shift{From: pos + 1, To: -1, Delta: -1} }

type movePlan struct {
	// Source applies to the container the item leaves (or stays in).
	Source *Shift
	// Target applies to the receiving container of a cross-container move.
	Target *Shift
	Noop   bool
}

// planMove reorders inside one container of count items. newPos must be an
// existing index.
func planMove(oldPos, newPos, count int) (movePlan, error) {
	if newPos < 0 || newPos >= count {
		return movePlan{}, fmt.Errorf("%w: position %d outside [0, %d]", ErrInvalidTarget, newPos, count-1)
	}
	switch {
	case newPos == oldPos:
		return movePlan{Noop: true}, nil
	case newPos > oldPos:
		return movePlan{Source: &Shift{From: oldPos + 1, To: newPos, Delta: -1}}, nil
	default:
		return movePlan{Source: &Shift{From: newPos, To: oldPos - 1, Delta: 1}}, nil
	}
}

// planTransfer moves an item into another container currently holding
// targetCount items; newPos == targetCount appends.
func planTransfer(oldPos, newPos, targetCount int) (movePlan, error) {
	if newPos < 0 || newPos > targetCount {
		return movePlan{}, fmt.Errorf("%w: position %d outside [0, %d]", ErrInvalidTarget, newPos, targetCount)
	}
	src := compactAfter(oldPos)
	p := movePlan{Source: &src}
	if newPos < targetCount {
		p.Target = &Shift{From: newPos, To: -1, Delta: 1}
	}
	return p, nil
}

// placement is an item's identity, container and position.
type placement struct {
	ID     uuid.UUID
	Parent uuid.UUID
	Pos    int
}

// siblings is the store-side view of one kind of ordered item. Implementations
// run inside whatever isolation the store provides for the whole operation.
type siblings interface {
	container() string
	count(ctx context.Context, parent uuid.UUID) (int, error)
	shift(ctx context.Context, parent uuid.UUID, s Shift) error
	place(ctx context.Context, id, parent uuid.UUID, pos int) error
	remove(ctx context.Context, id uuid.UUID) error
}

func nextPosition(ctx context.Context, sib siblings, parent uuid.UUID) (int, error) {
	n, err := sib.count(ctx, parent)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", sib.container(), err)
	}
	return tailPosition(n), nil
}

// moveItem validates and applies a move of cur to (target, newPos). It reports
// false for a same-position move, which writes nothing. The range check reads
// the container size before any write so a rejected move leaves no trace.
func moveItem(ctx context.Context, sib siblings, cur placement, target uuid.UUID, newPos int) (bool, error) {
	var (
		plan movePlan
		kind string
	)
	if target == cur.Parent {
		n, err := sib.count(ctx, cur.Parent)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", sib.container(), err)
		}
		if plan, err = planMove(cur.Pos, newPos, n); err != nil {
			return false, err
		}
		kind = "within"
	} else {
		n, err := sib.count(ctx, target)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", sib.container(), err)
		}
		if plan, err = planTransfer(cur.Pos, newPos, n); err != nil {
			return false, err
		}
		kind = "across"
	}
	if plan.Noop {
		positionMoves.WithLabelValues(sib.container(), "noop").Inc()
		return false, nil
	}
	if err := sib.shift(ctx, cur.Parent, *plan.Source); err != nil {
		return false, fmt.Errorf("shift %s %s: %w", sib.container(), plan.Source, err)
	}
	if plan.Target != nil {
		if err := sib.shift(ctx, target, *plan.Target); err != nil {
			return false, fmt.Errorf("shift %s %s: %w", sib.container(), plan.Target, err)
		}
	}
	if err := sib.place(ctx, cur.ID, target, newPos); err != nil {
		return false, fmt.Errorf("place %s: %w", sib.container(), err)
	}
	positionMoves.WithLabelValues(sib.container(), kind).Inc()
	return true, nil
}

// removeItem deletes cur and compacts the siblings after it.
func removeItem(ctx context.Context, sib siblings, cur placement) error {
	if err := sib.remove(ctx, cur.ID); err != nil {
		return fmt.Errorf("remove %s: %w", sib.container(), err)
	}
	if err := sib.shift(ctx, cur.Parent, compactAfter(cur.Pos)); err != nil {
		return fmt.Errorf("compact %s: %w", sib.container(), err)
	}
	return nil
}
