package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOwnerWalksToBoard(t *testing.T) {
	f := newFixture(t)
	l, ids := f.listWithCards(t, "todo", "A")

	o, err := resolveOwner(context.Background(), f.store, cardRef(ids["A"]))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, o.OwnerID())
	assert.Equal(t, f.board.ID, o.Board.ID)
	require.NotNil(t, o.List)
	assert.Equal(t, l.ID, o.List.ID)
	require.NotNil(t, o.Card)
	assert.Equal(t, ids["A"], o.Card.ID)

	o, err = resolveOwner(context.Background(), f.store, listRef(l.ID))
	require.NoError(t, err)
	assert.Nil(t, o.Card)
	assert.Equal(t, f.user.ID, o.OwnerID())

	o, err = resolveOwner(context.Background(), f.store, boardRef(f.board.ID))
	require.NoError(t, err)
	assert.Nil(t, o.List)
}

func TestResolveOwnerMissing(t *testing.T) {
	f := newFixture(t)
	for _, ref := range []entityRef{cardRef(uuid.New()), listRef(uuid.New()), boardRef(uuid.New())} {
		_, err := resolveOwner(context.Background(), f.store, ref)
		assert.ErrorIs(t, err, ErrNotFound, "%s", ref.Kind)
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, ids := f.listWithCards(t, "todo", "A")
	stranger, err := f.store.CreateUser(ctx, "bob@example.com", "hash", "Bob")
	require.NoError(t, err)

	_, err = authorize(ctx, f.store, f.user.ID, cardRef(ids["A"]))
	assert.NoError(t, err)

	_, err = authorize(ctx, f.store, stranger.ID, cardRef(ids["A"]))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = authorize(ctx, f.store, stranger.ID, boardRef(f.board.ID))
	assert.ErrorIs(t, err, ErrForbidden)

	// a missing entity is reported as missing, not as forbidden
	_, err = authorize(ctx, f.store, stranger.ID, cardRef(uuid.New()))
	assert.ErrorIs(t, err, ErrNotFound)
}
