package main

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cardID  = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	listOne = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	listTwo = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func cardRow(id, list uuid.UUID, pos int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "list_id", "title", "description", "pos", "created_at"}).
		AddRow(id.String(), list.String(), "card", "", pos, time.Now())
}

const selectCard = `select id, list_id, title, description, pos, created_at from cards where id=$1`

func expectCardRead(mock sqlmock.Sqlmock, list uuid.UUID, pos int64) {
	mock.ExpectQuery("^" + q(selectCard) + "$").
		WithArgs(cardID).
		WillReturnRows(cardRow(cardID, list, pos))
}

func expectCardForUpdate(mock sqlmock.Sqlmock, list uuid.UUID, pos int64) {
	mock.ExpectQuery(q(selectCard + ` for update`)).
		WithArgs(cardID).
		WillReturnRows(cardRow(cardID, list, pos))
}

func expectLock(mock sqlmock.Sqlmock, table string, id uuid.UUID) {
	mock.ExpectQuery(q(`select id from `+table+` where id=$1 for update`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
}

func expectCount(mock sqlmock.Sqlmock, list uuid.UUID, n int64) {
	mock.ExpectQuery(q(`select count(*) from cards where list_id=$1`)).
		WithArgs(list).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

const (
	shiftBounded = `update cards set pos = pos + $1 where list_id=$2 and pos between $3 and $4`
	shiftOpen    = `update cards set pos = pos + $1 where list_id=$2 and pos >= $3`
	placeCard    = `update cards set list_id=$1, pos=$2 where id=$3`
)

func TestStoreMoveCardWithinList(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 0)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 0)
	expectCount(mock, listOne, 4)
	mock.ExpectExec(q(shiftBounded)).WithArgs(-1, listOne, 1, 2).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q(placeCard)).WithArgs(listOne, 2, cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, moved, err := s.MoveCard(context.Background(), cardID, listOne, 2)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 2, c.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveCardLeft(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 3)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 3)
	expectCount(mock, listOne, 4)
	mock.ExpectExec(q(shiftBounded)).WithArgs(1, listOne, 1, 2).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q(placeCard)).WithArgs(listOne, 1, cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, moved, err := s.MoveCard(context.Background(), cardID, listOne, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveCardAcrossLocksInOrder(t *testing.T) {
	s, mock := newMockStore(t)

	// the card sits in the higher id; locks still go lowest first
	mock.ExpectBegin()
	expectCardRead(mock, listTwo, 0)
	expectLock(mock, "lists", listOne)
	expectLock(mock, "lists", listTwo)
	expectCardForUpdate(mock, listTwo, 0)
	expectCount(mock, listOne, 2)
	mock.ExpectExec(q(shiftOpen)).WithArgs(-1, listTwo, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(shiftOpen)).WithArgs(1, listOne, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(placeCard)).WithArgs(listOne, 1, cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, moved, err := s.MoveCard(context.Background(), cardID, listOne, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, listOne, c.ListID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveCardRetriesWhenListChanges(t *testing.T) {
	s, mock := newMockStore(t)

	// a concurrent move lands the card in listTwo before its row is locked
	mock.ExpectBegin()
	expectCardRead(mock, listOne, 0)
	expectLock(mock, "lists", listOne)
	expectLock(mock, "lists", listTwo)
	expectCardForUpdate(mock, listTwo, 0)
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectCardRead(mock, listTwo, 0)
	expectLock(mock, "lists", listTwo)
	expectCardForUpdate(mock, listTwo, 0)
	expectCount(mock, listTwo, 3)
	mock.ExpectExec(q(shiftBounded)).WithArgs(-1, listTwo, 1, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(placeCard)).WithArgs(listTwo, 1, cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, moved, err := s.MoveCard(context.Background(), cardID, listTwo, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, listTwo, c.ListID)
	assert.Equal(t, 1, c.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteCardGivesUpAfterRepeatedMoves(t *testing.T) {
	s, mock := newMockStore(t)

	for range lockAttempts {
		mock.ExpectBegin()
		expectCardRead(mock, listOne, 0)
		expectLock(mock, "lists", listOne)
		expectCardForUpdate(mock, listTwo, 0)
		mock.ExpectRollback()
	}

	_, err := s.DeleteCard(context.Background(), cardID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveCardAppendSkipsTargetShift(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 1)
	expectLock(mock, "lists", listOne)
	expectLock(mock, "lists", listTwo)
	expectCardForUpdate(mock, listOne, 1)
	expectCount(mock, listTwo, 2)
	mock.ExpectExec(q(shiftOpen)).WithArgs(-1, listOne, 2).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(placeCard)).WithArgs(listTwo, 2, cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, _, err := s.MoveCard(context.Background(), cardID, listTwo, 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreNoopMoveWritesNothing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 1)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 1)
	expectCount(mock, listOne, 3)
	mock.ExpectCommit()

	_, moved, err := s.MoveCard(context.Background(), cardID, listOne, 1)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveOutOfRangeRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 0)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 0)
	expectCount(mock, listOne, 4)
	mock.ExpectRollback()

	_, _, err := s.MoveCard(context.Background(), cardID, listOne, 4)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveToMissingListRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 0)
	expectLock(mock, "lists", listOne)
	mock.ExpectQuery(q(`select id from lists where id=$1 for update`)).
		WithArgs(listTwo).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := s.MoveCard(context.Background(), cardID, listTwo, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteCardCompacts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 1)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 1)
	mock.ExpectExec(q(`delete from cards where id=$1`)).WithArgs(cardID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(shiftOpen)).WithArgs(-1, listOne, 2).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	c, err := s.DeleteCard(context.Background(), cardID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteMissingCard(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("^" + q(selectCard) + "$").
		WithArgs(cardID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.DeleteCard(context.Background(), cardID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateCardAtTail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLock(mock, "lists", listOne)
	expectCount(mock, listOne, 3)
	mock.ExpectQuery(q(`insert into cards(list_id, title, description, pos) values($1,$2,$3,$4) returning id, list_id, title, description, pos, created_at`)).
		WithArgs(listOne, "card", "", 3).
		WillReturnRows(cardRow(cardID, listOne, 3))
	mock.ExpectCommit()

	c, err := s.CreateCard(context.Background(), listOne, "card", "")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Position)
	assert.Equal(t, cardID, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMoveBoardWithinOwner(t *testing.T) {
	s, mock := newMockStore(t)
	boardID, owner := uuid.New(), uuid.New()

	selectBoard := `select id, owner_id, title, description, pos, created_at from boards where id=$1`
	boardRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "owner_id", "title", "description", "pos", "created_at"}).
			AddRow(boardID.String(), owner.String(), "b", "", int64(2), time.Now())
	}

	mock.ExpectBegin()
	mock.ExpectQuery("^" + q(selectBoard) + "$").WithArgs(boardID).WillReturnRows(boardRow())
	expectLock(mock, "users", owner)
	mock.ExpectQuery(q(selectBoard + ` for update`)).WithArgs(boardID).WillReturnRows(boardRow())
	mock.ExpectQuery(q(`select count(*) from boards where owner_id=$1`)).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectExec(q(`update boards set pos = pos + $1 where owner_id=$2 and pos between $3 and $4`)).
		WithArgs(1, owner, 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q(`update boards set owner_id=$1, pos=$2 where id=$3`)).
		WithArgs(owner, 0, boardID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, moved, err := s.MoveBoard(context.Background(), boardID, 0)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 0, b.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q(`insert into users(email, password_hash, name) values($1,$2,$3) returning id, email, name, created_at`)).
		WithArgs("ann@example.com", "hash", "Ann").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateUser(context.Background(), "ann@example.com", "hash", "Ann")
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCommitFailureSurfaces(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectCardRead(mock, listOne, 1)
	expectLock(mock, "lists", listOne)
	expectCardForUpdate(mock, listOne, 1)
	expectCount(mock, listOne, 3)
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "23505"})

	_, _, err := s.MoveCard(context.Background(), cardID, listOne, 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}
