package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is everything the HTTP layer and the owner resolver need from
// persistence. Store (Postgres) and MemStore implement it.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, email, passwordHash, name string) (User, error)
	UserCredsByEmail(ctx context.Context, email string) (User, string, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) (User, error)

	BoardsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Board, error)
	GetBoard(ctx context.Context, id uuid.UUID) (Board, error)
	CreateBoard(ctx context.Context, ownerID uuid.UUID, title, description string) (Board, error)
	UpdateBoard(ctx context.Context, id uuid.UUID, p Patch) (Board, error)
	DeleteBoard(ctx context.Context, id uuid.UUID) (Board, error)
	MoveBoard(ctx context.Context, id uuid.UUID, newPos int) (Board, bool, error)

	ListsByBoard(ctx context.Context, boardID uuid.UUID) ([]List, error)
	GetList(ctx context.Context, id uuid.UUID) (List, error)
	CreateList(ctx context.Context, boardID uuid.UUID, title string) (List, error)
	UpdateList(ctx context.Context, id uuid.UUID, p Patch) (List, error)
	DeleteList(ctx context.Context, id uuid.UUID) (List, error)
	MoveList(ctx context.Context, id, targetBoardID uuid.UUID, newPos int) (List, bool, error)

	CardsByList(ctx context.Context, listID uuid.UUID) ([]Card, error)
	CardsByBoard(ctx context.Context, boardID uuid.UUID) ([]Card, error)
	GetCard(ctx context.Context, id uuid.UUID) (Card, error)
	CreateCard(ctx context.Context, listID uuid.UUID, title, description string) (Card, error)
	UpdateCard(ctx context.Context, id uuid.UUID, p Patch) (Card, error)
	DeleteCard(ctx context.Context, id uuid.UUID) (Card, error)
	MoveCard(ctx context.Context, id, targetListID uuid.UUID, newPos int) (Card, bool, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// inTx runs fn in a transaction. Multi-row reorders go through here so that
// readers never observe a container with a gap or a duplicate. Containers are
// always locked before any of their children, so concurrent writers queue on
// the parent row instead of meeting each other inside a range update.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// errParentMoved reports that an item changed container between the unlocked
// read of its parent and its own row lock.
var errParentMoved = errors.New("parent changed while locking")

const lockAttempts = 3

// inLockedTx is inTx for operations that lock a parent before its child. An
// attempt that loses a race with a concurrent move is rolled back and rerun.
func (s *Store) inLockedTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for range lockAttempts {
		if err = s.inTx(ctx, fn); !errors.Is(err, errParentMoved) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, err)
}

// lockRows takes row locks on the given containers in a stable order and
// fails with ErrNotFound if one is missing.
func lockRows(ctx context.Context, q queryer, table string, ids ...uuid.UUID) error {
	ids = slices.Clone(ids)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)
	for _, id := range ids {
		var got uuid.UUID
		err := q.QueryRowContext(ctx, `select id from `+table+` where id=$1 for update`, id).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock %s: %w", table, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// order binds one ordered table to its parent column. Names are constants,
// never user input.
type order struct {
	table  string
	parent string
}

var (
	boardOrder = order{table: "boards", parent: "owner_id"}
	listOrder  = order{table: "lists", parent: "board_id"}
	cardOrder  = order{table: "cards", parent: "list_id"}
)

func (o order) in(q queryer) sqlSiblings { return sqlSiblings{q: q, o: o} }

type sqlSiblings struct {
	q queryer
	o order
}

func (s sqlSiblings) container() string { return s.o.table }

func (s sqlSiblings) count(ctx context.Context, parent uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `select count(*) from `+s.o.table+` where `+s.o.parent+`=$1`, parent).Scan(&n)
	return n, err
}

func (s sqlSiblings) shift(ctx context.Context, parent uuid.UUID, sh Shift) error {
	var err error
	if sh.To < 0 {
		_, err = s.q.ExecContext(ctx,
			`update `+s.o.table+` set pos = pos + $1 where `+s.o.parent+`=$2 and pos >= $3`,
			sh.Delta, parent, sh.From)
	} else {
		_, err = s.q.ExecContext(ctx,
			`update `+s.o.table+` set pos = pos + $1 where `+s.o.parent+`=$2 and pos between $3 and $4`,
			sh.Delta, parent, sh.From, sh.To)
	}
	return err
}

func (s sqlSiblings) place(ctx context.Context, id, parent uuid.UUID, pos int) error {
	res, err := s.q.ExecContext(ctx, `update `+s.o.table+` set `+s.o.parent+`=$1, pos=$2 where id=$3`, parent, pos, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s sqlSiblings) remove(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `delete from `+s.o.table+` where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Users

const userCols = `id, email, name, created_at`

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`insert into users(email, password_hash, name) values($1,$2,$3) returning `+userCols,
		email, passwordHash, name))
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("email already registered: %w", ErrConflict)
	}
	return u, err
}

// UserCredsByEmail returns the user and its password hash.
func (s *Store) UserCredsByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`select `+userCols+`, password_hash from users where lower(email)=lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	return u, hash, err
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where id=$1`, id))
}

func (s *Store) UpdateUserName(ctx context.Context, id uuid.UUID, name string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`update users set name=$1 where id=$2 returning `+userCols, name, id))
}

// Boards

const boardCols = `id, owner_id, title, description, pos, created_at`

func scanBoard(row rowScanner) (Board, error) {
	var b Board
	err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Description, &b.Position, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	return b, err
}

func getBoard(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (Board, error) {
	query := `select ` + boardCols + ` from boards where id=$1`
	if forUpdate {
		query += ` for update`
	}
	return scanBoard(q.QueryRowContext(ctx, query, id))
}

// lockBoard locks the owner's row, then the board's.
func lockBoard(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Board, error) {
	cur, err := getBoard(ctx, tx, id, false)
	if err != nil {
		return Board{}, err
	}
	if err := lockRows(ctx, tx, "users", cur.OwnerID); err != nil {
		return Board{}, err
	}
	b, err := getBoard(ctx, tx, id, true)
	if err != nil {
		return Board{}, err
	}
	if b.OwnerID != cur.OwnerID {
		return Board{}, errParentMoved
	}
	return b, nil
}

func (s *Store) BoardsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+boardCols+` from boards where owner_id=$1 order by pos, created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBoard(ctx context.Context, id uuid.UUID) (Board, error) {
	return getBoard(ctx, s.db, id, false)
}

func (s *Store) CreateBoard(ctx context.Context, ownerID uuid.UUID, title, description string) (Board, error) {
	var b Board
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockRows(ctx, tx, "users", ownerID); err != nil {
			return err
		}
		pos, err := nextPosition(ctx, boardOrder.in(tx), ownerID)
		if err != nil {
			return err
		}
		b, err = scanBoard(tx.QueryRowContext(ctx,
			`insert into boards(owner_id, title, description, pos) values($1,$2,$3,$4) returning `+boardCols,
			ownerID, title, description, pos))
		return err
	})
	return b, err
}

func (s *Store) UpdateBoard(ctx context.Context, id uuid.UUID, p Patch) (Board, error) {
	return scanBoard(s.db.QueryRowContext(ctx,
		`update boards set title=coalesce($1, title), description=coalesce($2, description)
		 where id=$3 returning `+boardCols,
		p.Title, p.Description, id))
}

// DeleteBoard removes the board with its lists and cards (foreign key
// cascade) and compacts the owner's remaining boards.
func (s *Store) DeleteBoard(ctx context.Context, id uuid.UUID) (Board, error) {
	var b Board
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if b, err = lockBoard(ctx, tx, id); err != nil {
			return err
		}
		return removeItem(ctx, boardOrder.in(tx), b.slot())
	})
	return b, err
}

func (s *Store) MoveBoard(ctx context.Context, id uuid.UUID, newPos int) (Board, bool, error) {
	var (
		b     Board
		moved bool
	)
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if b, err = lockBoard(ctx, tx, id); err != nil {
			return err
		}
		if moved, err = moveItem(ctx, boardOrder.in(tx), b.slot(), b.OwnerID, newPos); err != nil {
			return err
		}
		b.Position = newPos
		return nil
	})
	return b, moved, err
}

// Lists

const listCols = `id, board_id, title, pos, created_at`

func scanList(row rowScanner) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return List{}, ErrNotFound
	}
	return l, err
}

func getList(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (List, error) {
	query := `select ` + listCols + ` from lists where id=$1`
	if forUpdate {
		query += ` for update`
	}
	return scanList(q.QueryRowContext(ctx, query, id))
}

// lockList locks the list's board and any extra boards in id order, then the
// list row itself.
func lockList(ctx context.Context, tx *sql.Tx, id uuid.UUID, boards ...uuid.UUID) (List, error) {
	cur, err := getList(ctx, tx, id, false)
	if err != nil {
		return List{}, err
	}
	if err := lockRows(ctx, tx, "boards", append(boards, cur.BoardID)...); err != nil {
		return List{}, err
	}
	l, err := getList(ctx, tx, id, true)
	if err != nil {
		return List{}, err
	}
	if l.BoardID != cur.BoardID {
		return List{}, errParentMoved
	}
	return l, nil
}

func (s *Store) ListsByBoard(ctx context.Context, boardID uuid.UUID) ([]List, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+listCols+` from lists where board_id=$1 order by pos`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetList(ctx context.Context, id uuid.UUID) (List, error) {
	return getList(ctx, s.db, id, false)
}

func (s *Store) CreateList(ctx context.Context, boardID uuid.UUID, title string) (List, error) {
	var l List
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockRows(ctx, tx, "boards", boardID); err != nil {
			return err
		}
		pos, err := nextPosition(ctx, listOrder.in(tx), boardID)
		if err != nil {
			return err
		}
		l, err = scanList(tx.QueryRowContext(ctx,
			`insert into lists(board_id, title, pos) values($1,$2,$3) returning `+listCols,
			boardID, title, pos))
		return err
	})
	return l, err
}

func (s *Store) UpdateList(ctx context.Context, id uuid.UUID, p Patch) (List, error) {
	return scanList(s.db.QueryRowContext(ctx,
		`update lists set title=coalesce($1, title) where id=$2 returning `+listCols, p.Title, id))
}

func (s *Store) DeleteList(ctx context.Context, id uuid.UUID) (List, error) {
	var l List
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if l, err = lockList(ctx, tx, id); err != nil {
			return err
		}
		return removeItem(ctx, listOrder.in(tx), l.slot())
	})
	return l, err
}

// MoveList reorders a list inside its board or moves it, with its cards, to
// another board. Scope checks on the target board belong to the caller.
func (s *Store) MoveList(ctx context.Context, id, targetBoardID uuid.UUID, newPos int) (List, bool, error) {
	var (
		l     List
		moved bool
	)
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if l, err = lockList(ctx, tx, id, targetBoardID); err != nil {
			return err
		}
		if moved, err = moveItem(ctx, listOrder.in(tx), l.slot(), targetBoardID, newPos); err != nil {
			return err
		}
		l.BoardID, l.Position = targetBoardID, newPos
		return nil
	})
	return l, moved, err
}

// Cards

const cardCols = `id, list_id, title, description, pos, created_at`

func scanCard(row rowScanner) (Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	return c, err
}

func getCard(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (Card, error) {
	query := `select ` + cardCols + ` from cards where id=$1`
	if forUpdate {
		query += ` for update`
	}
	return scanCard(q.QueryRowContext(ctx, query, id))
}

// lockCard locks the card's list and any extra lists in id order, then the
// card row itself.
func lockCard(ctx context.Context, tx *sql.Tx, id uuid.UUID, lists ...uuid.UUID) (Card, error) {
	cur, err := getCard(ctx, tx, id, false)
	if err != nil {
		return Card{}, err
	}
	if err := lockRows(ctx, tx, "lists", append(lists, cur.ListID)...); err != nil {
		return Card{}, err
	}
	c, err := getCard(ctx, tx, id, true)
	if err != nil {
		return Card{}, err
	}
	if c.ListID != cur.ListID {
		return Card{}, errParentMoved
	}
	return c, nil
}

func (s *Store) queryCards(ctx context.Context, query string, args ...any) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CardsByList(ctx context.Context, listID uuid.UUID) ([]Card, error) {
	return s.queryCards(ctx, `select `+cardCols+` from cards where list_id=$1 order by pos`, listID)
}

// CardsByBoard returns every card of the board ordered by list, then position.
func (s *Store) CardsByBoard(ctx context.Context, boardID uuid.UUID) ([]Card, error) {
	return s.queryCards(ctx,
		`select c.id, c.list_id, c.title, c.description, c.pos, c.created_at
		 from cards c join lists l on l.id=c.list_id
		 where l.board_id=$1 order by l.pos, c.pos`, boardID)
}

func (s *Store) GetCard(ctx context.Context, id uuid.UUID) (Card, error) {
	return getCard(ctx, s.db, id, false)
}

func (s *Store) CreateCard(ctx context.Context, listID uuid.UUID, title, description string) (Card, error) {
	var c Card
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockRows(ctx, tx, "lists", listID); err != nil {
			return err
		}
		pos, err := nextPosition(ctx, cardOrder.in(tx), listID)
		if err != nil {
			return err
		}
		c, err = scanCard(tx.QueryRowContext(ctx,
			`insert into cards(list_id, title, description, pos) values($1,$2,$3,$4) returning `+cardCols,
			listID, title, description, pos))
		return err
	})
	return c, err
}

func (s *Store) UpdateCard(ctx context.Context, id uuid.UUID, p Patch) (Card, error) {
	return scanCard(s.db.QueryRowContext(ctx,
		`update cards set title=coalesce($1, title), description=coalesce($2, description)
		 where id=$3 returning `+cardCols,
		p.Title, p.Description, id))
}

func (s *Store) DeleteCard(ctx context.Context, id uuid.UUID) (Card, error) {
	var c Card
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = lockCard(ctx, tx, id); err != nil {
			return err
		}
		return removeItem(ctx, cardOrder.in(tx), c.slot())
	})
	return c, err
}

// MoveCard moves a card within its list or into targetListID. Callers check
// that the target list sits on the same board.
func (s *Store) MoveCard(ctx context.Context, id, targetListID uuid.UUID, newPos int) (Card, bool, error) {
	var (
		c     Card
		moved bool
	)
	err := s.inLockedTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = lockCard(ctx, tx, id, targetListID); err != nil {
			return err
		}
		if moved, err = moveItem(ctx, cardOrder.in(tx), c.slot(), targetListID, newPos); err != nil {
			return err
		}
		c.ListID, c.Position = targetListID, newPos
		return nil
	})
	return c, moved, err
}

// gen_random_uuid is built in from Postgres 13. Position uniqueness is checked
// at commit: range shifts pass through transient duplicates inside their
// transaction.
const schema = `
create table if not exists users(
    id uuid primary key default gen_random_uuid(),
    email text not null,
    password_hash text not null,
    name text not null default '',
    created_at timestamptz not null default now()
);
create unique index if not exists users_email_lower_idx on users(lower(email));

create table if not exists boards(
    id uuid primary key default gen_random_uuid(),
    owner_id uuid not null references users(id) on delete cascade,
    title text not null check (length(title) > 0),
    description text not null default '',
    pos integer not null check (pos >= 0),
    created_at timestamptz not null default now()
);
create index if not exists boards_owner_idx on boards(owner_id);

create table if not exists lists(
    id uuid primary key default gen_random_uuid(),
    board_id uuid not null references boards(id) on delete cascade,
    title text not null check (length(title) > 0),
    pos integer not null check (pos >= 0),
    created_at timestamptz not null default now()
);
create index if not exists lists_board_idx on lists(board_id);

create table if not exists cards(
    id uuid primary key default gen_random_uuid(),
    list_id uuid not null references lists(id) on delete cascade,
    title text not null check (length(title) > 0),
    description text not null default '',
    pos integer not null check (pos >= 0),
    created_at timestamptz not null default now()
);
create index if not exists cards_list_idx on cards(list_id);

do $$ begin
	begin
		alter table boards add constraint boards_owner_pos_key unique (owner_id, pos) deferrable initially deferred;
	exception when duplicate_object or duplicate_table then null; end;
	begin
		alter table lists add constraint lists_board_pos_key unique (board_id, pos) deferrable initially deferred;
	exception when duplicate_object or duplicate_table then null; end;
	begin
		alter table cards add constraint cards_list_pos_key unique (list_id, pos) deferrable initially deferred;
	exception when duplicate_object or duplicate_table then null; end;
end $$;
`
