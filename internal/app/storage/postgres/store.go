package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/crud_service/internal/app/domain/user"
	"github.com/R3E-Network/crud_service/internal/app/domain/widget"
	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
)

// Store implements the storage interfaces backed by PostgreSQL. It holds one
// reference on the pool until Close.
type Store struct {
	pool *database.Pool
}

var _ storage.WidgetStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.CategoryStore = (*Store)(nil)
var _ storage.ProductStore = (*Store)(nil)

// New creates a Store on the provided pool.
func New(pool *database.Pool) *Store {
	return &Store{pool: pool.Retain()}
}

// Close releases the store's pool reference.
func (s *Store) Close() error {
	return s.pool.Release()
}

// PostgreSQL keeps microseconds; truncating keeps round trips exact.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// existingAfterConflict loads the row that won an ON CONFLICT race. A row that
// vanished in between is reported as transient so the caller retries.
func existingAfterConflict(ctx context.Context, tx *sqlx.Tx, dest any, op, query, id string) error {
	err := tx.GetContext(ctx, dest, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &database.Error{Op: op, Kind: database.KindTransient, Err: err}
	}
	return database.Classify(ctx, op, err)
}

func getOne(ctx context.Context, conn *sqlx.Conn, dest any, op, query string, args ...any) (bool, error) {
	err := conn.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.Classify(ctx, op, err)
	}
	return true, nil
}

func deleteByID(ctx context.Context, pool *database.Pool, op, query, id string) error {
	return pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return database.Classify(ctx, op, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// --- WidgetStore ------------------------------------------------------------

const selectWidget = `
	SELECT id, name, description, quantity, created_at, updated_at
	FROM widgets`

func (s *Store) CreateWidget(ctx context.Context, w widget.Widget) (widget.Widget, bool, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ts := now()
	w.CreatedAt = ts
	w.UpdatedAt = ts

	var (
		stored  widget.Widget
		created bool
	)
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO widgets (id, name, description, quantity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, w.ID, w.Name, w.Description, w.Quantity, w.CreatedAt, w.UpdatedAt)
		if err != nil {
			return database.Classify(ctx, "insert widget", err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			stored, created = w, true
			return nil
		}
		return existingAfterConflict(ctx, tx, &stored, "select widget", selectWidget+` WHERE id = $1`, w.ID)
	})
	if err != nil {
		return widget.Widget{}, false, err
	}
	return stored, created, nil
}

func (s *Store) GetWidget(ctx context.Context, id string) (widget.Widget, bool, error) {
	var (
		w     widget.Widget
		found bool
	)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		found, err = getOne(ctx, conn, &w, "select widget", selectWidget+` WHERE id = $1`, id)
		return err
	})
	if err != nil || !found {
		return widget.Widget{}, false, err
	}
	return w, true, nil
}

func (s *Store) ListWidgets(ctx context.Context, page storage.Page) ([]widget.Widget, error) {
	page = page.Normalize()
	result := make([]widget.Widget, 0)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.SelectContext(ctx, &result, selectWidget+`
			ORDER BY created_at, id
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
		return database.Classify(ctx, "list widgets", err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CountWidgets(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM widgets`)
		return database.Classify(ctx, "count widgets", err)
	})
	return count, err
}

func (s *Store) UpdateWidget(ctx context.Context, id string, patch widget.Patch) (widget.Widget, error) {
	var updated widget.Widget
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, selectWidget+` WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return database.Classify(ctx, "lock widget", err)
		}

		patch.Apply(&updated)
		updated.UpdatedAt = now()

		_, err := tx.ExecContext(ctx, `
			UPDATE widgets
			SET name = $2, description = $3, quantity = $4, updated_at = $5
			WHERE id = $1
		`, updated.ID, updated.Name, updated.Description, updated.Quantity, updated.UpdatedAt)
		return database.Classify(ctx, "update widget", err)
	})
	if err != nil {
		return widget.Widget{}, err
	}
	return updated, nil
}

func (s *Store) DeleteWidget(ctx context.Context, id string) error {
	return deleteByID(ctx, s.pool, "delete widget", `DELETE FROM widgets WHERE id = $1`, id)
}

// --- UserStore --------------------------------------------------------------

const selectUser = `
	SELECT id, username, email, created_at, updated_at
	FROM users`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, bool, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	ts := now()
	u.CreatedAt = ts
	u.UpdatedAt = ts

	var (
		stored  user.User
		created bool
	)
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, username, email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, u.ID, u.Username, u.Email, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return database.Classify(ctx, "insert user", err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			stored, created = u, true
			return nil
		}
		return existingAfterConflict(ctx, tx, &stored, "select user", selectUser+` WHERE id = $1`, u.ID)
	})
	if err != nil {
		return user.User{}, false, err
	}
	return stored, created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, bool, error) {
	var (
		u     user.User
		found bool
	)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		found, err = getOne(ctx, conn, &u, "select user", selectUser+` WHERE id = $1`, id)
		return err
	})
	if err != nil || !found {
		return user.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) ListUsers(ctx context.Context, page storage.Page) ([]user.User, error) {
	page = page.Normalize()
	result := make([]user.User, 0)
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		err := conn.SelectContext(ctx, &result, selectUser+`
			ORDER BY created_at, id
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
		return database.Classify(ctx, "list users", err)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch user.Patch) (user.User, error) {
	var updated user.User
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, selectUser+` WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return database.Classify(ctx, "lock user", err)
		}

		patch.Apply(&updated)
		updated.UpdatedAt = now()

		_, err := tx.ExecContext(ctx, `
			UPDATE users
			SET username = $2, email = $3, updated_at = $4
			WHERE id = $1
		`, updated.ID, updated.Username, updated.Email, updated.UpdatedAt)
		return database.Classify(ctx, "update user", err)
	})
	if err != nil {
		return user.User{}, err
	}
	return updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.pool, "delete user", `DELETE FROM users WHERE id = $1`, id)
}
