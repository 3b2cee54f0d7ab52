package repository

import (
	"context"
	"database/sql"

	"github.com/pervushinanatalya-dotcom/theatre-bot/internal/model"
)

// UserRepo persists bot users. Users are keyed by the transport-assigned
// identifier, so creation is an upsert: the first interaction inserts the
// row and later interactions only refresh the display name.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Upsert creates the user when absent and refreshes the display name when
// present. CreatedAt is only set on the initial insert.
func (r *UserRepo) Upsert(ctx context.Context, id int64, displayName string) error {
	const q = `INSERT INTO users (id, display_name)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE display_name = VALUES(display_name)`
	_, err := r.db.ExecContext(ctx, q, id, displayName)
	return err
}

// Get returns the user with the given id or ErrNotFound.
func (r *UserRepo) Get(ctx context.Context, id int64) (*model.User, error) {
	const q = `SELECT id, display_name, created_at FROM users WHERE id = ?`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.DisplayName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
