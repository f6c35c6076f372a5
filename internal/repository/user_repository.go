package repository

import (
	"context"
	"fmt"
	"time"
)

// UserRepository resolves users. Registration and login live elsewhere.
type UserRepository struct {
	db      DBExecutor
	timeout time.Duration
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBExecutor, timeout time.Duration) *UserRepository {
	return &UserRepository{db: db, timeout: timeout}
}

// GetUserIDByUsername returns the id of the user with the given username.
func (r *UserRepository) GetUserIDByUsername(ctx context.Context, username string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.Rebind(`SELECT id FROM users WHERE username = ?`)

	var id int64
	if err := r.db.GetContext(ctx, &id, query, username); err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", classify(err))
	}
	return id, nil
}
