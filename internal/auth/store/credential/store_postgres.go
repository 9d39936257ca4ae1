package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"thgate/internal/auth/models"
)

// PostgresStore reads users from the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (st *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := st.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

// Save inserts the user or updates the row with the same id.
func (st *PostgresStore) Save(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    password_hash = EXCLUDED.password_hash,
		    full_name = EXCLUDED.full_name
	`, user.ID, user.Email, user.PasswordHash, user.FullName)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
