package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipewatch/pkg/db"
)

// User is an operator account. Field determines which readings table the
// account sees.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	Role      string    `db:"role" json:"role"`
	FieldID   string    `db:"field_id" json:"field_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Users reads operator accounts.
type Users struct {
	Pool *pgxpool.Pool
}

// GetByLogin fetches the account for an email within a field. Accounts are
// unique per (email, field), not per email alone.
func (u *Users) GetByLogin(ctx context.Context, email, fieldID string) (User, error) {
	var user User
	query := `SELECT * FROM users WHERE email = $1 AND field_id = $2`
	if err := db.Get(ctx, u.Pool, &user, query, email, fieldID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrBadCredentials
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByID fetches an account by primary key.
func (u *Users) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	query := `SELECT * FROM users WHERE id = $1`
	if err := db.Get(ctx, u.Pool, &user, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", id, pgx.ErrNoRows)
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns the account.
func (u *Users) Login(ctx context.Context, email, password, fieldID string) (User, error) {
	user, err := u.GetByLogin(ctx, email, fieldID)
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(user.Password, password) {
		return User{}, ErrBadCredentials
	}
	return user, nil
}
