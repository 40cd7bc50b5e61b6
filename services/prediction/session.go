package prediction

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

// Session is a single-use credential binding a trunkline + model selection to
// a later execution. ConsumedAt nil means the session is still pending.
type Session struct {
	ID         uuid.UUID  `db:"id"`
	TlineID    string     `db:"tline_id"`
	ModelID    string     `db:"model_id"`
	Token      string     `db:"token"`
	UserID     uuid.UUID  `db:"user_id"`
	CreatedAt  time.Time  `db:"created_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Sessions stores prediction sessions.
type Sessions struct {
	Pool *pgxpool.Pool
}

// Create inserts a pending session row for the given token.
func (s *Sessions) Create(ctx context.Context, tlineID, modelID, token string, userID uuid.UUID) (Session, error) {
	var sess Session
	query := `
        INSERT INTO prediction_sessions (id, tline_id, model_id, token, user_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING *
    `
	if err := db.Get(ctx, s.Pool, &sess, query, uuid.New(), tlineID, modelID, token, userID, time.Now().UTC()); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetByToken fetches a session by its token.
func (s *Sessions) GetByToken(ctx context.Context, token string) (Session, error) {
	var sess Session
	query := `SELECT * FROM prediction_sessions WHERE token = $1`
	if err := db.Get(ctx, s.Pool, &sess, query, token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Consume marks the session consumed with a compare-and-set on the pending
// state, so a token survives exactly one successful execution. Concurrent
// winners race on the conditional update; the loser sees ErrTokenConsumed.
func (s *Sessions) Consume(ctx context.Context, token string, at time.Time) error {
	tag, err := db.Exec(ctx, s.Pool, `
        UPDATE prediction_sessions
        SET consumed_at = $2
        WHERE token = $1 AND consumed_at IS NULL
    `, token, at)
	if err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := s.GetByToken(ctx, token); err != nil {
		return err
	}
	return ErrTokenConsumed
}
