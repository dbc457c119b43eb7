package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"helvetia/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure upserts the user row. First contact creates it with the trial
// credits; later contacts refresh the username when one is given and
// never touch the remaining credits.
func (r *UserRepository) Ensure(ctx context.Context, id int64, username string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			updated_at = now()
	`, id, username)
	return err
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, free_remaining, plan_type, plan_expires_at, created_at, updated_at
		FROM users
		WHERE id=$1
	`, id).Scan(
		&u.ID,
		&u.Username,
		&u.FreeRemaining,
		&u.PlanType,
		&u.PlanExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetOrCreate returns the user, creating the row on first contact.
func (r *UserRepository) GetOrCreate(ctx context.Context, id int64, username string) (*models.User, error) {
	if err := r.Ensure(ctx, id, username); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// ConsumeCredit burns one free credit, never going below zero.
func (r *UserRepository) ConsumeCredit(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE users
		SET free_remaining = GREATEST(free_remaining - 1, 0),
		    updated_at = now()
		WHERE id=$1
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ActivatePlan writes the purchased plan onto the user. An empty
// planType clears any plan.
func (r *UserRepository) ActivatePlan(ctx context.Context, id int64, planType string, expiresAt *time.Time) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE users
		SET plan_type=$2,
		    plan_expires_at=$3,
		    updated_at=now()
		WHERE id=$1
	`, id, planType, expiresAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
