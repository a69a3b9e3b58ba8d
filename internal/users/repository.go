// Package users resolves workspace members, mainly for handover routing.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type User struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, workspaceID uuid.UUID, name, email, phone string) (User, error)
}

type PostgresRepository struct {
	q db.Querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{q: pool}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `
		SELECT id, workspace_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM users WHERE id = $1`

	var u User
	err := r.q.QueryRow(ctx, query, id).Scan(&u.ID, &u.WorkspaceID, &u.Name, &u.Email, &u.Phone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, workspaceID uuid.UUID, name, email, phone string) (User, error) {
	query := `
		INSERT INTO users (workspace_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, workspace_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at`

	var u User
	err := r.q.QueryRow(ctx, query, workspaceID, name, email, phone).
		Scan(&u.ID, &u.WorkspaceID, &u.Name, &u.Email, &u.Phone, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}
