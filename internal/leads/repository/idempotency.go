package repository

import (
	"context"
	"errors"
	"fmt"

	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresIdempotencyStore struct {
	q db.Querier
}

func NewPostgresIdempotencyStore(pool *pgxpool.Pool) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{q: pool}
}

func (s *PostgresIdempotencyStore) WithQuerier(q db.Querier) IdempotencyStore {
	return &PostgresIdempotencyStore{q: q}
}

func (s *PostgresIdempotencyStore) Get(ctx context.Context, workspaceID uuid.UUID, key string) (IdempotencyRecord, bool, error) {
	query := `
		SELECT status_code, response_body, created_at
		FROM idempotency_keys
		WHERE workspace_id = $1 AND key = $2`

	var rec IdempotencyRecord
	err := s.q.QueryRow(ctx, query, workspaceID, key).Scan(&rec.StatusCode, &rec.ResponseBody, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdempotencyRecord{}, false, nil
		}
		return IdempotencyRecord{}, false, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, workspaceID uuid.UUID, key string, statusCode int, body []byte) error {
	query := `
		INSERT INTO idempotency_keys (workspace_id, key, status_code, response_body)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.q.Exec(ctx, query, workspaceID, key, statusCode, body); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("request with this idempotency key is already in flight")
		}
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}
