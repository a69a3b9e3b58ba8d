package repository

import (
	"context"
	"errors"
	"fmt"

	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	q db.Querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{q: pool}
}

func (r *PostgresRepository) WithQuerier(q db.Querier) Repository {
	return &PostgresRepository{q: q}
}

const leadColumns = `id, workspace_id, name, phone, email, source, status, is_inbox, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.WorkspaceID, &l.Name, &l.Phone, &l.Email, &l.Source,
		&l.Status, &l.IsInbox, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *PostgresRepository) Create(ctx context.Context, params CreateParams) (Lead, error) {
	query := `
		INSERT INTO leads (workspace_id, name, phone, email, source, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + leadColumns

	lead, err := scanLead(r.q.QueryRow(ctx, query,
		params.WorkspaceID, params.Name, params.Phone, params.Email, params.Source, StatusOpen))
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound("lead not found")
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) FindOpenByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE workspace_id = $1
		  AND phone = $2
		  AND is_inbox = FALSE
		  AND status != ALL($3)
		ORDER BY created_at DESC
		LIMIT 1`

	lead, err := scanLead(r.q.QueryRow(ctx, query, workspaceID, phone, ClosedStatuses))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound("no open lead for phone")
		}
		return Lead{}, fmt.Errorf("find lead by phone: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) EnsureInboxLead(ctx context.Context, workspaceID uuid.UUID) (Lead, error) {
	insert := `
		INSERT INTO leads (workspace_id, name, phone, email, source, status, is_inbox)
		VALUES ($1, 'Inbox', '', '', 'system', $2, TRUE)
		ON CONFLICT (workspace_id) WHERE is_inbox DO NOTHING`

	if _, err := r.q.Exec(ctx, insert, workspaceID, StatusOpen); err != nil {
		return Lead{}, fmt.Errorf("ensure inbox lead: %w", err)
	}

	query := `SELECT ` + leadColumns + ` FROM leads WHERE workspace_id = $1 AND is_inbox = TRUE`
	lead, err := scanLead(r.q.QueryRow(ctx, query, workspaceID))
	if err != nil {
		return Lead{}, fmt.Errorf("get inbox lead: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) EnsureWorkspace(ctx context.Context, workspaceID uuid.UUID, name string) error {
	query := `
		INSERT INTO workspaces (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.q.Exec(ctx, query, workspaceID, name); err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	var hasHistory bool
	check := `
		SELECT EXISTS (SELECT 1 FROM event_log WHERE lead_id = $1)
		    OR EXISTS (SELECT 1 FROM proof_events WHERE lead_id = $1)`
	if err := r.q.QueryRow(ctx, check, id).Scan(&hasHistory); err != nil {
		return fmt.Errorf("check lead history: %w", err)
	}
	if hasHistory {
		return apperr.Conflict("lead has history and cannot be deleted")
	}

	tag, err := r.q.Exec(ctx,
		`DELETE FROM leads WHERE id = $1 AND workspace_id = $2 AND is_inbox = FALSE`, id, workspaceID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}
