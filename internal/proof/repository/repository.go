package repository

import (
	"context"
	"errors"
	"fmt"

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

const proofColumns = `id, lead_id, channel, type, provider, provider_message_id, occurred_at, created_at`

func scanProof(row pgx.Row) (ProofEvent, error) {
	var p ProofEvent
	err := row.Scan(&p.ID, &p.LeadID, &p.Channel, &p.Type, &p.Provider,
		&p.ProviderMessageID, &p.OccurredAt, &p.CreatedAt)
	return p, err
}

func (r *PostgresRepository) Insert(ctx context.Context, params InsertParams) (ProofEvent, bool, error) {
	insert := `
		INSERT INTO proof_events (lead_id, channel, type, provider, provider_message_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT proof_events_dedup DO NOTHING
		RETURNING ` + proofColumns

	event, err := scanProof(r.q.QueryRow(ctx, insert,
		params.LeadID, params.Channel, params.Type, params.Provider, params.ProviderMessageID, params.OccurredAt))
	if err == nil {
		return event, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ProofEvent{}, false, fmt.Errorf("insert proof event: %w", err)
	}

	// Duplicate delivery; hand back the original.
	query := `
		SELECT ` + proofColumns + `
		FROM proof_events
		WHERE lead_id = $1 AND provider_message_id = $2 AND type = $3 AND channel = $4`
	event, err = scanProof(r.q.QueryRow(ctx, query,
		params.LeadID, params.ProviderMessageID, params.Type, params.Channel))
	if err != nil {
		return ProofEvent{}, false, fmt.Errorf("get existing proof event: %w", err)
	}
	return event, false, nil
}

func (r *PostgresRepository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]ProofEvent, error) {
	query := `
		SELECT ` + proofColumns + `
		FROM proof_events
		WHERE lead_id = $1
		ORDER BY occurred_at ASC, created_at ASC`

	rows, err := r.q.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("list proof events: %w", err)
	}
	defer rows.Close()

	var events []ProofEvent
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proof event: %w", err)
		}
		events = append(events, p)
	}
	return events, rows.Err()
}
