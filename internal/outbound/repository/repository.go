package repository

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

type PostgresRepository struct {
	q db.Querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{q: pool}
}

func (r *PostgresRepository) WithQuerier(q db.Querier) Repository {
	return &PostgresRepository{q: q}
}

const messageColumns = `id, workspace_id, lead_id, status, channel, to_phone, body, provider, provider_message_id, fail_reason, sent_at, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.WorkspaceID, &m.LeadID, &m.Status, &m.Channel, &m.ToPhone,
		&m.Body, &m.Provider, &m.ProviderMessageID, &m.FailReason, &m.SentAt, &m.CreatedAt)
	return m, err
}

func (r *PostgresRepository) Create(ctx context.Context, params CreateParams) (Message, error) {
	query := `
		INSERT INTO outbound_messages (workspace_id, lead_id, status, channel, to_phone, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns

	m, err := scanMessage(r.q.QueryRow(ctx, query,
		params.WorkspaceID, params.LeadID, StatusQueued, ChannelWhatsApp, params.ToPhone, params.Body))
	if err != nil {
		return Message{}, fmt.Errorf("create outbound message: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Message, error) {
	query := `SELECT ` + messageColumns + ` FROM outbound_messages WHERE id = $1`

	m, err := scanMessage(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, apperr.NotFound("outbound message not found")
		}
		return Message{}, fmt.Errorf("get outbound message: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) GetByProviderMessageID(ctx context.Context, provider, providerMessageID string) (Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM outbound_messages
		WHERE provider = $1 AND provider_message_id = $2`

	m, err := scanMessage(r.q.QueryRow(ctx, query, provider, providerMessageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, apperr.NotFound("outbound message not found")
		}
		return Message{}, fmt.Errorf("get outbound message by provider id: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE outbound_messages
		SET status = $2, provider = $3, provider_message_id = $4, sent_at = $5
		WHERE id = $1 AND status = $6`

	tag, err := r.q.Exec(ctx, query, id, StatusSent, provider, providerMessageID, sentAt, StatusQueued)
	if err != nil {
		return false, fmt.Errorf("mark message sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE outbound_messages
		SET status = $2, fail_reason = $3
		WHERE id = $1 AND status = $4`

	tag, err := r.q.Exec(ctx, query, id, StatusFailed, reason, StatusQueued)
	if err != nil {
		return false, fmt.Errorf("mark message failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ListQueued(ctx context.Context, limit int) ([]Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM outbound_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, StatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbound message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
