package repository

import (
	"context"
	"time"

	"todo-system/internal/domain/outbox"

	"github.com/google/uuid"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, tx DBTX, event *outbox.OutboxEvent) error {
	execDB := tx
	if execDB == nil {
		execDB = r.db
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = outbox.StatusPending
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = event.CreatedAt

	_, err := execDB.ExecContext(ctx, `
        INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		event.Payload,
		string(event.Status),
		event.RetryCount,
		event.Error,
		event.CreatedAt,
		event.UpdatedAt,
		event.ProcessedAt,
	)
	return err
}

func (r *outboxRepository) GetPending(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at
        FROM outbox_events
        WHERE status = $1 AND retry_count < $2
        ORDER BY created_at ASC
        LIMIT $3
    `, string(outbox.StatusPending), maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.OutboxEvent
	for rows.Next() {
		var (
			event  outbox.OutboxEvent
			status string
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&status,
			&event.RetryCount,
			&event.Error,
			&event.CreatedAt,
			&event.UpdatedAt,
			&event.ProcessedAt,
		); err != nil {
			return nil, err
		}
		event.Status = outbox.Status(status)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkProcessing claims a pending event. It reports false when another
// processor moved the row out of pending first.
func (r *outboxRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4
    `, string(outbox.StatusProcessing), time.Now().UTC(), id, string(outbox.StatusPending))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RequeueStale returns events claimed before cutoff to pending so a crashed
// or failed completion does not strand them in processing.
func (r *outboxRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE status = $3 AND updated_at < $4
    `, string(outbox.StatusPending), time.Now().UTC(), string(outbox.StatusProcessing), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, processed_at = $2, updated_at = $3
        WHERE id = $4
    `, string(outbox.StatusCompleted), now, now, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, error = $2, updated_at = $3
        WHERE id = $4
    `, string(outbox.StatusFailed), errorMsg, time.Now().UTC(), id)
	return err
}

// Retry puts the event back to pending with one more attempt counted.
func (r *outboxRepository) Retry(ctx context.Context, id uuid.UUID, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE outbox_events
        SET status = $1, error = $2, retry_count = retry_count + 1, updated_at = $3
        WHERE id = $4
    `, string(outbox.StatusPending), errorMsg, time.Now().UTC(), id)
	return err
}
