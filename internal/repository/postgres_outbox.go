package repository

import (
	"context"
	"sort"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/pkg/errors"
)

const outboxColumns = `id, aggregate_id, event_type, payload, attempts, last_error, created_at, processed_at`

func (t *pgTx) EnqueueEvent(ctx context.Context, event *domain.OutboxEvent) error {
	err := t.tx.QueryRowxContext(ctx,
		`INSERT INTO notification_outbox (aggregate_id, event_type, payload)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		event.AggregateID,
		event.EventType,
		event.Payload,
	).Scan(&event.ID, &event.CreatedAt)
	return errors.Wrap(err, "insert outbox event")
}

// ClaimUnprocessedEvents leases up to limit pending events, oldest first.
// Events leased by another poller or out of attempts are skipped. A lease
// that is neither marked processed nor failed expires after lease.
func (r *Repository) ClaimUnprocessedEvents(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := r.db.SelectContext(ctx, &events,
		`UPDATE notification_outbox
		 SET locked_until = clock_timestamp() + $2 * interval '1 millisecond'
		 WHERE id IN (
		     SELECT id FROM notification_outbox
		     WHERE processed_at IS NULL
		       AND attempts < $3
		       AND (locked_until IS NULL OR locked_until < clock_timestamp())
		     ORDER BY id
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+outboxColumns,
		limit, lease.Milliseconds(), maxAttempts)
	if err != nil {
		return nil, errors.Wrap(err, "claim outbox events")
	}
	// RETURNING does not keep the subquery order
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_outbox SET processed_at = clock_timestamp(), locked_until = NULL WHERE id = $1`, id)
	return errors.Wrap(err, "mark outbox event processed")
}

func (r *Repository) MarkEventFailed(ctx context.Context, id int64, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_outbox
		 SET attempts = attempts + 1, last_error = $2, locked_until = NULL
		 WHERE id = $1`, id, cause)
	return errors.Wrap(err, "mark outbox event failed")
}
