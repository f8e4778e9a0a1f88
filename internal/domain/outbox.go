package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a message written in the same transaction as the change it
// describes and published after commit.
type OutboxEvent struct {
	ID          int64      `db:"id"`
	AggregateID uuid.UUID  `db:"aggregate_id"`
	EventType   string     `db:"event_type"`
	Payload     []byte     `db:"payload"`
	Attempts    int        `db:"attempts"`
	LastError   string     `db:"last_error"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}
