package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, repo *Repository, order *domain.Order, eventType string) int64 {
	event := &domain.OutboxEvent{
		AggregateID: order.ID,
		EventType:   eventType,
		Payload:     []byte(`{"kind":"` + eventType + `"}`),
	}
	err := repo.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.EnqueueEvent(ctx, event)
	})
	require.NoError(t, err)
	require.NotZero(t, event.ID)
	return event.ID
}

func TestOutbox_ClaimLeasesOldestFirst(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := createTestOrder(t, repo, seedCart(t, repo, "user@example.com", 10, 2), nil)
	first := enqueue(t, repo, order, "ORDER_CONFIRMATION")
	second := enqueue(t, repo, order, "STATUS_UPDATE")
	third := enqueue(t, repo, order, "SHIPPING")

	claimed, err := repo.ClaimUnprocessedEvents(ctx, 2, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first, claimed[0].ID)
	assert.Equal(t, second, claimed[1].ID)
	assert.Equal(t, order.ID, claimed[0].AggregateID)
	assert.JSONEq(t, `{"kind":"ORDER_CONFIRMATION"}`, string(claimed[0].Payload))

	// leased events are not handed out again
	claimed, err = repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, third, claimed[0].ID)
}

func TestOutbox_ExpiredLeaseIsClaimedAgain(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := createTestOrder(t, repo, seedCart(t, repo, "user@example.com", 10, 2), nil)
	id := enqueue(t, repo, order, "ORDER_CONFIRMATION")

	claimed, err := repo.ClaimUnprocessedEvents(ctx, 10, 50*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	time.Sleep(100 * time.Millisecond)

	claimed, err = repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
}

func TestOutbox_MarkProcessedAndFailed(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := createTestOrder(t, repo, seedCart(t, repo, "user@example.com", 10, 2), nil)
	done := enqueue(t, repo, order, "ORDER_CONFIRMATION")
	failed := enqueue(t, repo, order, "STATUS_UPDATE")

	_, err := repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 2)
	require.NoError(t, err)
	require.NoError(t, repo.MarkEventAsProcessed(ctx, done))
	require.NoError(t, repo.MarkEventFailed(ctx, failed, "broker down"))

	// a failed event is released for the next claim with its attempt counted
	claimed, err := repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, failed, claimed[0].ID)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, "broker down", claimed[0].LastError)

	// out of attempts
	require.NoError(t, repo.MarkEventFailed(ctx, failed, "broker down"))
	claimed, err = repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 2)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	var processedAt sql.NullTime
	require.NoError(t, repo.db.GetContext(ctx, &processedAt,
		`SELECT processed_at FROM notification_outbox WHERE id = $1`, done))
	assert.True(t, processedAt.Valid)
}

func TestOutbox_RolledBackTransactionLeavesNoEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := createTestOrder(t, repo, seedCart(t, repo, "user@example.com", 10, 2), nil)
	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.EnqueueEvent(ctx, &domain.OutboxEvent{
			AggregateID: order.ID,
			EventType:   "STATUS_UPDATE",
			Payload:     []byte(`{}`),
		}); err != nil {
			return err
		}
		return errors.New("status update rejected")
	})
	require.Error(t, err)

	claimed, err := repo.ClaimUnprocessedEvents(ctx, 10, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestOutbox_ConcurrentClaimsDoNotOverlap(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := createTestOrder(t, repo, seedCart(t, repo, "user@example.com", 10, 2), nil)
	for i := 0; i < 20; i++ {
		enqueue(t, repo, order, "STATUS_UPDATE")
	}

	type result struct {
		events []domain.OutboxEvent
		err    error
	}
	results := make(chan result, 4)
	for i := 0; i < 4; i++ {
		go func() {
			events, err := repo.ClaimUnprocessedEvents(ctx, 5, time.Minute, 10)
			results <- result{events, err}
		}()
	}

	seen := map[int64]bool{}
	for i := 0; i < 4; i++ {
		r := <-results
		require.NoError(t, r.err)
		for _, e := range r.events {
			assert.False(t, seen[e.ID], "event %d claimed twice", e.ID)
			seen[e.ID] = true
		}
	}
	assert.Len(t, seen, 20)
}
