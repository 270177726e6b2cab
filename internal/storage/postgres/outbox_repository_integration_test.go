package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	created, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ord1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"ord1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	fixed := domain.OutboxMessage{
		ID:            "event-fixed-id",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ord2",
		EventType:     domain.EventOrderUpdated,
		Payload:       []byte(`{"order_id":"ord2"}`),
	}
	_, err = repo.Enqueue(ctx, fixed)
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, fixed)
	require.NoError(t, err, "re-enqueue with the same id must be idempotent")

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, created.ID))
	require.NoError(t, repo.MarkFailed(ctx, fixed.ID))

	after, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, after)

	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)
}
