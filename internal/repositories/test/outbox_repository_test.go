package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

var outboxTestConfig = outboxcfg.Config{Schema: "outreach"}

func outboxMessage(availableAt time.Time) repositories.OutboxMessage {
	return repositories.OutboxMessage{
		EventID:       uuid.New(),
		AggregateType: "video_outreach",
		AggregateID:   uuid.New(),
		EventType:     "outreach.ready",
		Payload:       []byte(`{"status":"ready"}`),
		Headers:       map[string]string{"schema_version": "v1"},
		AvailableAt:   availableAt,
	}
}

func TestOutboxRepository_Enqueue(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	repo := repositories.NewOutboxRepository(pool, discard(), outboxTestConfig)
	require.NotNil(t, repo.Shared())

	msg := outboxMessage(time.Time{})
	require.NoError(t, repo.Enqueue(ctx, nil, msg))

	var (
		eventType   string
		headers     map[string]string
		availableAt pgtype.Timestamptz
		publishedAt pgtype.Timestamptz
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_type, headers, available_at, published_at FROM outreach.outbox_events WHERE event_id = $1`,
		msg.EventID).Scan(&eventType, &headers, &availableAt, &publishedAt))
	require.Equal(t, "outreach.ready", eventType)
	require.Equal(t, "v1", headers["schema_version"])
	require.True(t, availableAt.Valid)
	require.WithinDuration(t, time.Now(), availableAt.Time, time.Minute)
	require.False(t, publishedAt.Valid)
}

func TestOutboxRepository_EnqueueFollowsTransaction(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)
	repo := repositories.NewOutboxRepository(pool, discard(), outboxTestConfig)
	tx, err := txmanager.NewManager(pool, txmanager.Config{}, txmanager.Dependencies{Logger: discard()})
	require.NoError(t, err)

	rolledBack := outboxMessage(time.Now().UTC())
	errAbort := errors.New("abort")
	err = tx.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
		require.NoError(t, repo.Enqueue(txCtx, sess, rolledBack))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	require.False(t, outboxRowExists(ctx, t, pool, rolledBack.EventID))

	committed := outboxMessage(time.Now().UTC())
	require.NoError(t, tx.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
		return repo.Enqueue(txCtx, sess, committed)
	}))
	require.True(t, outboxRowExists(ctx, t, pool, committed.EventID))
}

func TestOutboxRepository_DuplicateEventID(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewOutboxRepository(newPool(t), discard(), outboxTestConfig)

	msg := outboxMessage(time.Now().UTC())
	require.NoError(t, repo.Enqueue(ctx, nil, msg))
	require.Error(t, repo.Enqueue(ctx, nil, msg))
}

func outboxRowExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) bool {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx, `SELECT event_id FROM outreach.outbox_events WHERE event_id = $1`, eventID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	require.NoError(t, err)
	return true
}
