package controllers_test

import (
	"context"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers"

	"github.com/go-kratos/kratos/v2/metadata"
	"github.com/stretchr/testify/require"
)

func TestBaseHandlerExtractMetadata(t *testing.T) {
	md := metadata.New()
	md.Set("x-md-global-user-id", " user-123 ")
	md.Set("x-md-idempotency-key", "req-456")
	md.Set("x-md-event-id", "evt-789")
	ctx := metadata.NewServerContext(context.Background(), md)

	handler := controllers.NewBaseHandler(controllers.HandlerTimeouts{})
	meta := handler.ExtractMetadata(ctx)

	require.Equal(t, "user-123", meta.OwnerID)
	require.Equal(t, "req-456", meta.IdempotencyKey)
	require.Equal(t, "evt-789", meta.EventID)

	stored, ok := controllers.RequestMetadataFromContext(controllers.WithRequestMetadata(ctx, meta))
	require.True(t, ok)
	require.Equal(t, meta, stored)
}

func TestBaseHandlerExtractMetadataMissing(t *testing.T) {
	handler := controllers.NewBaseHandler(controllers.HandlerTimeouts{})
	meta := handler.ExtractMetadata(context.Background())
	require.True(t, meta.IsZero())

	ctx := controllers.WithRequestMetadata(context.Background(), meta)
	_, ok := controllers.RequestMetadataFromContext(ctx)
	require.False(t, ok)
}

func TestBaseHandlerWithTimeout(t *testing.T) {
	cases := []struct {
		name     string
		timeouts controllers.HandlerTimeouts
		budget   controllers.Budget
		want     time.Duration
	}{
		{name: "command", timeouts: controllers.HandlerTimeouts{Command: 200 * time.Millisecond}, budget: controllers.BudgetCommand, want: 200 * time.Millisecond},
		{name: "default follows command", timeouts: controllers.HandlerTimeouts{Command: 200 * time.Millisecond}, budget: controllers.BudgetDefault, want: 200 * time.Millisecond},
		{name: "query fallback", budget: controllers.BudgetQuery, want: 3 * time.Second},
		{name: "ingest fallback", budget: controllers.BudgetIngest, want: 2 * time.Second},
		{name: "ingest explicit", timeouts: controllers.HandlerTimeouts{Ingest: 500 * time.Millisecond}, budget: controllers.BudgetIngest, want: 500 * time.Millisecond},
		{name: "command follows default", timeouts: controllers.HandlerTimeouts{Default: 700 * time.Millisecond}, budget: controllers.BudgetCommand, want: 700 * time.Millisecond},
		{name: "unknown budget uses default", budget: controllers.Budget(42), want: 5 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := controllers.NewBaseHandler(tc.timeouts)
			ctx, cancel := handler.WithTimeout(context.Background(), tc.budget)
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			remaining := time.Until(deadline)
			require.InDelta(t, tc.want.Seconds(), remaining.Seconds(), 0.1)
		})
	}
}

func TestBaseHandlerWithTimeout_NilHandler(t *testing.T) {
	var handler *controllers.BaseHandler
	ctx, cancel := handler.WithTimeout(context.Background(), controllers.BudgetQuery)
	defer cancel()
	_, ok := ctx.Deadline()
	require.True(t, ok)
}
