package outboxevents_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func sampleOutreach() *po.VideoOutreach {
	landing := "https://watch.example/v/tok"
	return &po.VideoOutreach{
		VideoID:    uuid.New(),
		OwnerID:    uuid.New(),
		Recipient:  po.Recipient{PersonID: uuid.New(), Name: "Dana"},
		Title:      "Quick idea",
		Status:     po.OutreachStatusViewed,
		LandingURL: &landing,
		Version:    7,
	}
}

func TestNewStatusChangedEvent_Envelope(t *testing.T) {
	outreach := sampleOutreach()
	eventType := po.EventPageViewed
	occurredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	event, err := outboxevents.NewStatusChangedEvent(outreach, po.OutreachStatusSent, outboxevents.CauseEvent, &eventType, uuid.New(), occurredAt)
	require.NoError(t, err)
	require.Equal(t, outboxevents.KindStatusChanged, event.Kind)
	require.Equal(t, time.UTC, event.OccurredAt.Location())

	raw, err := outboxevents.Marshal(event)
	require.NoError(t, err)

	var decoded struct {
		EventType     string `json:"event_type"`
		AggregateType string `json:"aggregate_type"`
		Version       int64  `json:"version"`
		Payload       struct {
			From      string `json:"from"`
			To        string `json:"to"`
			Cause     string `json:"cause"`
			EventType string `json:"event_type"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "outreach.status_changed", decoded.EventType)
	require.Equal(t, outboxevents.AggregateTypeOutreach, decoded.AggregateType)
	require.Equal(t, int64(7), decoded.Version)
	require.Equal(t, "sent", decoded.Payload.From)
	require.Equal(t, "viewed", decoded.Payload.To)
	require.Equal(t, "event", decoded.Payload.Cause)
	require.Equal(t, "page_viewed", decoded.Payload.EventType)
}

func TestEventBuilders_InputChecks(t *testing.T) {
	_, err := outboxevents.NewOutreachCreatedEvent(nil, uuid.New(), time.Now())
	require.ErrorIs(t, err, outboxevents.ErrNilOutreach)

	_, err = outboxevents.NewOutreachReadyEvent(sampleOutreach(), uuid.Nil, time.Now())
	require.ErrorIs(t, err, outboxevents.ErrInvalidEventID)

	_, err = outboxevents.NewPipelineFailedEvent(sampleOutreach(), uuid.New(), time.Now())
	require.Error(t, err)

	outreach := sampleOutreach()
	outreach.Failure = &po.PipelineFailure{Phase: po.PhaseGeneratingPreview, Message: "transcoder down"}
	event, err := outboxevents.NewPipelineFailedEvent(outreach, uuid.New(), time.Now())
	require.NoError(t, err)
	payload, ok := event.Payload.(*outboxevents.PipelineFailed)
	require.True(t, ok)
	require.Equal(t, "generating_preview", payload.Phase)
	require.True(t, payload.Retryable)
}

func TestBuildAttributes(t *testing.T) {
	event, err := outboxevents.NewOutreachCreatedEvent(sampleOutreach(), uuid.New(), time.Now())
	require.NoError(t, err)

	attrs := outboxevents.BuildAttributes(event, "", "trace-1")
	require.Equal(t, "outreach.created", attrs["event_type"])
	require.Equal(t, outboxevents.SchemaVersionV1, attrs["schema_version"])
	require.Equal(t, "7", attrs["version"])
	require.Equal(t, "trace-1", attrs["trace_id"])

	attrs = outboxevents.BuildAttributes(event, "v2", "")
	require.Equal(t, "v2", attrs["schema_version"])
	_, hasTrace := attrs["trace_id"]
	require.False(t, hasTrace)
}

func TestTraceIDFromContext(t *testing.T) {
	require.Empty(t, outboxevents.TraceIDFromContext(context.Background()))

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	require.Equal(t, traceID.String(), outboxevents.TraceIDFromContext(ctx))
}
