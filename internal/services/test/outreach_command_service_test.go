package services_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newCommandService(store *memStore, cache services.AnalyticsCache) *services.OutreachCommandService {
	return services.NewOutreachCommandService(store, store, store, cache, memTx{store: store}, 3, log.NewStdLogger(io.Discard))
}

func createInput() services.CreateOutreachInput {
	return services.CreateOutreachInput{
		OwnerID:        uuid.New(),
		IdempotencyKey: " req-1 ",
		Recipient: po.Recipient{
			PersonID: uuid.New(),
			Name:     "Dana Reyes",
			Company:  "Acme",
			Email:    "dana@acme.test",
		},
		Title:           "Quick idea for Acme",
		Personalization: po.PersonalizationConfig{TargetURL: "https://acme.test/pricing", AutoScroll: true},
		CTA:             po.CTAConfig{Type: po.CTABookMeeting, Label: "Book 15 min"},
	}
}

func TestCreateOutreach_NewRecord(t *testing.T) {
	store := newMemStore()
	svc := newCommandService(store, nil)

	created, err := svc.CreateOutreach(context.Background(), createInput())
	require.NoError(t, err)
	require.False(t, created.Reused)
	require.Equal(t, string(po.OutreachStatusDraft), created.Status)
	require.Equal(t, []string{"outreach.created"}, store.outboxTypes())

	row, err := store.GetByID(context.Background(), nil, created.VideoID)
	require.NoError(t, err)
	require.Equal(t, "req-1", row.IdempotencyKey)
}

func TestCreateOutreach_IdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc := newCommandService(store, nil)
	input := createInput()

	first, err := svc.CreateOutreach(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.CreateOutreach(context.Background(), input)
	require.NoError(t, err)

	require.True(t, second.Reused)
	require.Equal(t, first.VideoID, second.VideoID)
	require.Len(t, store.outboxTypes(), 1)
}

func TestCreateOutreach_KeyReusedForDifferentRecipient(t *testing.T) {
	store := newMemStore()
	svc := newCommandService(store, nil)
	input := createInput()
	_, err := svc.CreateOutreach(context.Background(), input)
	require.NoError(t, err)

	input.Recipient.PersonID = uuid.New()
	_, err = svc.CreateOutreach(context.Background(), input)
	require.True(t, services.IsConflict(err))
	require.Equal(t, 409, int(errors.FromError(err).Code))
}

func TestCreateOutreach_Validation(t *testing.T) {
	cases := map[string]func(in *services.CreateOutreachInput){
		"missing owner":       func(in *services.CreateOutreachInput) { in.OwnerID = uuid.Nil },
		"missing key":         func(in *services.CreateOutreachInput) { in.IdempotencyKey = "  " },
		"missing person":      func(in *services.CreateOutreachInput) { in.Recipient.PersonID = uuid.Nil },
		"missing name":        func(in *services.CreateOutreachInput) { in.Recipient.Name = "" },
		"missing title":       func(in *services.CreateOutreachInput) { in.Title = "" },
		"bad cta":             func(in *services.CreateOutreachInput) { in.CTA.Type = "call" },
		"bad email":           func(in *services.CreateOutreachInput) { in.Recipient.Email = "not-an-email" },
		"relative target url": func(in *services.CreateOutreachInput) { in.Personalization.TargetURL = "/pricing" },
		"ftp scheduling link": func(in *services.CreateOutreachInput) {
			link := "ftp://cal.example/dana"
			in.CTA.SchedulingLink = &link
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			svc := newCommandService(store, nil)
			input := createInput()
			mutate(&input)

			_, err := svc.CreateOutreach(context.Background(), input)
			require.True(t, services.IsValidation(err), "got %v", err)
			require.Empty(t, store.outboxTypes())
		})
	}
}

func TestPatchStatus_ReadyToSent(t *testing.T) {
	store := newMemStore()
	row := store.put(readyOutreach("tok-a"))
	svc := newCommandService(store, nil)

	patched, err := svc.PatchStatus(context.Background(), row.VideoID, "SENT")
	require.NoError(t, err)
	require.True(t, patched.Changed)
	require.Equal(t, "ready", patched.PreviousStatus)
	require.Equal(t, "sent", patched.Status)

	stored, err := store.GetByID(context.Background(), nil, row.VideoID)
	require.NoError(t, err)
	require.NotNil(t, stored.SentAt)
	require.Equal(t, []string{"outreach.status_changed"}, store.outboxTypes())
}

func TestPatchStatus_NoRegression(t *testing.T) {
	store := newMemStore()
	row := readyOutreach("tok-b")
	row.Status = po.OutreachStatusClicked
	store.put(row)
	svc := newCommandService(store, nil)

	patched, err := svc.PatchStatus(context.Background(), row.VideoID, "sent")
	require.NoError(t, err)
	require.False(t, patched.Changed)
	require.Equal(t, "clicked", patched.Status)
	require.Empty(t, store.outboxTypes())
}

func TestPatchStatus_Rejections(t *testing.T) {
	store := newMemStore()
	draft := store.put(&po.VideoOutreach{Status: po.OutreachStatusProcessing, OwnerID: uuid.New()})
	ready := store.put(readyOutreach("tok-c"))
	svc := newCommandService(store, nil)

	_, err := svc.PatchStatus(context.Background(), draft.VideoID, "sent")
	require.True(t, services.IsIllegalTransition(err))

	_, err = svc.PatchStatus(context.Background(), ready.VideoID, "booked")
	require.True(t, services.IsValidation(err))

	_, err = svc.PatchStatus(context.Background(), ready.VideoID, "archived")
	require.True(t, services.IsValidation(err))

	_, err = svc.PatchStatus(context.Background(), uuid.New(), "sent")
	require.True(t, services.IsNotFound(err))
}

func TestPatchStatus_PersistentConflictSurfaces(t *testing.T) {
	store := newMemStore()
	row := store.put(readyOutreach("tok-d"))
	svc := newCommandService(store, nil)
	store.failUpdates(10)

	_, err := svc.PatchStatus(context.Background(), row.VideoID, "sent")
	require.Equal(t, services.ReasonVersionConflict, errors.Reason(err))
}

func TestRecompute_HealsStatusUpward(t *testing.T) {
	store := newMemStore()
	row := store.put(readyOutreach("tok-e"))
	cache := newCacheStub()
	svc := newCommandService(store, cache)

	appendEvents(t, store, row.VideoID, po.EventDelivered, po.EventPageViewed, po.EventVideoWatched50, po.EventCTAClicked)

	detail, err := svc.Recompute(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, "clicked", detail.Status)
	require.Equal(t, 1, detail.Analytics.Views)
	require.Equal(t, 50, detail.Analytics.AvgWatchPercent)
	require.Equal(t, "draft_follow_up", string(detail.Recommendation.Kind))

	cached, ok, err := cache.Get(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, detail.Analytics, *cached)
}

func TestRecompute_ReadsHistoryInsideTransaction(t *testing.T) {
	store := newMemStore()
	row := store.put(readyOutreach("tok-g"))
	svc := newCommandService(store, nil)

	appendEvents(t, store, row.VideoID, po.EventDelivered)

	detail, err := svc.Recompute(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, "sent", detail.Status)

	require.NotEmpty(t, store.listSessions)
	for _, sess := range store.listSessions {
		require.NotNil(t, sess)
	}

	require.Len(t, store.outbox, 1)
	var envelope struct {
		Payload struct {
			From  string `json:"from"`
			To    string `json:"to"`
			Cause string `json:"cause"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(store.outbox[0].Payload, &envelope))
	require.Equal(t, "ready", envelope.Payload.From)
	require.Equal(t, "sent", envelope.Payload.To)
	require.Equal(t, outboxevents.CauseRecompute, envelope.Payload.Cause)
}

func TestRecompute_NeverLowersStatus(t *testing.T) {
	store := newMemStore()
	row := readyOutreach("tok-f")
	row.Status = po.OutreachStatusBooked
	store.put(row)
	svc := newCommandService(store, nil)

	appendEvents(t, store, row.VideoID, po.EventPageViewed)

	detail, err := svc.Recompute(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, "booked", detail.Status)
	require.Empty(t, store.outboxTypes())
}

func appendEvents(t *testing.T, store *memStore, videoID uuid.UUID, types ...po.EventType) {
	t.Helper()
	clock := newFixedClock()
	for _, eventType := range types {
		_, err := store.Append(context.Background(), nil, repositories.AppendEventInput{
			EventID:    uuid.New(),
			VideoID:    videoID,
			Type:       eventType,
			OccurredAt: clock.Now(),
		})
		require.NoError(t, err)
		clock.Advance(1)
	}
}
