package services_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newQueryService(store *memStore, cache services.AnalyticsCache, signer services.URLSigner) *services.OutreachQueryService {
	return services.NewOutreachQueryService(store, store, cache, signer, 10*time.Minute, log.NewStdLogger(io.Discard))
}

func TestGetOutreach_DetailWithRecommendation(t *testing.T) {
	store := newMemStore()
	row := readyOutreach("tok-q1")
	row.Status = po.OutreachStatusSent
	store.put(row)
	svc := newQueryService(store, nil, nil)

	detail, err := svc.GetOutreach(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, row.VideoID, detail.VideoID)
	require.Equal(t, "sent", detail.Status)
	require.Equal(t, 100, detail.Pipeline.Progress)
	require.NotNil(t, detail.Recommendation)
	require.Equal(t, vo.RecommendWaitThenBump, detail.Recommendation.Kind)
}

func TestGetOutreach_NotFound(t *testing.T) {
	svc := newQueryService(newMemStore(), nil, nil)

	_, err := svc.GetOutreach(context.Background(), uuid.New())
	require.True(t, services.IsNotFound(err))
	require.Equal(t, 404, int(errors.FromError(err).Code))
}

func TestAnalytics_CacheHitAndFill(t *testing.T) {
	store := newMemStore()
	row := store.put(readyOutreach("tok-q2"))
	cache := newCacheStub()
	svc := newQueryService(store, cache, nil)
	appendEvents(t, store, row.VideoID, po.EventPageViewed, po.EventVideoWatched75)

	agg, err := svc.Analytics(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, 75, agg.AvgWatchPercent)

	cached, ok, err := cache.Get(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, agg, *cached)

	require.NoError(t, cache.Set(context.Background(), row.VideoID, vo.AnalyticsAggregate{Views: 99}))
	agg, err = svc.Analytics(context.Background(), row.VideoID)
	require.NoError(t, err)
	require.Equal(t, 99, agg.Views)
}

func TestGetPublicView_Ready(t *testing.T) {
	store := newMemStore()
	row := readyOutreach("tok-q3")
	preview := "previews/owner/clip.mp4"
	row.PreviewPath = &preview
	row.PreviewGenerated = true
	store.put(row)
	svc := newQueryService(store, nil, signerStub{})

	view, err := svc.GetPublicView(context.Background(), "tok-q3")
	require.NoError(t, err)
	require.Equal(t, row.Title, view.Title)
	require.Equal(t, "Dana Reyes", view.RecipientName)
	require.Equal(t, "https://signed.example/"+*row.RawVideoPath, view.VideoURL)
	require.NotNil(t, view.PreviewURL)
	require.Equal(t, "https://signed.example/"+preview, *view.PreviewURL)
	require.False(t, view.URLExpiresAt.IsZero())
}

func TestGetPublicView_HiddenBeforeReady(t *testing.T) {
	store := newMemStore()
	row := readyOutreach("tok-q4")
	row.Status = po.OutreachStatusProcessing
	row.PhaseCompleted = po.PhaseCreatingLanding
	store.put(row)
	svc := newQueryService(store, nil, signerStub{})

	_, err := svc.GetPublicView(context.Background(), "tok-q4")
	require.True(t, services.IsNotFound(err))

	_, err = svc.GetPublicView(context.Background(), "")
	require.True(t, services.IsNotFound(err))

	_, err = svc.GetPublicView(context.Background(), "unknown")
	require.True(t, services.IsNotFound(err))
}

func TestGetPublicView_SignerFailure(t *testing.T) {
	store := newMemStore()
	store.put(readyOutreach("tok-q5"))
	svc := newQueryService(store, nil, signerStub{err: errBoom})

	_, err := svc.GetPublicView(context.Background(), "tok-q5")
	require.Equal(t, services.ReasonUpstream, errors.Reason(err))
}
