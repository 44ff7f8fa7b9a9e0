package pubsub_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	outreachpubsub "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/pubsub"

	"cloud.google.com/go/pubsub/pstest"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/bionicotaku/lingo-utils/gcpubsub"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

const (
	projectID      = "outreach-test"
	topicID        = "outreach.events"
	subscriptionID = "outreach.events.audit"
)

func boolPtr(v bool) *bool { return &v }

func newEmulator(t *testing.T, ctx context.Context) *pstest.Server {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	_, err = srv.GServer.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subscriptionID),
		Topic:              topicName,
		AckDeadlineSeconds: 10,
	})
	require.NoError(t, err)
	return srv
}

func emulatorConfig(srv *pstest.Server) gcpubsub.Config {
	return gcpubsub.Config{
		ProjectID:        projectID,
		TopicID:          topicID,
		SubscriptionID:   subscriptionID,
		EnableLogging:    boolPtr(false),
		EnableMetrics:    boolPtr(false),
		EmulatorEndpoint: srv.Addr,
		Receive: gcpubsub.ReceiveConfig{
			NumGoroutines:          1,
			MaxOutstandingMessages: 1,
		},
	}
}

func TestProvideComponent_DisabledWithoutProject(t *testing.T) {
	component, cleanup, err := outreachpubsub.ProvideComponent(context.Background(), gcpubsub.Config{TopicID: topicID}, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	require.Nil(t, component)
	cleanup()

	require.Nil(t, outreachpubsub.ProvidePublisher(nil, gcpubsub.Config{TopicID: topicID}))
	require.Nil(t, outreachpubsub.ProvideSubscriber(nil, gcpubsub.Config{SubscriptionID: subscriptionID}))
}

func TestPublishAndReceive(t *testing.T) {
	ctx := context.Background()
	srv := newEmulator(t, ctx)
	cfg := emulatorConfig(srv)

	component, cleanup, err := outreachpubsub.ProvideComponent(ctx, cfg, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	require.NotNil(t, component)
	defer cleanup()

	publisher := outreachpubsub.ProvidePublisher(component, cfg)
	require.NotNil(t, publisher)
	subscriber := outreachpubsub.ProvideSubscriber(component, cfg)
	require.NotNil(t, subscriber)

	_, err = publisher.Publish(ctx, gcpubsub.Message{
		Data:       []byte(`{"kind":"outreach.ready"}`),
		Attributes: map[string]string{"event_type": "outreach.ready"},
	})
	require.NoError(t, err)
	require.Len(t, srv.Messages(), 1)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 首次返回错误请求重投，第二次确认。
	var attempts atomic.Int32
	received := make(chan *gcpubsub.Message, 2)
	err = subscriber.Receive(runCtx, func(_ context.Context, msg *gcpubsub.Message) error {
		received <- msg
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		cancel()
		return nil
	})
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
	require.Equal(t, int32(2), attempts.Load())

	<-received
	redelivered := <-received
	require.Equal(t, []byte(`{"kind":"outreach.ready"}`), redelivered.Data)
	require.Equal(t, "outreach.ready", redelivered.Attributes["event_type"])
}

func TestProvidePublisher_RequiresTopic(t *testing.T) {
	ctx := context.Background()
	srv := newEmulator(t, ctx)
	cfg := emulatorConfig(srv)
	cfg.TopicID = ""

	component, cleanup, err := outreachpubsub.ProvideComponent(ctx, cfg, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	defer cleanup()

	require.Nil(t, outreachpubsub.ProvidePublisher(component, cfg))
	require.NotNil(t, outreachpubsub.ProvideSubscriber(component, cfg))
}
