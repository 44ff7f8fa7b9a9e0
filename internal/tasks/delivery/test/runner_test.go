package delivery_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/delivery"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func discard() log.Logger { return log.NewStdLogger(io.Discard) }

type ingestorStub struct {
	mu     sync.Mutex
	inputs []services.IngestEventInput
	result *vo.IngestResult
	err    error
}

func (s *ingestorStub) Ingest(_ context.Context, input services.IngestEventInput) (*vo.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &vo.IngestResult{Status: string(po.OutreachStatusViewed)}, nil
}

func (s *ingestorStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

// receiverStub 依次投递预置消息并记录 Ack 结果（handler 返回 nil），然后阻塞到 ctx 取消。
type receiverStub struct {
	msgs []*gcpubsub.Message
	acks chan bool
}

func (r *receiverStub) Receive(ctx context.Context, handler func(context.Context, *gcpubsub.Message) error) error {
	for _, msg := range r.msgs {
		r.acks <- handler(ctx, msg) == nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func receipt(eventType string) *gcpubsub.Message {
	return &gcpubsub.Message{
		Data: []byte(`{"event_id":"` + uuid.NewString() + `","public_token":"tok","event_type":"` + eventType + `"}`),
	}
}

func TestRunnerHandle_AckOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		ack  bool
	}{
		{name: "accepted", ack: true},
		{name: "validation", err: services.NewValidationError("bad metadata"), ack: true},
		{name: "not found", err: services.ErrOutreachNotFound, ack: true},
		{name: "not ready", err: services.NewIllegalTransitionError(po.OutreachStatusProcessing, po.OutreachStatusViewed), ack: true},
		{name: "conflict", err: services.NewVersionConflictError(errors.New("cas")), ack: false},
		{name: "internal", err: errors.New("db down"), ack: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ingestor := &ingestorStub{err: tc.err}
			runner, err := delivery.NewRunner(&receiverStub{}, ingestor, discard(), nil)
			require.NoError(t, err)

			handleErr := runner.Handle(context.Background(), receipt("delivered"))
			require.Equal(t, tc.ack, handleErr == nil)
			if !tc.ack {
				require.ErrorIs(t, handleErr, tc.err)
			}
			require.Equal(t, 1, ingestor.calls())
		})
	}
}

func TestRunnerHandle_MalformedIsDropped(t *testing.T) {
	ingestor := &ingestorStub{}
	runner, err := delivery.NewRunner(&receiverStub{}, ingestor, discard(), nil)
	require.NoError(t, err)

	require.NoError(t, runner.Handle(context.Background(), &gcpubsub.Message{Data: []byte("garbage")}))
	require.Zero(t, ingestor.calls())
}

func TestRunnerHandle_ForwardsDecodedInput(t *testing.T) {
	ingestor := &ingestorStub{}
	runner, err := delivery.NewRunner(&receiverStub{}, ingestor, discard(), nil)
	require.NoError(t, err)

	eventID := uuid.New()
	videoID := uuid.New()
	msg := &gcpubsub.Message{
		Data:       []byte(`{"event_id":"` + eventID.String() + `","video_id":"` + videoID.String() + `"}`),
		Attributes: map[string]string{delivery.AttrEventType: "opened"},
	}
	require.NoError(t, runner.Handle(context.Background(), msg))
	require.Len(t, ingestor.inputs, 1)
	require.Equal(t, eventID, ingestor.inputs[0].EventID)
	require.Equal(t, videoID, ingestor.inputs[0].VideoID)
	require.Equal(t, "opened", ingestor.inputs[0].EventType)
}

func TestRunnerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("delivery-test")

	ingestor := &ingestorStub{result: &vo.IngestResult{Duplicate: true}}
	runner, err := delivery.NewRunner(&receiverStub{}, ingestor, discard(), meter)
	require.NoError(t, err)

	require.NoError(t, runner.Handle(context.Background(), receipt("opened")))
	require.NoError(t, runner.Handle(context.Background(), &gcpubsub.Message{Data: []byte("{")}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	outcomes := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "delivery_receipts_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				outcomes[outcome.AsString()] += dp.Value
			}
		}
	}
	require.Equal(t, int64(1), outcomes["duplicate"])
	require.Equal(t, int64(1), outcomes["dropped"])
}

func TestRunnerStartStop(t *testing.T) {
	receiver := &receiverStub{
		msgs: []*gcpubsub.Message{receipt("delivered"), receipt("opened")},
		acks: make(chan bool, 2),
	}
	ingestor := &ingestorStub{}
	runner, err := delivery.NewRunner(receiver, ingestor, discard(), nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Start(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case ack := <-receiver.acks:
			require.True(t, ack)
		case <-time.After(2 * time.Second):
			t.Fatal("receipt not handled")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(stopCtx))
	require.NoError(t, <-errCh)
	require.Equal(t, 2, ingestor.calls())
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := delivery.NewRunner(nil, &ingestorStub{}, discard(), nil)
	require.Error(t, err)
	_, err = delivery.NewRunner(&receiverStub{}, nil, discard(), nil)
	require.Error(t, err)
}

func TestProvideRunner_DisabledWithoutSubscriber(t *testing.T) {
	runner, err := delivery.ProvideRunner(nil, nil, nil, discard())
	require.NoError(t, err)
	require.Nil(t, runner)
}
