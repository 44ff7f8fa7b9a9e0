package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memStore 在内存中实现 OutreachStore / EventLog / OutboxWriter，配合 memTx 提供事务回滚语义。
type memStore struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	rows     map[uuid.UUID]*po.VideoOutreach
	events   []*po.VideoEvent
	outbox   []repositories.OutboxMessage
	seq      int64
	now      func() time.Time
	conflict int
	updates  int
	// listSessions 记录每次 ListByVideo 收到的会话，用于断言读取发生在事务内。
	listSessions []txmanager.Session
}

func newMemStore() *memStore {
	return &memStore{
		rows: make(map[uuid.UUID]*po.VideoOutreach),
		now:  time.Now,
	}
}

type memSnapshot struct {
	rows   map[uuid.UUID]*po.VideoOutreach
	events []*po.VideoEvent
	outbox []repositories.OutboxMessage
	seq    int64
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make(map[uuid.UUID]*po.VideoOutreach, len(s.rows))
	for id, row := range s.rows {
		rows[id] = row.Clone()
	}
	return memSnapshot{
		rows:   rows,
		events: append([]*po.VideoEvent(nil), s.events...),
		outbox: append([]repositories.OutboxMessage(nil), s.outbox...),
		seq:    s.seq,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = snap.rows
	s.events = snap.events
	s.outbox = snap.outbox
	s.seq = snap.seq
}

// failUpdates 让接下来 n 次 Update 返回版本冲突。
func (s *memStore) failUpdates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflict = n
}

func (s *memStore) Create(_ context.Context, _ txmanager.Session, input repositories.CreateOutreachInput) (*po.VideoOutreach, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.OwnerID == input.OwnerID && row.IdempotencyKey == input.IdempotencyKey {
			return row.Clone(), false, nil
		}
	}
	videoID := input.VideoID
	if videoID == uuid.Nil {
		videoID = uuid.New()
	}
	now := s.now().UTC()
	row := &po.VideoOutreach{
		VideoID:         videoID,
		OwnerID:         input.OwnerID,
		IdempotencyKey:  input.IdempotencyKey,
		Recipient:       input.Recipient,
		Title:           input.Title,
		Personalization: input.Personalization,
		CTA:             input.CTA,
		Status:          po.OutreachStatusDraft,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.rows[videoID] = row
	return row.Clone(), true, nil
}

func (s *memStore) GetByID(_ context.Context, _ txmanager.Session, videoID uuid.UUID) (*po.VideoOutreach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[videoID]
	if !ok {
		return nil, repositories.ErrOutreachNotFound
	}
	return row.Clone(), nil
}

func (s *memStore) GetByToken(_ context.Context, _ txmanager.Session, token string) (*po.VideoOutreach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.PublicToken != nil && *row.PublicToken == token {
			return row.Clone(), nil
		}
	}
	return nil, repositories.ErrOutreachNotFound
}

func (s *memStore) Update(_ context.Context, _ txmanager.Session, outreach *po.VideoOutreach, expectedVersion int64) (*po.VideoOutreach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[outreach.VideoID]
	if !ok {
		return nil, repositories.ErrOutreachNotFound
	}
	if s.conflict > 0 {
		s.conflict--
		return nil, repositories.ErrVersionConflict
	}
	if row.Version != expectedVersion {
		return nil, repositories.ErrVersionConflict
	}
	next := outreach.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now().UTC()
	s.rows[next.VideoID] = next
	s.updates++
	return next.Clone(), nil
}

func (s *memStore) Append(_ context.Context, _ txmanager.Session, input repositories.AppendEventInput) (*po.VideoEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.EventID == input.EventID {
			return nil, repositories.ErrDuplicateEvent
		}
	}
	s.seq++
	event := &po.VideoEvent{
		EventID:    input.EventID,
		Seq:        s.seq,
		VideoID:    input.VideoID,
		Type:       input.Type,
		OccurredAt: input.OccurredAt,
		Metadata:   input.Metadata,
		CreatedAt:  s.now().UTC(),
	}
	s.events = append(s.events, event)
	return event, nil
}

func (s *memStore) ListByVideo(_ context.Context, sess txmanager.Session, videoID uuid.UUID) ([]*po.VideoEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listSessions = append(s.listSessions, sess)
	var out []*po.VideoEvent
	for _, event := range s.events {
		if event.VideoID == videoID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *memStore) Enqueue(_ context.Context, _ txmanager.Session, msg repositories.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, msg)
	return nil
}

func (s *memStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.outbox))
	for _, msg := range s.outbox {
		types = append(types, msg.EventType)
	}
	return types
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// put 直接写入一条记录，跳过流水线。
func (s *memStore) put(row *po.VideoOutreach) *po.VideoOutreach {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.VideoID == uuid.Nil {
		row.VideoID = uuid.New()
	}
	if row.Version == 0 {
		row.Version = 1
	}
	s.rows[row.VideoID] = row.Clone()
	return row
}

// memTx 串行执行事务，并以快照实现回滚：fn 返回错误时恢复写入前的状态。
type memTx struct {
	store *memStore
}

type memSession struct{}

func (memSession) Tx() pgx.Tx               { return nil }
func (memSession) Context() context.Context { return context.Background() }

func (m memTx) WithinTx(ctx context.Context, _ txmanager.TxOptions, fn func(context.Context, txmanager.Session) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()
	snap := m.store.snapshot()
	if err := fn(ctx, memSession{}); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

func (m memTx) WithinReadOnlyTx(ctx context.Context, _ txmanager.TxOptions, fn func(context.Context, txmanager.Session) error) error {
	return fn(ctx, memSession{})
}

type storageStub struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newStorageStub() *storageStub {
	return &storageStub{objects: make(map[string][]byte)}
}

func (s *storageStub) Put(_ context.Context, objectPath, _ string, data []byte) (*services.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.objects[objectPath] = append([]byte(nil), data...)
	return &services.StoredObject{Path: objectPath, SizeBytes: int64(len(data))}, nil
}

func (s *storageStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type transcoderStub struct {
	mu     sync.Mutex
	err    error
	calls  int
	during func()
}

func (t *transcoderStub) GeneratePreview(_ context.Context, req services.TranscodeRequest) (*services.TranscodeResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.during != nil {
		t.during()
	}
	if t.err != nil {
		return nil, t.err
	}
	return &services.TranscodeResult{PreviewPath: req.PreviewPath, DurationMillis: 42000, Resolution: "1280x720"}, nil
}

type cacheStub struct {
	mu      sync.Mutex
	entries map[uuid.UUID]vo.AnalyticsAggregate
	setErr  error
	evicted []uuid.UUID
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[uuid.UUID]vo.AnalyticsAggregate)}
}

func (c *cacheStub) Get(_ context.Context, videoID uuid.UUID) (*vo.AnalyticsAggregate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg, ok := c.entries[videoID]
	if !ok {
		return nil, false, nil
	}
	return &agg, true, nil
}

func (c *cacheStub) Set(_ context.Context, videoID uuid.UUID, aggregate vo.AnalyticsAggregate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[videoID] = aggregate
	return nil
}

func (c *cacheStub) Invalidate(_ context.Context, videoID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, videoID)
	c.evicted = append(c.evicted, videoID)
	return nil
}

type signerStub struct {
	err error
}

func (s signerStub) SignedReadURL(_ context.Context, objectPath string, ttl time.Duration) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "https://signed.example/" + objectPath, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(ttl), nil
}

var errBoom = errors.New("boom")

// fixedClock 返回可手动推进的时钟。
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func readyOutreach(token string) *po.VideoOutreach {
	raw := "raw_videos/owner/" + token
	landing := "https://watch.example/v/" + token
	tok := token
	return &po.VideoOutreach{
		VideoID:        uuid.New(),
		OwnerID:        uuid.New(),
		IdempotencyKey: "key-" + token,
		PublicToken:    &tok,
		Recipient:      po.Recipient{PersonID: uuid.New(), Name: "Dana Reyes", Company: "Acme", Email: "dana@acme.test"},
		Title:          "Quick idea for Acme",
		CTA:            po.CTAConfig{Type: po.CTABookMeeting, Label: "Book 15 min"},
		RawVideoPath:   &raw,
		LandingURL:     &landing,
		Status:         po.OutreachStatusReady,
		PhaseCompleted: po.PhaseDone,
		Progress:       100,
	}
}

func repositoriesInput(ownerID uuid.UUID, key string) repositories.CreateOutreachInput {
	return repositories.CreateOutreachInput{
		OwnerID:        ownerID,
		IdempotencyKey: key,
		Recipient:      po.Recipient{PersonID: uuid.New(), Name: "Dana Reyes", Company: "Acme"},
		Title:          "Quick idea",
		CTA:            po.CTAConfig{Type: po.CTAReply, Label: "Reply"},
	}
}
