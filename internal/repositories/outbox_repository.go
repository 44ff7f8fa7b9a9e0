package repositories

import (
	"context"
	"fmt"
	"time"

	outboxpkg "github.com/bionicotaku/lingo-utils/outbox"
	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	"github.com/bionicotaku/lingo-utils/outbox/store"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxMessage 描述需要写入 outbox_events 的事件数据。
type OutboxMessage = store.Message

// OutboxRepository 将外联事件写入 outreach.outbox_events，认领与回写由共享发布器负责。
type OutboxRepository struct {
	delegate *store.Repository
	log      *log.Helper
}

// NewOutboxRepository 基于连接池与 outbox 配置构造仓储；schema 缺省时回退到共享包默认值。
func NewOutboxRepository(db *pgxpool.Pool, logger log.Logger, cfg outboxcfg.Config) *OutboxRepository {
	helper := log.NewHelper(logger)
	storeRepo, err := outboxpkg.NewRepository(db, logger, outboxpkg.RepositoryOptions{Schema: cfg.Schema})
	if err != nil {
		helper.Errorw("msg", "init outbox repository failed", "schema", cfg.Schema, "error", err)
		storeRepo = store.NewRepository(db, logger)
	}
	return &OutboxRepository{delegate: storeRepo, log: helper}
}

// Enqueue 在指定事务内插入 Outbox 事件；AvailableAt 缺省为当前时间。
func (r *OutboxRepository) Enqueue(ctx context.Context, sess txmanager.Session, msg OutboxMessage) error {
	if msg.AvailableAt.IsZero() {
		msg.AvailableAt = time.Now().UTC()
	}
	if err := r.delegate.Enqueue(ctx, sess, msg); err != nil {
		r.log.WithContext(ctx).Errorf("insert outbox event failed: event_id=%s type=%s err=%v", msg.EventID, msg.EventType, err)
		return fmt.Errorf("insert outbox event: %w", err)
	}
	r.log.WithContext(ctx).Debugf("outbox event enqueued: aggregate=%s id=%s type=%s", msg.AggregateType, msg.AggregateID, msg.EventType)
	return nil
}

// Shared 暴露底层共享仓储，供发布 Runner 认领与回写。
func (r *OutboxRepository) Shared() *store.Repository {
	return r.delegate
}
