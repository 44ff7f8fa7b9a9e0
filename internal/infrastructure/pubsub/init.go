// Package pubsub 基于 lingo-utils/gcpubsub 装配外联事件发布与投递回执订阅。
package pubsub

import (
	"context"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露 Pub/Sub 组件、发布器与订阅者。
var ProviderSet = wire.NewSet(ProvideComponent, ProvidePublisher, ProvideSubscriber)

// ProvideComponent 在配置了 project 时构造共享组件；否则返回 nil，Outbox 事件暂存数据库、回执仅经 HTTP 写入。
func ProvideComponent(ctx context.Context, cfg gcpubsub.Config, logger log.Logger) (*gcpubsub.Component, func(), error) {
	if cfg.ProjectID == "" || (cfg.TopicID == "" && cfg.SubscriptionID == "") {
		log.NewHelper(logger).Info("pubsub disabled: project/topic/subscription not configured")
		return nil, func() {}, nil
	}
	return gcpubsub.NewComponent(ctx, cfg, gcpubsub.Dependencies{Logger: logger})
}

// ProvidePublisher 返回 Outbox 主题发布器；未配置 topic 时为 nil。
func ProvidePublisher(component *gcpubsub.Component, cfg gcpubsub.Config) gcpubsub.Publisher {
	if component == nil || cfg.TopicID == "" {
		return nil
	}
	return gcpubsub.ProvidePublisher(component)
}

// ProvideSubscriber 返回投递回执订阅者；未配置 subscription 时为 nil。
func ProvideSubscriber(component *gcpubsub.Component, cfg gcpubsub.Config) gcpubsub.Subscriber {
	if component == nil || cfg.SubscriptionID == "" {
		return nil
	}
	return gcpubsub.ProvideSubscriber(component)
}
