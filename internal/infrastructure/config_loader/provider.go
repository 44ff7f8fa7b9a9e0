package loader

import (
	"github.com/bionicotaku/lingo-utils/gcpubsub"
	obswire "github.com/bionicotaku/lingo-utils/observability"
	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/google/wire"
)

// ProviderSet exposes configuration-derived dependencies for Wire graphs.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideServiceMetadata,
	ProvideTxConfig,
	ProvideMetricsConfig,
	ProvidePubSubConfig,
	ProvideOutboxConfig,
)

// ProvideConfig returns the validated runtime configuration.
func ProvideConfig(b *Bundle) *Config {
	if b == nil {
		return nil
	}
	return b.Config
}

// ProvideServiceMetadata returns the resolved ServiceMetadata from the bundle.
func ProvideServiceMetadata(b *Bundle) ServiceMetadata {
	if b == nil {
		return ServiceMetadata{}
	}
	return b.Service
}

// ProvideTxConfig returns the transaction manager configuration.
func ProvideTxConfig(b *Bundle) txmanager.Config {
	if b == nil {
		return txmanager.Config{}
	}
	return b.TxConfig
}

// ProvideObservabilityConfig exposes the normalized observability configuration.
func ProvideObservabilityConfig(b *Bundle) obswire.ObservabilityConfig {
	if b == nil {
		return obswire.ObservabilityConfig{}
	}
	return b.ObsConfig
}

// ProvideMetricsConfig exposes the metrics section for server instrumentation.
func ProvideMetricsConfig(b *Bundle) *obswire.MetricsConfig {
	if b == nil {
		return nil
	}
	return b.ObsConfig.Metrics
}

// ProvidePubSubConfig exposes the gcpubsub configuration shared by publisher and subscriber.
func ProvidePubSubConfig(b *Bundle) gcpubsub.Config {
	if b == nil {
		return gcpubsub.Config{}
	}
	return b.PubSub
}

// ProvideOutboxConfig exposes the outbox store and publisher configuration.
func ProvideOutboxConfig(b *Bundle) outboxcfg.Config {
	if b == nil {
		return outboxcfg.Config{}
	}
	return b.Outbox
}
