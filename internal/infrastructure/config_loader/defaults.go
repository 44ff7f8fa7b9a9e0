package loader

import "time"

const (
	// defaultConfPath is the fallback configuration directory when no overrides are provided.
	defaultConfPath = "configs"
	// defaultEnvironment is used when APP_ENV is missing.
	defaultEnvironment = "development"
	// defaultServiceName is used when SERVICE_NAME is missing.
	defaultServiceName = "lingo-services-outreach"
	// defaultServiceVersion is used when SERVICE_VERSION is missing.
	defaultServiceVersion = "dev"

	defaultHTTPAddr        = "0.0.0.0:8000"
	defaultHTTPTimeout     = 30 * time.Second
	defaultRedisTTL        = 10 * time.Minute
	defaultRedisKeyPrefix  = "outreach:analytics:"
	defaultSignedURLTTL    = 15 * time.Minute
	defaultRawPrefix       = "raw_videos"
	defaultPreviewPrefix   = "previews"
	defaultTranscodeTO     = 2 * time.Minute
	defaultPreviewEnabled  = true
	defaultPreviewPolicy   = "soft_skip"
	defaultRunTimeout      = 10 * time.Minute
	defaultStaleAfter      = 15 * time.Minute
	defaultSweepSchedule   = "@every 1m"
	defaultSweepBatch      = 50
	defaultMaxCASRetries   = 3
	defaultCommandTimeout  = 5 * time.Second
	defaultQueryTimeout    = 3 * time.Second
	defaultIngestTimeout   = 2 * time.Second
	defaultTracingSampling = 1.0
	defaultMetricsInterval = 60 * time.Second
	defaultMaxOutstanding  = 100
	defaultNumGoroutines   = 2
	defaultSchema          = "outreach"
	defaultSlowQuery       = 500 * time.Millisecond
	defaultExporter        = "otlp_grpc"
)

// applyDefaults 为未配置的字段填充默认值；显式零值与未配置不可区分的字段一律视为未配置。
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTP.Network == "" {
		cfg.Server.HTTP.Network = "tcp"
	}
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = defaultHTTPAddr
	}
	setDuration(&cfg.Server.HTTP.Timeout, defaultHTTPTimeout)

	setDuration(&cfg.Data.Postgres.SlowQueryThreshold, defaultSlowQuery)
	setDuration(&cfg.Data.Redis.TTL, defaultRedisTTL)
	if cfg.Data.Redis.KeyPrefix == "" {
		cfg.Data.Redis.KeyPrefix = defaultRedisKeyPrefix
	}

	setDuration(&cfg.Storage.SignedURLTTL, defaultSignedURLTTL)
	if cfg.Storage.RawPrefix == "" {
		cfg.Storage.RawPrefix = defaultRawPrefix
	}
	if cfg.Storage.PreviewPrefix == "" {
		cfg.Storage.PreviewPrefix = defaultPreviewPrefix
	}

	setDuration(&cfg.Transcoder.Timeout, defaultTranscodeTO)

	if cfg.Pipeline.PreviewFailurePolicy == "" {
		cfg.Pipeline.PreviewFailurePolicy = defaultPreviewPolicy
	}
	setDuration(&cfg.Pipeline.RunTimeout, defaultRunTimeout)
	setDuration(&cfg.Pipeline.StaleAfter, defaultStaleAfter)
	if cfg.Pipeline.SweepSchedule == "" {
		cfg.Pipeline.SweepSchedule = defaultSweepSchedule
	}
	if cfg.Pipeline.SweepBatch == 0 {
		cfg.Pipeline.SweepBatch = defaultSweepBatch
	}
	if cfg.Pipeline.MaxCASRetries == 0 {
		cfg.Pipeline.MaxCASRetries = defaultMaxCASRetries
	}
	if cfg.Ingest.MaxCASRetries == 0 {
		cfg.Ingest.MaxCASRetries = defaultMaxCASRetries
	}

	if cfg.PubSub.Receive.MaxOutstandingMessages == 0 {
		cfg.PubSub.Receive.MaxOutstandingMessages = defaultMaxOutstanding
	}
	if cfg.PubSub.Receive.NumGoroutines == 0 {
		cfg.PubSub.Receive.NumGoroutines = defaultNumGoroutines
	}

	setDuration(&cfg.Handlers.CommandTimeout, defaultCommandTimeout)
	setDuration(&cfg.Handlers.QueryTimeout, defaultQueryTimeout)
	setDuration(&cfg.Handlers.IngestTimeout, defaultIngestTimeout)

	if cfg.Observability.Tracing.SamplingRatio == 0 {
		cfg.Observability.Tracing.SamplingRatio = defaultTracingSampling
	}
	setDuration(&cfg.Observability.Metrics.Interval, defaultMetricsInterval)
	if cfg.Observability.Tracing.Exporter == "" {
		cfg.Observability.Tracing.Exporter = defaultExporter
	}
	if cfg.Observability.Metrics.Exporter == "" {
		cfg.Observability.Metrics.Exporter = defaultExporter
	}
}

func setDuration(d *Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = Duration(fallback)
	}
}
