package loader

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 支持 "5s"/"1m30s" 字符串或纳秒整数两种 YAML/JSON 写法。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler；Kratos config.Scan 经由 JSON 解码结构体。
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value: %s", string(b))
	}
	return nil
}

// MarshalJSON 以字符串形式输出，便于日志与调试。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 返回 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config 是服务的完整运行时配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Data          DataConfig          `json:"data"`
	Storage       StorageConfig       `json:"storage"`
	Transcoder    TranscoderConfig    `json:"transcoder"`
	Pipeline      PipelineConfig      `json:"pipeline"`
	Ingest        IngestConfig        `json:"ingest"`
	Outbox        OutboxConfig        `json:"outbox"`
	PubSub        PubSubConfig        `json:"pubsub"`
	Observability ObservabilityConfig `json:"observability"`
	Handlers      HandlersConfig      `json:"handlers"`
}

// ServerConfig 描述 HTTP 服务监听参数。
type ServerConfig struct {
	HTTP HTTPServerConfig `json:"http"`
}

// HTTPServerConfig HTTP 监听地址与请求超时。
type HTTPServerConfig struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr" validate:"required"`
	Timeout Duration `json:"timeout" validate:"gte=0"`
}

// DataConfig 聚合数据层连接配置。
type DataConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

// PostgresConfig 连接池参数。
type PostgresConfig struct {
	DSN                      string            `json:"dsn" validate:"required"`
	MaxOpenConns             int32             `json:"max_open_conns" validate:"gte=0"`
	MinOpenConns             int32             `json:"min_open_conns" validate:"gte=0"`
	MaxConnLifetime          Duration          `json:"max_conn_lifetime"`
	MaxConnIdleTime          Duration          `json:"max_conn_idle_time"`
	HealthCheckPeriod        Duration          `json:"health_check_period"`
	Schema                   string            `json:"schema"`
	EnablePreparedStatements bool              `json:"enable_prepared_statements"`
	SlowQueryThreshold       Duration          `json:"slow_query_threshold"`
	Transaction              TransactionConfig `json:"transaction"`
}

// TransactionConfig 映射到 txmanager.Config。
type TransactionConfig struct {
	DefaultIsolation string   `json:"default_isolation" validate:"omitempty,oneof=read_committed repeatable_read serializable"`
	DefaultTimeout   Duration `json:"default_timeout"`
	LockTimeout      Duration `json:"lock_timeout"`
	MaxRetries       int      `json:"max_retries" validate:"gte=0"`
	MetricsEnabled   *bool    `json:"metrics_enabled"`
}

// RedisConfig 聚合指标缓存；Addr 为空时不启用缓存。
type RedisConfig struct {
	Addr      string   `json:"addr"`
	Password  string   `json:"password"`
	DB        int      `json:"db" validate:"gte=0"`
	TTL       Duration `json:"ttl"`
	KeyPrefix string   `json:"key_prefix"`
}

// StorageConfig 描述 GCS 存储与签名 URL 参数。
type StorageConfig struct {
	Bucket               string   `json:"bucket" validate:"required"`
	SignerServiceAccount string   `json:"signer_service_account"`
	SignedURLTTL         Duration `json:"signed_url_ttl"`
	RawPrefix            string   `json:"raw_prefix"`
	PreviewPrefix        string   `json:"preview_prefix"`
	RateLimit            float64  `json:"rate_limit" validate:"gte=0"`
	Burst                int      `json:"burst" validate:"gte=0"`
}

// TranscoderConfig 描述转码协作方的 HTTP 端点。
type TranscoderConfig struct {
	Endpoint  string   `json:"endpoint" validate:"omitempty,url"`
	Timeout   Duration `json:"timeout"`
	RateLimit float64  `json:"rate_limit" validate:"gte=0"`
	Burst     int      `json:"burst" validate:"gte=0"`
}

// PipelineConfig 描述素材流水线行为。
type PipelineConfig struct {
	PreviewEnabled       *bool    `json:"preview_enabled"`
	PreviewFailurePolicy string   `json:"preview_failure_policy" validate:"oneof=soft_skip hard_fail"`
	RunTimeout           Duration `json:"run_timeout"`
	StaleAfter           Duration `json:"stale_after"`
	SweepSchedule        string   `json:"sweep_schedule"`
	SweepBatch           int      `json:"sweep_batch" validate:"gte=0"`
	LandingBaseURL       string   `json:"landing_base_url" validate:"required,url"`
	MaxCASRetries        int      `json:"max_cas_retries" validate:"gte=0"`
}

// PreviewOn 返回是否生成预览；未显式配置时默认开启。
func (p PipelineConfig) PreviewOn() bool {
	if p.PreviewEnabled == nil {
		return defaultPreviewEnabled
	}
	return *p.PreviewEnabled
}

// IngestConfig 描述事件写入的并发控制参数。
type IngestConfig struct {
	MaxCASRetries int `json:"max_cas_retries" validate:"gte=0"`
}

// OutboxConfig 描述 Outbox 发布任务的批量、节奏与重试策略。
type OutboxConfig struct {
	Enabled        *bool    `json:"enabled"`
	BatchSize      int      `json:"batch_size" validate:"gte=0"`
	TickInterval   Duration `json:"tick_interval"`
	InitialBackoff Duration `json:"initial_backoff"`
	MaxBackoff     Duration `json:"max_backoff"`
	MaxAttempts    int      `json:"max_attempts" validate:"gte=0"`
	PublishTimeout Duration `json:"publish_timeout"`
	Workers        int      `json:"workers" validate:"gte=0"`
	LockTTL        Duration `json:"lock_ttl"`
}

// PubSubConfig 描述 Pub/Sub 连接：TopicID 承接 Outbox 事件，SubscriptionID 拉取邮件投递回执。
type PubSubConfig struct {
	ProjectID           string              `json:"project_id"`
	TopicID             string              `json:"topic_id"`
	SubscriptionID      string              `json:"subscription_id"`
	EmulatorEndpoint    string              `json:"emulator_endpoint"`
	OrderingKeyEnabled  *bool               `json:"ordering_key_enabled"`
	LoggingEnabled      *bool               `json:"logging_enabled"`
	MetricsEnabled      *bool               `json:"metrics_enabled"`
	ExactlyOnceDelivery bool                `json:"exactly_once_delivery"`
	Receive             PubSubReceiveConfig `json:"receive"`
}

// PubSubReceiveConfig 订阅端的并发与租约参数。
type PubSubReceiveConfig struct {
	NumGoroutines          int      `json:"num_goroutines" validate:"gte=0"`
	MaxOutstandingMessages int      `json:"max_outstanding_messages" validate:"gte=0"`
	MaxOutstandingBytes    int      `json:"max_outstanding_bytes" validate:"gte=0"`
	MaxExtension           Duration `json:"max_extension"`
	MaxExtensionPeriod     Duration `json:"max_extension_period"`
}

// PublisherOn 返回是否启动 Outbox 发布任务；需同时配置 project 与 topic。
func (c *Config) PublisherOn() bool {
	if c.Outbox.Enabled != nil && !*c.Outbox.Enabled {
		return false
	}
	return c.PubSub.ProjectID != "" && c.PubSub.TopicID != ""
}

// SubscriberOn 返回是否启动投递回执订阅。
func (c *Config) SubscriberOn() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.SubscriptionID != ""
}

// ObservabilityConfig 描述追踪与指标导出，加载后转换为 observability.ObservabilityConfig。
type ObservabilityConfig struct {
	GlobalAttributes map[string]string `json:"global_attributes"`
	Tracing          TracingConfig     `json:"tracing"`
	Metrics          MetricsConfig     `json:"metrics"`
}

// MetricsConfig 指标导出参数；未启用时指标仅在进程内聚合。
type MetricsConfig struct {
	Enabled             bool              `json:"enabled"`
	Exporter            string            `json:"exporter" validate:"omitempty,oneof=otlp_grpc stdout"`
	Endpoint            string            `json:"endpoint"`
	Headers             map[string]string `json:"headers"`
	Insecure            bool              `json:"insecure"`
	Interval            Duration          `json:"interval"`
	DisableRuntimeStats bool              `json:"disable_runtime_stats"`
	Required            bool              `json:"required"`
}

// TracingConfig 追踪导出参数；未启用时 trace_id 仍在进程内生成。
type TracingConfig struct {
	Enabled       bool              `json:"enabled"`
	Exporter      string            `json:"exporter" validate:"omitempty,oneof=otlp_grpc stdout"`
	Endpoint      string            `json:"endpoint"`
	Insecure      bool              `json:"insecure"`
	Headers       map[string]string `json:"headers"`
	SamplingRatio float64           `json:"sampling_ratio" validate:"gte=0,lte=1"`
	BatchTimeout  Duration          `json:"batch_timeout"`
	ExportTimeout Duration          `json:"export_timeout"`
	Required      bool              `json:"required"`
}

// HandlersConfig 描述 HTTP handler 的超时预算。
type HandlersConfig struct {
	CommandTimeout Duration `json:"command_timeout"`
	QueryTimeout   Duration `json:"query_timeout"`
	IngestTimeout  Duration `json:"ingest_timeout"`
}
