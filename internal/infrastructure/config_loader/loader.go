// Package loader 负责加载、覆盖、补全与校验服务配置。
package loader

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	obswire "github.com/bionicotaku/lingo-utils/observability"
	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	envConfPath           = "CONF_PATH"
	envServiceName        = "SERVICE_NAME"
	envServiceVersion     = "SERVICE_VERSION"
	envAppEnv             = "APP_ENV"
	envDatabaseURL        = "DATABASE_URL"
	envPort               = "PORT"
	envRedisAddr          = "REDIS_ADDR"
	envGCSBucket          = "GCS_BUCKET"
	envTranscoderEndpoint = "TRANSCODER_ENDPOINT"
	envPubSubEmulator     = "PUBSUB_EMULATOR_HOST"
)

var envFileNames = []string{".env.local", ".env"}

// Params 包含构造配置 Bundle 所需的运行时输入参数。
type Params struct {
	ConfPath string // 配置文件路径（可为空，使用默认值）
}

// ServiceMetadata 保存服务标识信息，供日志和可观测性组件使用。
type ServiceMetadata struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Bundle 聚合强类型的配置片段，供下游 Wire 注入使用。
type Bundle struct {
	Config    *Config
	Service   ServiceMetadata
	TxConfig  txmanager.Config
	ObsConfig obswire.ObservabilityConfig
	PubSub    gcpubsub.Config
	Outbox    outboxcfg.Config
}

// BuildError 捕获配置构建过程中的上下文错误信息。
type BuildError struct {
	Stage string
	Path  string
	Err   error
}

// Error 实现 error 接口，提供包含上下文的错误信息。
func (e BuildError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s at %q: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式查询。
func (e BuildError) Unwrap() error {
	return e.Err
}

// Build 从配置文件构建 Bundle。
//
// 流程：
// 1. 解析配置路径（应用回退规则）并尽力加载 .env 文件
// 2. 加载 YAML 并扫描到 Config
// 3. 应用环境变量覆盖与默认值
// 4. 使用 validator 校验
// 5. 推导服务元信息，并转换为 txmanager / observability / gcpubsub / outbox 的规范化结构
func Build(params Params) (*Bundle, error) {
	confPath := ResolveConfPath(params.ConfPath)
	loadEnvFiles(confPath)

	cfg, err := loadConfig(confPath)
	if err != nil {
		return nil, err
	}

	service := buildServiceMetadata()
	return &Bundle{
		Config:    cfg,
		Service:   service,
		TxConfig:  toTxManagerConfig(cfg.Data.Postgres.Transaction),
		ObsConfig: toObservabilityConfig(cfg.Observability),
		PubSub:    toPubSubConfig(cfg.PubSub, service),
		Outbox:    toOutboxConfig(cfg.Outbox, cfg.Data.Postgres.Schema),
	}, nil
}

// ObservabilityInfo 将服务元信息转换为 observability.ServiceInfo。
func (m ServiceMetadata) ObservabilityInfo() obswire.ServiceInfo {
	return obswire.ServiceInfo{
		Name:        m.Name,
		Version:     m.Version,
		Environment: m.Environment,
	}
}

// ResolveConfPath 应用回退规则确定要加载的配置目录/文件路径。
// 优先级：显式传入路径 > CONF_PATH 环境变量 > 默认路径。
func ResolveConfPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envConfPath); env != "" {
		return env
	}
	return defaultConfPath
}

// loadConfig 加载并校验配置。
//
// 错误阶段：
//   - "load": 文件读取失败
//   - "scan": YAML/JSON 解析失败
//   - "validate": 必填字段缺失或约束不满足
func loadConfig(confPath string) (*Config, error) {
	c := config.New(config.WithSource(file.NewSource(confPath)))
	if err := c.Load(); err != nil {
		return nil, BuildError{Stage: "load", Path: confPath, Err: err}
	}
	defer c.Close()

	var cfg Config
	if err := c.Scan(&cfg); err != nil {
		return nil, BuildError{Stage: "scan", Path: confPath, Err: err}
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, BuildError{Stage: "validate", Path: confPath, Err: err}
	}
	return &cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖配置文件中的特定字段，环境变量为空时保留原值。
//
// 支持的环境变量：
//   - DATABASE_URL: 覆盖 data.postgres.dsn
//   - PORT: 覆盖 server.http.addr 的端口部分（保留 host，适配 Cloud Run）
//   - REDIS_ADDR: 覆盖 data.redis.addr
//   - GCS_BUCKET: 覆盖 storage.bucket
//   - TRANSCODER_ENDPOINT: 覆盖 transcoder.endpoint
//   - PUBSUB_EMULATOR_HOST: 覆盖 pubsub.emulator_endpoint
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		cfg.Data.Postgres.DSN = dsn
	}
	if port := os.Getenv(envPort); port != "" {
		cfg.Server.HTTP.Addr = replacePort(cfg.Server.HTTP.Addr, port)
	}
	if addr := os.Getenv(envRedisAddr); addr != "" {
		cfg.Data.Redis.Addr = addr
	}
	if bucket := os.Getenv(envGCSBucket); bucket != "" {
		cfg.Storage.Bucket = bucket
	}
	if endpoint := os.Getenv(envTranscoderEndpoint); endpoint != "" {
		cfg.Transcoder.Endpoint = endpoint
	}
	if emulator := os.Getenv(envPubSubEmulator); emulator != "" {
		cfg.PubSub.EmulatorEndpoint = emulator
	}
}

// buildServiceMetadata 构建服务元信息，数据来源为环境变量，缺失时使用默认值。
func buildServiceMetadata() ServiceMetadata {
	host, _ := os.Hostname()
	return ServiceMetadata{
		Name:        firstNonEmpty(os.Getenv(envServiceName), defaultServiceName),
		Version:     firstNonEmpty(os.Getenv(envServiceVersion), defaultServiceVersion),
		Environment: firstNonEmpty(os.Getenv(envAppEnv), defaultEnvironment),
		InstanceID:  host,
	}
}

// loadEnvFiles best-effort 加载配置相关的 .env 文件，失败时忽略以保持幂等。
func loadEnvFiles(confPath string) {
	files := envFileCandidates(confPath)
	if len(files) == 0 {
		return
	}
	_ = godotenv.Load(files...)
}

// envFileCandidates 按 confPath 目录 → 当前工作目录的顺序返回存在的 .env.local/.env 文件。
// godotenv 不覆盖已设置的变量，因此列表靠前的文件优先。
func envFileCandidates(confPath string) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, dir := range orderedDirs(confPath) {
		for _, name := range envFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			files = append(files, candidate)
			seen[candidate] = struct{}{}
		}
	}
	return files
}

func orderedDirs(confPath string) []string {
	var dirs []string
	appendUnique := func(path string) {
		if path == "" {
			return
		}
		clean := filepath.Clean(path)
		for _, existing := range dirs {
			if existing == clean {
				return
			}
		}
		dirs = append(dirs, clean)
	}

	if confPath != "" {
		if info, err := os.Stat(confPath); err == nil {
			if info.IsDir() {
				appendUnique(confPath)
			} else {
				appendUnique(filepath.Dir(confPath))
			}
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		appendUnique(cwd)
	}
	return dirs
}

// replacePort 替换地址中的端口部分，保留 host。
//   - "0.0.0.0:8000" -> "0.0.0.0:8080"
//   - "[::1]:8000" -> "[::1]:8080"
func replacePort(addr, newPort string) string {
	if addr == "" {
		return "0.0.0.0:" + newPort
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0:" + newPort
	}
	return net.JoinHostPort(host, newPort)
}

func toTxManagerConfig(tx TransactionConfig) txmanager.Config {
	return txmanager.Config{
		DefaultIsolation: tx.DefaultIsolation,
		DefaultTimeout:   tx.DefaultTimeout.Std(),
		LockTimeout:      tx.LockTimeout.Std(),
		MaxRetries:       tx.MaxRetries,
		MetricsEnabled:   tx.MetricsEnabled,
	}
}

// toObservabilityConfig 将 YAML 中的 observability 段转换为 observability 包的规范化结构。
func toObservabilityConfig(src ObservabilityConfig) obswire.ObservabilityConfig {
	tr, mt := src.Tracing, src.Metrics
	return obswire.ObservabilityConfig{
		GlobalAttributes: cloneStringMap(src.GlobalAttributes),
		Tracing: &obswire.TracingConfig{
			Enabled:       tr.Enabled,
			Exporter:      tr.Exporter,
			Endpoint:      tr.Endpoint,
			Headers:       cloneStringMap(tr.Headers),
			Insecure:      tr.Insecure,
			SamplingRatio: tr.SamplingRatio,
			BatchTimeout:  tr.BatchTimeout.Std(),
			ExportTimeout: tr.ExportTimeout.Std(),
			Required:      tr.Required,
		},
		Metrics: &obswire.MetricsConfig{
			Enabled:             mt.Enabled,
			Exporter:            mt.Exporter,
			Endpoint:            mt.Endpoint,
			Headers:             cloneStringMap(mt.Headers),
			Insecure:            mt.Insecure,
			Interval:            mt.Interval.Std(),
			DisableRuntimeStats: mt.DisableRuntimeStats,
			Required:            mt.Required,
		},
	}
}

// toPubSubConfig 转换为 gcpubsub.Config；指标命名空间跟随服务名。
func toPubSubConfig(src PubSubConfig, service ServiceMetadata) gcpubsub.Config {
	return gcpubsub.Config{
		ProjectID:           src.ProjectID,
		TopicID:             src.TopicID,
		SubscriptionID:      src.SubscriptionID,
		EmulatorEndpoint:    src.EmulatorEndpoint,
		OrderingKeyEnabled:  src.OrderingKeyEnabled,
		EnableLogging:       src.LoggingEnabled,
		EnableMetrics:       src.MetricsEnabled,
		MeterName:           service.Name + ".gcpubsub",
		ExactlyOnceDelivery: src.ExactlyOnceDelivery,
		Receive: gcpubsub.ReceiveConfig{
			NumGoroutines:          src.Receive.NumGoroutines,
			MaxOutstandingMessages: src.Receive.MaxOutstandingMessages,
			MaxOutstandingBytes:    src.Receive.MaxOutstandingBytes,
			MaxExtension:           src.Receive.MaxExtension.Std(),
			MaxExtensionPeriod:     src.Receive.MaxExtensionPeriod.Std(),
		},
	}
}

// toOutboxConfig 转换为 outbox 共享包配置；outbox_events 与业务表同在 schema 下。
func toOutboxConfig(src OutboxConfig, schema string) outboxcfg.Config {
	return outboxcfg.Config{
		Schema: firstNonEmpty(schema, defaultSchema),
		Publisher: outboxcfg.PublisherConfig{
			BatchSize:      src.BatchSize,
			TickInterval:   src.TickInterval.Std(),
			InitialBackoff: src.InitialBackoff.Std(),
			MaxBackoff:     src.MaxBackoff.Std(),
			MaxAttempts:    src.MaxAttempts,
			PublishTimeout: src.PublishTimeout.Std(),
			Workers:        src.Workers,
			LockTTL:        src.LockTTL.Std(),
		},
	}
}

func cloneStringMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
