// Package database 负责外联库的 PostgreSQL 连接池、事务管理器与就绪检查。
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredTables 为服务启动前必须已迁移的表。
var RequiredTables = []string{
	"outreach.video_outreach",
	"outreach.video_events",
	"outreach.outbox_events",
}

const startupTimeout = 5 * time.Second

// NewPgxPool 按配置建立连接池，并在返回前确认迁移已执行。
func NewPgxPool(ctx context.Context, cfg *loader.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("postgres configuration is required")
	}
	helper := log.NewHelper(logger)
	pgCfg := cfg.Data.Postgres

	poolConfig, err := BuildPoolConfig(pgCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := pool.Ping(startCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := VerifySchema(startCtx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	helper.Infof("postgres pool ready: dsn=%s max_conns=%d min_conns=%d schema=%s simple_protocol=%v slow_query=%s",
		RedactDSN(pgCfg.DSN), poolConfig.MaxConns, poolConfig.MinConns, pgCfg.Schema,
		!pgCfg.EnablePreparedStatements, pgCfg.SlowQueryThreshold.Std())

	cleanup := func() {
		helper.Info("closing postgres pool")
		pool.Close()
	}
	return pool, cleanup, nil
}

// BuildPoolConfig 将配置映射为 pgxpool.Config，不建立连接。
func BuildPoolConfig(pgCfg loader.PostgresConfig, logger log.Logger) (*pgxpool.Config, error) {
	if strings.TrimSpace(pgCfg.DSN) == "" {
		return nil, errors.New("postgres DSN is required (set DATABASE_URL)")
	}
	poolConfig, err := pgxpool.ParseConfig(pgCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN %s: %w", RedactDSN(pgCfg.DSN), err)
	}

	if pgCfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = pgCfg.MaxOpenConns
	}
	if pgCfg.MinOpenConns > 0 {
		poolConfig.MinConns = min(pgCfg.MinOpenConns, poolConfig.MaxConns)
	}
	for dst, src := range map[*time.Duration]loader.Duration{
		&poolConfig.MaxConnLifetime:   pgCfg.MaxConnLifetime,
		&poolConfig.MaxConnIdleTime:   pgCfg.MaxConnIdleTime,
		&poolConfig.HealthCheckPeriod: pgCfg.HealthCheckPeriod,
	} {
		if d := src.Std(); d > 0 {
			*dst = d
		}
	}

	if schema := strings.TrimSpace(pgCfg.Schema); schema != "" {
		searchPath := pgx.Identifier{schema}.Sanitize() + ", public"
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, "select set_config('search_path', $1, false)", searchPath); err != nil {
				return fmt.Errorf("set search_path %s: %w", searchPath, err)
			}
			return nil
		}
	}
	// 事务级连接池代理（Supabase Pooler、PgBouncer）不支持命名 prepared statement。
	if !pgCfg.EnablePreparedStatements {
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolConfig.ConnConfig.Tracer = &queryTracer{
		log:  log.NewHelper(logger),
		slow: pgCfg.SlowQueryThreshold.Std(),
	}
	return poolConfig, nil
}

// VerifySchema 确认外联相关表均已存在；缺表时返回列出表名的错误。
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) error {
	var missing []string
	for _, table := range RequiredTables {
		var found *string
		if err := pool.QueryRow(ctx, "select to_regclass($1)::text", table).Scan(&found); err != nil {
			return fmt.Errorf("verify schema: %w", err)
		}
		if found == nil {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("outreach schema not migrated, missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewTxManager 基于连接池构造事务管理器。
func NewTxManager(pool *pgxpool.Pool, cfg txmanager.Config, logger log.Logger) (txmanager.Manager, error) {
	if pool == nil {
		return nil, errors.New("txmanager: pool is required")
	}
	return txmanager.NewManager(pool, cfg, txmanager.Dependencies{Logger: logger})
}

// Pinger 用于就绪检查。
type Pinger struct {
	pool *pgxpool.Pool
}

// NewPinger 包装连接池的 Ping。
func NewPinger(pool *pgxpool.Pool) *Pinger {
	return &Pinger{pool: pool}
}

// Ping 在 2 秒内验证数据库可达。
func (p *Pinger) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return errors.New("postgres pool not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(pingCtx)
}

var keywordPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// RedactDSN 隐藏 DSN 中的密码，同时支持 URL 与 key=value 两种写法。
func RedactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "<unparseable dsn>"
		}
		if parsed.User != nil {
			if _, ok := parsed.User.Password(); ok {
				parsed.User = url.UserPassword(parsed.User.Username(), "***")
			}
		}
		return parsed.String()
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}***")
}

type queryStartKey struct{}

// queryTracer 只记录失败与慢查询，不落 SQL 参数。
type queryTracer struct {
	log  *log.Helper
	slow time.Duration
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	var elapsed time.Duration
	if started, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		elapsed = time.Since(started)
	}

	if data.Err != nil {
		if errors.Is(data.Err, pgx.ErrNoRows) {
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			// 唯一键与 CAS 冲突由仓储层翻译，这里降级为 Debug。
			if pgErr.Code == "23505" {
				t.log.WithContext(ctx).Debugf("postgres constraint hit: constraint=%s elapsed=%s", pgErr.ConstraintName, elapsed)
				return
			}
			t.log.WithContext(ctx).Errorf("postgres query failed: sqlstate=%s table=%s elapsed=%s err=%s",
				pgErr.Code, pgErr.TableName, elapsed, pgErr.Message)
			return
		}
		t.log.WithContext(ctx).Errorf("postgres query failed: elapsed=%s err=%v", elapsed, data.Err)
		return
	}
	if t.slow > 0 && elapsed >= t.slow {
		t.log.WithContext(ctx).Warnf("postgres slow query: command=%s elapsed=%s threshold=%s",
			data.CommandTag.String(), elapsed, t.slow)
	}
}
