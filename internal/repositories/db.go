// Package repositories 实现数据访问层，基于 pgx/v5 直接执行 SQL，并与 TxManager Session 协作。
package repositories

import (
	"context"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX 为连接池与事务共享的最小查询接口。
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// pick 在事务内返回 tx，否则返回连接池。
func pick(pool *pgxpool.Pool, sess txmanager.Session) DBTX {
	if sess != nil {
		if tx := sess.Tx(); tx != nil {
			return tx
		}
	}
	return pool
}
