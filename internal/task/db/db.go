// Package db はタスクサービスのデータアクセス層を提供する。
package db

import (
	"context"
	"database/sql"
)

// DBTX はクエリ実行に必要なデータベース操作のインターフェース。
// *sql.DBと*sql.Txの両方を受け付ける。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries はタスクサービスのテーブルへのクエリをまとめた実行オブジェクト。
type Queries struct {
	db DBTX
}

// WithTx はトランザクション内で実行するQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
