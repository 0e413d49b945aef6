package db

import (
	"context"
)

const getStatusByName = `
SELECT id, name, label FROM task_statuses WHERE name = ?
`

// GetStatusByName はキーでステータスのマスタを1件取得する。
func (q *Queries) GetStatusByName(ctx context.Context, name string) (Lookup, error) {
	return q.getLookup(ctx, getStatusByName, name)
}

const getPriorityByName = `
SELECT id, name, label FROM task_priorities WHERE name = ?
`

// GetPriorityByName はキーで優先度のマスタを1件取得する。
func (q *Queries) GetPriorityByName(ctx context.Context, name string) (Lookup, error) {
	return q.getLookup(ctx, getPriorityByName, name)
}

const getCategoryByName = `
SELECT id, name, label FROM task_categories WHERE name = ?
`

// GetCategoryByName はキーでカテゴリのマスタを1件取得する。
func (q *Queries) GetCategoryByName(ctx context.Context, name string) (Lookup, error) {
	return q.getLookup(ctx, getCategoryByName, name)
}

// getLookup はマスタ取得クエリの共通処理。
func (q *Queries) getLookup(ctx context.Context, query, name string) (Lookup, error) {
	row := q.db.QueryRowContext(ctx, query, name)
	var l Lookup
	err := row.Scan(&l.ID, &l.Name, &l.Label)
	return l, err
}
