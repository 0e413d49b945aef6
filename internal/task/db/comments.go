package db

import (
	"context"
)

const createComment = `
INSERT INTO comments (id, task_id, author_id, body) VALUES (?, ?, ?, ?)
`

// CreateCommentParams はCreateCommentのパラメータ。
type CreateCommentParams struct {
	ID       string
	TaskID   string
	AuthorID string
	Body     string
}

// CreateComment はコメントを1件作成する。
func (q *Queries) CreateComment(ctx context.Context, arg CreateCommentParams) error {
	_, err := q.db.ExecContext(ctx, createComment, arg.ID, arg.TaskID, arg.AuthorID, arg.Body)
	return err
}

const getCommentByID = `
SELECT c.id, c.task_id, c.author_id, c.body, c.created_at, u.name
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.id = ?
`

// GetCommentByID はIDでコメントを1件取得する。
func (q *Queries) GetCommentByID(ctx context.Context, id string) (CommentDetail, error) {
	row := q.db.QueryRowContext(ctx, getCommentByID, id)
	var c CommentDetail
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.AuthorName)
	return c, err
}

const listCommentsByTaskID = `
SELECT c.id, c.task_id, c.author_id, c.body, c.created_at, u.name
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.task_id = ?
ORDER BY c.created_at
`

// ListCommentsByTaskID はタスクのコメントを古い順に取得する。
func (q *Queries) ListCommentsByTaskID(ctx context.Context, taskID string) ([]CommentDetail, error) {
	rows, err := q.db.QueryContext(ctx, listCommentsByTaskID, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var comments []CommentDetail
	for rows.Next() {
		var c CommentDetail
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.AuthorName); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
