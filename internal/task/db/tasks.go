package db

import (
	"context"
	"database/sql"
)

const createTask = `
INSERT INTO tasks (id, title, description, status_id, priority_id, category_id,
                   client_id, created_by_id, assigned_to_id, due_date, estimated_hours)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateTaskParams はCreateTaskのパラメータ。
type CreateTaskParams struct {
	ID             string
	Title          string
	Description    string
	StatusID       int64
	PriorityID     int64
	CategoryID     sql.NullInt64
	ClientID       sql.NullString
	CreatedByID    string
	AssignedToID   sql.NullString
	DueDate        sql.NullString
	EstimatedHours sql.NullFloat64
}

// CreateTask はタスクを1件作成する。
func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) error {
	_, err := q.db.ExecContext(ctx, createTask,
		arg.ID, arg.Title, arg.Description, arg.StatusID, arg.PriorityID, arg.CategoryID,
		arg.ClientID, arg.CreatedByID, arg.AssignedToID, arg.DueDate, arg.EstimatedHours)
	return err
}

const taskDetailColumns = `
SELECT t.id, t.title, t.description, t.status_id, t.priority_id, t.category_id,
       t.client_id, t.created_by_id, t.assigned_to_id, t.due_date, t.estimated_hours,
       t.created_at, t.updated_at,
       st.name, st.label,
       pr.name, pr.label,
       ca.name, ca.label,
       asg.name,
       cre.name
FROM tasks t
JOIN task_statuses st ON st.id = t.status_id
JOIN task_priorities pr ON pr.id = t.priority_id
LEFT JOIN task_categories ca ON ca.id = t.category_id
LEFT JOIN users asg ON asg.id = t.assigned_to_id
JOIN users cre ON cre.id = t.created_by_id
`

const getTaskDetail = taskDetailColumns + `
WHERE t.id = ?
`

// GetTaskDetail はマスタのラベルと担当者名を解決した状態でタスクを1件取得する。
func (q *Queries) GetTaskDetail(ctx context.Context, id string) (TaskDetail, error) {
	row := q.db.QueryRowContext(ctx, getTaskDetail, id)
	var t TaskDetail
	err := scanTaskDetail(row.Scan, &t)
	return t, err
}

const listTaskDetails = taskDetailColumns + `
ORDER BY t.created_at DESC
`

// ListTaskDetails は全タスクを新しい順に取得する。
func (q *Queries) ListTaskDetails(ctx context.Context) ([]TaskDetail, error) {
	rows, err := q.db.QueryContext(ctx, listTaskDetails)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []TaskDetail
	for rows.Next() {
		var t TaskDetail
		if err := scanTaskDetail(rows.Scan, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanTaskDetail はタスク詳細行のスキャン処理の共通化。
func scanTaskDetail(scan func(...any) error, t *TaskDetail) error {
	return scan(
		&t.ID, &t.Title, &t.Description, &t.StatusID, &t.PriorityID, &t.CategoryID,
		&t.ClientID, &t.CreatedByID, &t.AssignedToID, &t.DueDate, &t.EstimatedHours,
		&t.CreatedAt, &t.UpdatedAt,
		&t.StatusName, &t.StatusLabel,
		&t.PriorityName, &t.PriorityLabel,
		&t.CategoryName, &t.CategoryLabel,
		&t.AssigneeName,
		&t.CreatedByName,
	)
}

const updateTask = `
UPDATE tasks
SET title = ?, description = ?, status_id = ?, priority_id = ?, category_id = ?,
    assigned_to_id = ?, due_date = ?, estimated_hours = ?, updated_at = datetime('now')
WHERE id = ?
`

// UpdateTaskParams はUpdateTaskのパラメータ。
type UpdateTaskParams struct {
	ID             string
	Title          string
	Description    string
	StatusID       int64
	PriorityID     int64
	CategoryID     sql.NullInt64
	AssignedToID   sql.NullString
	DueDate        sql.NullString
	EstimatedHours sql.NullFloat64
}

// UpdateTask はタスクを更新する。
func (q *Queries) UpdateTask(ctx context.Context, arg UpdateTaskParams) error {
	_, err := q.db.ExecContext(ctx, updateTask,
		arg.Title, arg.Description, arg.StatusID, arg.PriorityID, arg.CategoryID,
		arg.AssignedToID, arg.DueDate, arg.EstimatedHours, arg.ID)
	return err
}

const deleteTask = `
DELETE FROM tasks WHERE id = ?
`

// DeleteTask はタスクを削除する。紐づくスキルとコメントも削除される。
func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteTask, id)
	return err
}
