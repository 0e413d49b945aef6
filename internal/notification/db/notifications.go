package db

import (
	"context"
	"database/sql"
)

const createNotification = `
INSERT INTO notifications (id, type, message, user_id, client_id, data, status)
VALUES (?, ?, ?, ?, ?, ?, 'UNREAD')
`

// CreateNotificationParams はCreateNotificationのパラメータ。
type CreateNotificationParams struct {
	ID       string
	Type     string
	Message  string
	UserID   sql.NullString
	ClientID sql.NullString
	Data     sql.NullString
}

// CreateNotification は未読状態の通知を1件作成する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.ID, arg.Type, arg.Message, arg.UserID, arg.ClientID, arg.Data)
	return err
}

const getNotificationByID = `
SELECT id, type, message, user_id, client_id, data, status, created_at, updated_at
FROM notifications
WHERE id = ?
`

// GetNotificationByID はIDで通知を1件取得する。
func (q *Queries) GetNotificationByID(ctx context.Context, id string) (Notification, error) {
	row := q.db.QueryRowContext(ctx, getNotificationByID, id)
	var n Notification
	err := row.Scan(&n.ID, &n.Type, &n.Message, &n.UserID, &n.ClientID,
		&n.Data, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

const listNotificationsByUserID = `
SELECT id, type, message, user_id, client_id, data, status, created_at, updated_at
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC
`

// ListNotificationsByUserID はユーザー宛の通知を新しい順に取得する。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID string) ([]Notification, error) {
	return q.listNotifications(ctx, listNotificationsByUserID, userID)
}

const listNotificationsByClientID = `
SELECT id, type, message, user_id, client_id, data, status, created_at, updated_at
FROM notifications
WHERE client_id = ?
ORDER BY created_at DESC
`

// ListNotificationsByClientID はクライアント宛の通知を新しい順に取得する。
func (q *Queries) ListNotificationsByClientID(ctx context.Context, clientID string) ([]Notification, error) {
	return q.listNotifications(ctx, listNotificationsByClientID, clientID)
}

// listNotifications は一覧クエリの共通処理。
func (q *Queries) listNotifications(ctx context.Context, query, arg string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &n.UserID, &n.ClientID,
			&n.Data, &n.Status, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

const markNotificationRead = `
UPDATE notifications
SET status = 'READ', updated_at = datetime('now')
WHERE id = ?
`

// MarkNotificationRead は通知を既読にする。既読済みの通知に対しては何も変わらない。
func (q *Queries) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markNotificationRead, id)
	return err
}
