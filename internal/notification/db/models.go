package db

import (
	"database/sql"
	"time"
)

// Notification は通知テーブルの1行を表す。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string
	// Type は通知の種類。
	Type string
	// Message は通知メッセージ。
	Message string
	// UserID は通知先のユーザーID。ClientIDと排他。
	UserID sql.NullString
	// ClientID は通知先のクライアントID。UserIDと排他。
	ClientID sql.NullString
	// Data は通知タイプごとの構造化ペイロード（JSON文字列）。
	Data sql.NullString
	// Status は既読状態（UNREAD / READ）。
	Status string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}
