package notification

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。通知の宛先はuser_idまたはclient_idのどちらか一方のみ。
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    -- 通知の一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 通知の種類（TASK_CREATED / TASK_ASSIGNED / TASK_UPDATED など）
    type TEXT NOT NULL,
    -- 通知メッセージ
    message TEXT NOT NULL,
    -- 通知先のユーザーID（client_idと排他）
    user_id TEXT,
    -- 通知先のクライアントID（user_idと排他）
    client_id TEXT,
    -- 通知タイプごとの構造化ペイロード（JSON）
    data TEXT,
    -- 既読状態（UNREAD / READ）
    status TEXT NOT NULL DEFAULT 'UNREAD',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時（既読化のタイミングで更新される）
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    CHECK ((user_id IS NULL) != (client_id IS NULL))
);

-- ユーザーIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_user_id
    ON notifications(user_id) WHERE user_id IS NOT NULL;

-- クライアントIDでの検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_notifications_client_id
    ON notifications(client_id) WHERE client_id IS NOT NULL;
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
