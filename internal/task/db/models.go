package db

import (
	"database/sql"
	"time"
)

// User はユーザーテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Name は氏名。
	Name string
	// Email はメールアドレス。
	Email string
	// Role はロール（CLIENT / AGENT / TASK_SUPERVISOR / ADMIN）。
	Role string
	// ClientID はCLIENTロールのユーザーが属するクライアントID。
	ClientID sql.NullString
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Lookup はステータス・優先度・カテゴリ共通のマスタ行を表す。
type Lookup struct {
	// ID はマスタの一意識別子。
	ID int64
	// Name はキー（URGENTなど）。
	Name string
	// Label は画面表示用のラベル（Urgentなど）。
	Label string
}

// Skill はスキルテーブルの1行を表す。
type Skill struct {
	// ID はスキルの一意識別子（UUID）。
	ID string
	// Name はスキル名。
	Name string
}

// Task はタスクテーブルの1行を表す。
type Task struct {
	// ID はタスクの一意識別子（UUID）。
	ID string
	// Title はタイトル。下書きの間は空文字列。
	Title string
	// Description は説明。
	Description string
	// StatusID はステータスのマスタID。
	StatusID int64
	// PriorityID は優先度のマスタID。
	PriorityID int64
	// CategoryID はカテゴリのマスタID。
	CategoryID sql.NullInt64
	// ClientID は依頼元のクライアントID。
	ClientID sql.NullString
	// CreatedByID はタスクを作成したユーザーのID。
	CreatedByID string
	// AssignedToID は担当者のユーザーID。未割り当ての場合は無効。
	AssignedToID sql.NullString
	// DueDate は期日（YYYY-MM-DD）。
	DueDate sql.NullString
	// EstimatedHours は見積もり時間（時間単位の小数）。
	EstimatedHours sql.NullFloat64
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// TaskDetail はマスタのラベルと担当者名を解決済みのタスク行を表す。
type TaskDetail struct {
	Task
	// StatusName はステータスのキー。
	StatusName string
	// StatusLabel はステータスの表示ラベル。
	StatusLabel string
	// PriorityName は優先度のキー。
	PriorityName string
	// PriorityLabel は優先度の表示ラベル。
	PriorityLabel string
	// CategoryName はカテゴリのキー。
	CategoryName sql.NullString
	// CategoryLabel はカテゴリの表示ラベル。
	CategoryLabel sql.NullString
	// AssigneeName は担当者の氏名。
	AssigneeName sql.NullString
	// CreatedByName は作成者の氏名。
	CreatedByName string
}

// Comment はコメントテーブルの1行を表す。
type Comment struct {
	// ID はコメントの一意識別子（UUID）。
	ID string
	// TaskID はコメント先のタスクID。
	TaskID string
	// AuthorID は投稿者のユーザーID。
	AuthorID string
	// Body は本文。
	Body string
	// CreatedAt は投稿日時。
	CreatedAt time.Time
}

// CommentDetail は投稿者名を解決済みのコメント行を表す。
type CommentDetail struct {
	Comment
	// AuthorName は投稿者の氏名。
	AuthorName string
}
