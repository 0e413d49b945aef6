package notice

// Role はダッシュボード上のアカウントのロールを表す。
type Role string

const (
	// RoleClient は依頼主（クライアント）アカウントを表す。
	RoleClient Role = "CLIENT"
	// RoleAgent はタスクを割り当て可能な作業者アカウントを表す。
	RoleAgent Role = "AGENT"
	// RoleTaskSupervisor はタスクの監督者アカウントを表す。
	RoleTaskSupervisor Role = "TASK_SUPERVISOR"
	// RoleAdmin は管理者アカウントを表す。
	RoleAdmin Role = "ADMIN"
)

// ValidRole はroleが既知のロールかどうかを返す。
func ValidRole(role string) bool {
	switch Role(role) {
	case RoleClient, RoleAgent, RoleTaskSupervisor, RoleAdmin:
		return true
	}
	return false
}

// Status は通知の既読状態を表す。
// 遷移はUNREAD→READの一方向のみで、それ以外のライフサイクルは持たない。
type Status string

const (
	// StatusUnread は未読状態を表す。作成時の初期状態。
	StatusUnread Status = "UNREAD"
	// StatusRead は既読状態を表す。
	StatusRead Status = "READ"
)

// Type は通知の種類を表す。
type Type string

const (
	// TypeTaskCreated はタスクが新規作成されたことを表す。
	TypeTaskCreated Type = "TASK_CREATED"
	// TypeTaskAssigned はタスクが担当者に割り当てられたことを表す。
	TypeTaskAssigned Type = "TASK_ASSIGNED"
	// TypeTaskUpdated はタスクのフィールドが変更されたことを表す。
	// 複数の変更は1件の通知にまとめられる。
	TypeTaskUpdated Type = "TASK_UPDATED"
	// TypeCommentAdded はタスクにコメントが追加されたことを表す。
	TypeCommentAdded Type = "COMMENT_ADDED"
	// TypePaymentReceived はクライアントからの入金があったことを表す。
	TypePaymentReceived Type = "PAYMENT_RECEIVED"
)

// FieldChange はタスク更新における1フィールドの変更を表す。
// 更新のたびに生成され、通知のディスパッチ後は破棄される（永続化しない）。
type FieldChange struct {
	// Field は変更されたフィールド名（例: "priority"）。
	Field string `json:"field"`
	// OldValue は変更前の生の値。
	OldValue string `json:"oldValue"`
	// NewValue は変更後の生の値。
	NewValue string `json:"newValue"`
	// DisplayOldValue は変更前の表示用の値（例: "Normal"）。
	DisplayOldValue string `json:"displayOldValue"`
	// DisplayNewValue は変更後の表示用の値（例: "Urgent"）。
	DisplayNewValue string `json:"displayNewValue"`
}

// TaskCreatedData はTASK_CREATED通知のペイロード。
type TaskCreatedData struct {
	// TaskID は作成されたタスクのID。
	TaskID string `json:"taskId"`
	// Title はタスクのタイトル。
	Title string `json:"title"`
	// CreatedByID はタスクを作成したユーザーのID。
	CreatedByID string `json:"createdById"`
	// CreatedByName はタスクを作成したユーザーの氏名。
	CreatedByName string `json:"createdByName"`
}

// TaskAssignedData はTASK_ASSIGNED通知のペイロード。
type TaskAssignedData struct {
	// TaskID は割り当てられたタスクのID。
	TaskID string `json:"taskId"`
	// Title はタスクのタイトル。
	Title string `json:"title"`
	// AssignedByID は割り当てを行ったユーザーのID。
	AssignedByID string `json:"assignedById"`
	// AssignedByName は割り当てを行ったユーザーの氏名。
	AssignedByName string `json:"assignedByName"`
}

// TaskUpdatedData はTASK_UPDATED通知のペイロード。
// 1回の更新で生じたすべてのフィールド変更を1件にまとめて運ぶ。
type TaskUpdatedData struct {
	// TaskID は更新されたタスクのID。
	TaskID string `json:"taskId"`
	// Title はタスクのタイトル（更新後）。
	Title string `json:"title"`
	// UpdatedByID は更新を行ったユーザーのID。
	UpdatedByID string `json:"updatedById"`
	// UpdatedByName は更新を行ったユーザーの氏名。
	UpdatedByName string `json:"updatedByName"`
	// Changes は変更されたフィールドの一覧。
	Changes []FieldChange `json:"changes"`
}

// CommentAddedData はCOMMENT_ADDED通知のペイロード。
type CommentAddedData struct {
	// TaskID はコメントが付いたタスクのID。
	TaskID string `json:"taskId"`
	// CommentID は追加されたコメントのID。
	CommentID string `json:"commentId"`
	// AuthorID はコメントを書いたユーザーのID。
	AuthorID string `json:"authorId"`
	// AuthorName はコメントを書いたユーザーの氏名。
	AuthorName string `json:"authorName"`
}

// PaymentReceivedData はPAYMENT_RECEIVED通知のペイロード。
type PaymentReceivedData struct {
	// ClientID は入金したクライアントのID。
	ClientID string `json:"clientId"`
	// Amount は入金額。
	Amount string `json:"amount"`
	// Currency は通貨コード（例: "JPY"）。
	Currency string `json:"currency"`
}
