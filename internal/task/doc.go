// Package task はタスク管理サービスを提供する。
//
// タスク・コメント・ユーザー・スキルのCRUDに加えて、タスク更新時には
// 更新前のスナップショットとの差分を計算し、変更をまとめた通知を
// 通知サービスへ送信する。通知の送信はベストエフォートであり、
// 失敗してもタスクの更新自体は成功として扱われる。
package task
