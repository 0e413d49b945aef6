package task

import (
	taskdb "github.com/nao1215/taskhub/internal/task/db"
	"github.com/nao1215/taskhub/pkg/notice"
)

// supervisoryRole は監督側のロールかどうかを返す。
// 監督側のロールが作成したタスクは同僚への作成通知を発生させない。
func supervisoryRole(role notice.Role) bool {
	return role == notice.RoleTaskSupervisor || role == notice.RoleAdmin
}

// creationNotifyRoles はタスク作成者のロールから、作成通知を受け取るロールの
// 一覧を返す。ロールごとの分岐を1箇所に集めたルーティングテーブル。
//
//	CLIENT / AGENT     → TASK_SUPERVISOR全員へ通知
//	TASK_SUPERVISOR / ADMIN → 通知なし
func creationNotifyRoles(creator notice.Role) []notice.Role {
	if supervisoryRole(creator) {
		return nil
	}
	return []notice.Role{notice.RoleTaskSupervisor}
}

// updateRecipientIDs は更新通知の宛先ユーザーIDを返す。
// 宛先はタスクの作成者と現在の担当者で、更新を行った本人は除外する。
func updateRecipientIDs(t taskdb.TaskDetail, actorID string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, id := range []string{t.CreatedByID, t.AssignedToID.String} {
		if id == "" || id == actorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
