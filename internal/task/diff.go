package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	taskdb "github.com/nao1215/taskhub/internal/task/db"
	"github.com/nao1215/taskhub/pkg/notice"
)

// assigneeRef は参照解決済みの担当者。IDが空文字列の場合は担当解除を表す。
type assigneeRef struct {
	// ID は担当者のユーザーID。
	ID string
	// Name は担当者の氏名。
	Name string
}

// updateInput は参照解決済みの更新内容。
// nilのフィールドは「リクエストに含まれなかった＝変更なし」を表し、
// 空の値へのクリアとは区別される。
type updateInput struct {
	// Title はタイトル。
	Title *string
	// Description は説明。
	Description *string
	// Status は解決済みのステータス。
	Status *taskdb.Lookup
	// Priority は解決済みの優先度。
	Priority *taskdb.Lookup
	// Category は解決済みのカテゴリ。
	Category *taskdb.Lookup
	// DueDate は期日（YYYY-MM-DD）。空文字列はクリアを表す。
	DueDate *string
	// EstimatedHours は見積もり時間。
	EstimatedHours *float64
	// Assignee は解決済みの担当者。
	Assignee *assigneeRef
	// Skills は解決済みのスキル集合。
	Skills *[]taskdb.Skill
}

// computeChanges は更新前のスナップショットと更新内容を比較し、
// 実際に値が変わるフィールドだけを変更一覧として返す。
// リクエストに含まれなかったフィールドは比較対象にならない。
func computeChanges(before taskdb.TaskDetail, beforeSkills []taskdb.Skill, in updateInput) []notice.FieldChange {
	var changes []notice.FieldChange

	if in.Status != nil && in.Status.ID != before.StatusID {
		changes = append(changes, notice.FieldChange{
			Field:           "status",
			OldValue:        before.StatusName,
			NewValue:        in.Status.Name,
			DisplayOldValue: before.StatusLabel,
			DisplayNewValue: in.Status.Label,
		})
	}

	if in.Priority != nil && in.Priority.ID != before.PriorityID {
		changes = append(changes, notice.FieldChange{
			Field:           "priority",
			OldValue:        before.PriorityName,
			NewValue:        in.Priority.Name,
			DisplayOldValue: before.PriorityLabel,
			DisplayNewValue: in.Priority.Label,
		})
	}

	if in.Category != nil && (!before.CategoryID.Valid || in.Category.ID != before.CategoryID.Int64) {
		changes = append(changes, notice.FieldChange{
			Field:           "category",
			OldValue:        before.CategoryName.String,
			NewValue:        in.Category.Name,
			DisplayOldValue: displayOrFallback(before.CategoryLabel.String, "None"),
			DisplayNewValue: in.Category.Label,
		})
	}

	if in.Title != nil && *in.Title != before.Title {
		changes = append(changes, notice.FieldChange{
			Field:           "title",
			OldValue:        before.Title,
			NewValue:        *in.Title,
			DisplayOldValue: before.Title,
			DisplayNewValue: *in.Title,
		})
	}

	if in.Description != nil && *in.Description != before.Description {
		changes = append(changes, notice.FieldChange{
			Field:           "description",
			OldValue:        before.Description,
			NewValue:        *in.Description,
			DisplayOldValue: before.Description,
			DisplayNewValue: *in.Description,
		})
	}

	if in.DueDate != nil {
		// 期日は時刻を無視して日付単位で比較する
		oldDate := normalizeDate(before.DueDate.String)
		newDate := normalizeDate(*in.DueDate)
		if oldDate != newDate {
			changes = append(changes, notice.FieldChange{
				Field:           "dueDate",
				OldValue:        oldDate,
				NewValue:        newDate,
				DisplayOldValue: displayOrFallback(oldDate, "Not set"),
				DisplayNewValue: displayOrFallback(newDate, "Not set"),
			})
		}
	}

	if in.EstimatedHours != nil {
		// 数値は正規化した10進文字列で比較する（12.50と12.5を同一視する）
		oldNorm := ""
		if before.EstimatedHours.Valid {
			oldNorm = formatDecimal(before.EstimatedHours.Float64)
		}
		newNorm := formatDecimal(*in.EstimatedHours)
		if oldNorm != newNorm {
			oldDisplay := "Not set"
			if before.EstimatedHours.Valid {
				oldDisplay = formatEstimate(before.EstimatedHours.Float64)
			}
			changes = append(changes, notice.FieldChange{
				Field:           "estimatedHours",
				OldValue:        oldNorm,
				NewValue:        newNorm,
				DisplayOldValue: oldDisplay,
				DisplayNewValue: formatEstimate(*in.EstimatedHours),
			})
		}
	}

	if in.Assignee != nil && in.Assignee.ID != before.AssignedToID.String {
		changes = append(changes, notice.FieldChange{
			Field:           "assignedTo",
			OldValue:        before.AssignedToID.String,
			NewValue:        in.Assignee.ID,
			DisplayOldValue: displayOrFallback(before.AssigneeName.String, "Unassigned"),
			DisplayNewValue: displayOrFallback(in.Assignee.Name, "Unassigned"),
		})
	}

	if in.Skills != nil {
		// スキルは順序に依存しない集合として比較する
		oldIDs := sortedSkillIDs(beforeSkills)
		newIDs := sortedSkillIDs(*in.Skills)
		if strings.Join(oldIDs, ",") != strings.Join(newIDs, ",") {
			changes = append(changes, notice.FieldChange{
				Field:           "skills",
				OldValue:        strings.Join(oldIDs, ","),
				NewValue:        strings.Join(newIDs, ","),
				DisplayOldValue: displayOrFallback(joinSkillNames(beforeSkills), "None"),
				DisplayNewValue: displayOrFallback(joinSkillNames(*in.Skills), "None"),
			})
		}
	}

	return changes
}

// normalizeDate は期日文字列を日付（YYYY-MM-DD）へ正規化する。
// RFC3339形式の場合は時刻部分を切り捨てる。日付として解釈できない
// 入力は切り詰めずそのまま返す。空文字列はそのまま返す。
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02")
	}
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return s
}

// validDate はsがYYYY-MM-DD形式の日付かどうかを返す。
func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// formatDecimal は末尾のゼロを落とした10進文字列を返す。
func formatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatEstimate は見積もり時間を週・日・時間の組み合わせで表示する。
// 1日は8時間、1週間は40時間として換算する。
func formatEstimate(hours float64) string {
	if hours <= 0 {
		return "0h"
	}

	weeks := int(hours / 40)
	rem := hours - float64(weeks)*40
	days := int(rem / 8)
	remHours := rem - float64(days)*8

	var parts []string
	if weeks > 0 {
		parts = append(parts, fmt.Sprintf("%dw", weeks))
	}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if remHours > 0 {
		parts = append(parts, formatDecimal(remHours)+"h")
	}
	if len(parts) == 0 {
		return "0h"
	}
	return strings.Join(parts, " ")
}

// sortedSkillIDs はスキルIDをソート済みスライスとして返す。
func sortedSkillIDs(skills []taskdb.Skill) []string {
	ids := make([]string, 0, len(skills))
	for _, s := range skills {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// joinSkillNames はスキル名をソートしてカンマ区切りで連結する。
func joinSkillNames(skills []taskdb.Skill) string {
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// displayOrFallback は値が空の場合に代替表示を返す。
func displayOrFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
