package notice

import (
	"testing"
)

// TestEncodeDecodeData は通知ペイロードのシリアライズとデシリアライズを検証する。
func TestEncodeDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("TaskUpdatedDataの変更一覧が保持されること", func(t *testing.T) {
		t.Parallel()

		original := TaskUpdatedData{
			TaskID:        "task-1",
			Title:         "APIの実装",
			UpdatedByID:   "user-1",
			UpdatedByName: "山田太郎",
			Changes: []FieldChange{
				{
					Field:           "priority",
					OldValue:        "NORMAL",
					NewValue:        "URGENT",
					DisplayOldValue: "Normal",
					DisplayNewValue: "Urgent",
				},
			},
		}

		raw, err := EncodeData(original)
		if err != nil {
			t.Fatalf("EncodeData()でエラーが発生: %v", err)
		}

		decoded, err := DecodeData[TaskUpdatedData](raw)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}

		if decoded.TaskID != "task-1" {
			t.Errorf("TaskID = %q, want %q", decoded.TaskID, "task-1")
		}
		if len(decoded.Changes) != 1 {
			t.Fatalf("変更の数 = %d, want 1", len(decoded.Changes))
		}
		if decoded.Changes[0].DisplayOldValue != "Normal" {
			t.Errorf("DisplayOldValue = %q, want %q", decoded.Changes[0].DisplayOldValue, "Normal")
		}
		if decoded.Changes[0].DisplayNewValue != "Urgent" {
			t.Errorf("DisplayNewValue = %q, want %q", decoded.Changes[0].DisplayNewValue, "Urgent")
		}
	})

	t.Run("JSONのキーがcamelCaseであること", func(t *testing.T) {
		t.Parallel()

		raw, err := EncodeData(TaskAssignedData{
			TaskID:         "task-2",
			Title:          "デザインレビュー",
			AssignedByID:   "user-9",
			AssignedByName: "佐藤花子",
		})
		if err != nil {
			t.Fatalf("EncodeData()でエラーが発生: %v", err)
		}

		decoded, err := DecodeData[map[string]any](raw)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		for _, key := range []string{"taskId", "title", "assignedById", "assignedByName"} {
			if _, ok := (*decoded)[key]; !ok {
				t.Errorf("キー %q が含まれていない", key)
			}
		}
	})

	t.Run("不正なJSONでDecodeDataがエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		if _, err := DecodeData[TaskCreatedData]([]byte(`{broken`)); err == nil {
			t.Fatal("不正なJSONでエラーが返るべき")
		}
	})
}
