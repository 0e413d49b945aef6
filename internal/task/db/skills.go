package db

import (
	"context"
)

const createSkill = `
INSERT INTO skills (id, name) VALUES (?, ?)
`

// CreateSkill はスキルを1件作成する。
func (q *Queries) CreateSkill(ctx context.Context, id, name string) error {
	_, err := q.db.ExecContext(ctx, createSkill, id, name)
	return err
}

const listSkills = `
SELECT id, name FROM skills ORDER BY name
`

// ListSkills は全スキルを名前順に取得する。
func (q *Queries) ListSkills(ctx context.Context) ([]Skill, error) {
	rows, err := q.db.QueryContext(ctx, listSkills)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var skills []Skill
	for rows.Next() {
		var s Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

const getSkillByID = `
SELECT id, name FROM skills WHERE id = ?
`

// GetSkillByID はIDでスキルを1件取得する。
func (q *Queries) GetSkillByID(ctx context.Context, id string) (Skill, error) {
	row := q.db.QueryRowContext(ctx, getSkillByID, id)
	var s Skill
	err := row.Scan(&s.ID, &s.Name)
	return s, err
}

const listTaskSkills = `
SELECT s.id, s.name
FROM task_skills ts
JOIN skills s ON s.id = ts.skill_id
WHERE ts.task_id = ?
ORDER BY s.name
`

// ListTaskSkills はタスクに紐づくスキルを名前順に取得する。
func (q *Queries) ListTaskSkills(ctx context.Context, taskID string) ([]Skill, error) {
	rows, err := q.db.QueryContext(ctx, listTaskSkills, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var skills []Skill
	for rows.Next() {
		var s Skill
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

const deleteTaskSkills = `
DELETE FROM task_skills WHERE task_id = ?
`

const insertTaskSkill = `
INSERT INTO task_skills (task_id, skill_id) VALUES (?, ?)
`

// ReplaceTaskSkills はタスクのスキル集合を指定された集合に入れ替える。
func (q *Queries) ReplaceTaskSkills(ctx context.Context, taskID string, skillIDs []string) error {
	if _, err := q.db.ExecContext(ctx, deleteTaskSkills, taskID); err != nil {
		return err
	}
	for _, skillID := range skillIDs {
		if _, err := q.db.ExecContext(ctx, insertTaskSkill, taskID, skillID); err != nil {
			return err
		}
	}
	return nil
}
