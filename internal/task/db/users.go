package db

import (
	"context"
	"database/sql"
)

const createUser = `
INSERT INTO users (id, name, email, role, client_id)
VALUES (?, ?, ?, ?, ?)
`

// CreateUserParams はCreateUserのパラメータ。
type CreateUserParams struct {
	ID       string
	Name     string
	Email    string
	Role     string
	ClientID sql.NullString
}

// CreateUser はユーザーを1件作成する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID, arg.Name, arg.Email, arg.Role, arg.ClientID)
	return err
}

const getUserByID = `
SELECT id, name, email, role, client_id, created_at
FROM users
WHERE id = ?
`

// GetUserByID はIDでユーザーを1件取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ClientID, &u.CreatedAt)
	return u, err
}

const listUsers = `
SELECT id, name, email, role, client_id, created_at
FROM users
ORDER BY name
`

// ListUsers は全ユーザーを氏名順に取得する。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	return q.listUsers(ctx, listUsers)
}

const listUsersByRole = `
SELECT id, name, email, role, client_id, created_at
FROM users
WHERE role = ?
ORDER BY name
`

// ListUsersByRole は指定ロールのユーザーを氏名順に取得する。
func (q *Queries) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	return q.listUsers(ctx, listUsersByRole, role)
}

// listUsers はユーザー一覧クエリの共通処理。
func (q *Queries) listUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.ClientID, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
