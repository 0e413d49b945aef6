package task

import (
	"embed"
)

// migrationsFS はスキーマ定義とマスタの初期データのマイグレーションを保持する。
//
//go:embed migrations/*.up.sql
var migrationsFS embed.FS
