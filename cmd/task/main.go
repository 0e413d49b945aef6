// タスクサービスのエントリポイント。
// タスク・コメント・ユーザー・スキルの管理と、タスク更新時の
// 変更差分通知の送信を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/taskhub/internal/task"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server, err := task.NewServer(port)
	if err != nil {
		log.Fatalf("タスクサーバーの初期化に失敗: %v", err)
	}

	log.Printf("タスクサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("タスクサービスの起動に失敗: %v", err)
	}
}
