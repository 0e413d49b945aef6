package task

import (
	"context"
	"encoding/json"
	"fmt"

	taskdb "github.com/nao1215/taskhub/internal/task/db"
	"github.com/nao1215/taskhub/pkg/httpclient"
	"github.com/nao1215/taskhub/pkg/notice"
)

// Notifier は通知サービスへのHTTPクライアント。
// タスクの変更を通知レコードの作成リクエストに変換して送信する。
type Notifier struct {
	// client は通知サービスへの通信クライアント。
	client *httpclient.Client
}

// NewNotifier は新しいNotifierを生成する。
func NewNotifier(baseURL string) *Notifier {
	return &Notifier{client: httpclient.New(baseURL)}
}

// createNotificationRequest は通知サービスの作成APIのJSON構造。
// 通知サービスのAPIはcamelCaseのキーを使う。
type createNotificationRequest struct {
	// Type は通知の種類。
	Type string `json:"type"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// UserID は通知先のユーザーID。ClientIDと排他。
	UserID string `json:"userId,omitempty"`
	// ClientID は通知先のクライアントID。UserIDと排他。
	ClientID string `json:"clientId,omitempty"`
	// Data は通知タイプごとの構造化ペイロード。
	Data json.RawMessage `json:"data,omitempty"`
}

// Send は1人の宛先に通知を送る。
// CLIENTロールのユーザーには所属クライアントのID宛で送り、
// それ以外のユーザーにはユーザーID宛で送る。
func (n *Notifier) Send(ctx context.Context, recipient taskdb.User, typ notice.Type, message string, data any) error {
	req := createNotificationRequest{
		Type:    string(typ),
		Message: message,
	}

	if data != nil {
		raw, err := notice.EncodeData(data)
		if err != nil {
			return err
		}
		req.Data = raw
	}

	if notice.Role(recipient.Role) == notice.RoleClient && recipient.ClientID.Valid {
		req.ClientID = recipient.ClientID.String
	} else {
		req.UserID = recipient.ID
	}

	if err := n.client.PostJSON(ctx, "/notifications", req, nil); err != nil {
		return fmt.Errorf("通知の送信に失敗: %w", err)
	}
	return nil
}
