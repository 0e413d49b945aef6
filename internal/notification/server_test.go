package notification

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	notificationdb "github.com/nao1215/taskhub/internal/notification/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用の通知サーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	router := gin.New()
	s := &Server{
		router:  router,
		port:    "0",
		queries: notificationdb.New(sqlDB),
		db:      sqlDB,
		streams: NewStreamRegistry(),
	}
	s.setupRoutes()

	return s, router
}

// createTestNotification はテスト用に通知をDBに直接挿入するヘルパー関数。
// userIDとclientIDはどちらか一方だけを指定する。
func createTestNotification(t *testing.T, s *Server, id, userID, clientID, message string) {
	t.Helper()

	params := notificationdb.CreateNotificationParams{
		ID:      id,
		Type:    "TASK_CREATED",
		Message: message,
	}
	if userID != "" {
		params.UserID = sql.NullString{String: userID, Valid: true}
	}
	if clientID != "" {
		params.ClientID = sql.NullString{String: clientID, Valid: true}
	}

	if err := s.queries.CreateNotification(context.Background(), params); err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// listNotifications は一覧エンドポイントを呼び、notifications配列とtotalを返すヘルパー関数。
func listNotifications(t *testing.T, router *gin.Engine, identity, role string) ([]any, int) {
	t.Helper()

	w := doRequest(router, http.MethodGet, fmt.Sprintf("/notifications/%s?role=%s", identity, role), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("一覧取得のステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	result := parseJSON(t, w)
	notifications, ok := result["notifications"].([]any)
	if !ok {
		t.Fatalf("notificationsが配列ではありません: %v", result["notifications"])
	}
	total, ok := result["total"].(float64)
	if !ok {
		t.Fatalf("totalが数値ではありません: %v", result["total"])
	}
	return notifications, int(total)
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "notification" {
		t.Errorf("service: got %v, want notification", result["service"])
	}
}

// TestHandleCreate は通知作成ハンドラのテスト。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("userId宛の通知を作成すると未読状態で返される", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"type":    "TASK_ASSIGNED",
			"message": "タスクが割り当てられました",
			"userId":  "user-1",
			"data":    map[string]any{"taskId": "task-1"},
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["id"] == nil || result["id"] == "" {
			t.Error("idが空です")
		}
		if result["status"] != "UNREAD" {
			t.Errorf("status: got %v, want UNREAD", result["status"])
		}
		if result["userId"] != "user-1" {
			t.Errorf("userId: got %v, want user-1", result["userId"])
		}
		if result["clientId"] != nil {
			t.Errorf("clientId: got %v, want 未設定", result["clientId"])
		}

		data, ok := result["data"].(map[string]any)
		if !ok {
			t.Fatalf("dataがオブジェクトではありません: %v", result["data"])
		}
		if data["taskId"] != "task-1" {
			t.Errorf("data.taskId: got %v, want task-1", data["taskId"])
		}
	})

	t.Run("clientId宛の通知を作成できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"type":     "PAYMENT_RECEIVED",
			"message":  "入金を確認しました",
			"clientId": "client-1",
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["clientId"] != "client-1" {
			t.Errorf("clientId: got %v, want client-1", result["clientId"])
		}
		if result["userId"] != nil {
			t.Errorf("userId: got %v, want 未設定", result["userId"])
		}
	})

	t.Run("userIdとclientIdの両方が未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"type":    "TASK_CREATED",
			"message": "新しいタスク",
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}

		result := parseJSON(t, w)
		if result["error"] != "Either userId or clientId must be provided" {
			t.Errorf("error: got %v, want Either userId or clientId must be provided", result["error"])
		}
	})

	t.Run("userIdとclientIdの両方を指定した場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"type":     "TASK_CREATED",
			"message":  "新しいタスク",
			"userId":   "user-1",
			"clientId": "client-1",
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}

		result := parseJSON(t, w)
		if result["error"] != "Either userId or clientId must be provided" {
			t.Errorf("error: got %v, want Either userId or clientId must be provided", result["error"])
		}
	})

	t.Run("typeが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"message": "メッセージ",
			"userId":  "user-1",
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("messageが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"type":   "TASK_CREATED",
			"userId": "user-1",
		}
		w := doRequest(router, http.MethodPost, "/notifications", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleList は通知一覧取得ハンドラのテスト。
func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("通知が存在しない場合は空の一覧を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		notifications, total := listNotifications(t, router, "user-1", "AGENT")
		if len(notifications) != 0 {
			t.Errorf("通知の数: got %d, want 0", len(notifications))
		}
		if total != 0 {
			t.Errorf("total: got %d, want 0", total)
		}
	})

	t.Run("CLIENT以外のロールはuserIdで絞り込む", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		createTestNotification(t, s, "notif-1", "user-1", "", "メッセージ1")
		createTestNotification(t, s, "notif-2", "user-1", "", "メッセージ2")
		// 別ユーザーの通知は含まれないことを確認するため
		createTestNotification(t, s, "notif-3", "user-2", "", "他ユーザーのメッセージ")

		notifications, total := listNotifications(t, router, "user-1", "AGENT")
		if len(notifications) != 2 {
			t.Errorf("通知の数: got %d, want 2", len(notifications))
		}
		if total != 2 {
			t.Errorf("total: got %d, want 2", total)
		}
	})

	t.Run("CLIENTロールはclientIdで絞り込む", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		createTestNotification(t, s, "notif-1", "", "client-1", "クライアント宛")
		createTestNotification(t, s, "notif-2", "client-1", "", "同じIDのユーザー宛")

		notifications, _ := listNotifications(t, router, "client-1", "CLIENT")
		if len(notifications) != 1 {
			t.Fatalf("通知の数: got %d, want 1", len(notifications))
		}

		notif := notifications[0].(map[string]any)
		if notif["id"] != "notif-1" {
			t.Errorf("id: got %v, want notif-1", notif["id"])
		}
		if notif["clientId"] != "client-1" {
			t.Errorf("clientId: got %v, want client-1", notif["clientId"])
		}
	})

	t.Run("認識できないロールの場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/notifications/user-1?role=MANAGER", nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("ロールが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/notifications/user-1", nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleMarkAsRead は通知を既読にするハンドラのテスト。
func TestHandleMarkAsRead(t *testing.T) {
	t.Parallel()

	t.Run("正常に通知を既読にできる", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		notifID := uuid.New().String()
		createTestNotification(t, s, notifID, "user-1", "", "メッセージ")

		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/notifications/%s/read", notifID), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["id"] != notifID {
			t.Errorf("id: got %v, want %s", result["id"], notifID)
		}
		if result["status"] != "READ" {
			t.Errorf("status: got %v, want READ", result["status"])
		}

		// 一覧でも既読になっていることを確認する
		notifications, _ := listNotifications(t, router, "user-1", "AGENT")
		if len(notifications) != 1 {
			t.Fatalf("通知の数: got %d, want 1", len(notifications))
		}
		if notifications[0].(map[string]any)["status"] != "READ" {
			t.Errorf("一覧のstatus: got %v, want READ", notifications[0].(map[string]any)["status"])
		}
	})

	t.Run("既読化は冪等で2回目の呼び出しも成功する", func(t *testing.T) {
		t.Parallel()
		s, router := setupTestServer(t)

		notifID := uuid.New().String()
		createTestNotification(t, s, notifID, "user-1", "", "メッセージ")

		for i := 0; i < 2; i++ {
			w := doRequest(router, http.MethodPatch, fmt.Sprintf("/notifications/%s/read", notifID), nil)
			if w.Code != http.StatusOK {
				t.Fatalf("%d回目のステータスコード: got %d, want %d", i+1, w.Code, http.StatusOK)
			}
			result := parseJSON(t, w)
			if result["status"] != "READ" {
				t.Errorf("%d回目のstatus: got %v, want READ", i+1, result["status"])
			}
		}
	})

	t.Run("UUID形式でないIDの場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPatch, "/notifications/not-a-uuid/read", nil)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}

		result := parseJSON(t, w)
		if result["error"] != "Invalid notification ID format - must be a valid UUID" {
			t.Errorf("error: got %v, want Invalid notification ID format - must be a valid UUID", result["error"])
		}
	})

	t.Run("存在しない通知の場合はInternalServerError", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodPatch, fmt.Sprintf("/notifications/%s/read", uuid.New().String()), nil)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}

		result := parseJSON(t, w)
		if result["error"] != "Failed to mark notification as read" {
			t.Errorf("error: got %v, want Failed to mark notification as read", result["error"])
		}
		if result["message"] == nil {
			t.Error("messageが含まれていません")
		}
	})
}

// TestHandleSubscribe はServer-Sent Events購読ハンドラのテスト。
// ResponseRecorderではストリーミングを検証できないため実サーバーを立てる。
func TestHandleSubscribe(t *testing.T) {
	t.Parallel()

	s, router := setupTestServer(t)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/subscribe/user-1", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("購読リクエストに失敗: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Errorf("Content-Type: got %s, want text/event-stream", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control: got %s, want no-cache", got)
	}

	// 購読がレジストリに登録されるまで待つ
	waitFor(t, func() bool { return s.streams.count("user-1") == 1 })

	// 通知を作成するとストリームにプッシュされる
	body := map[string]any{
		"type":    "TASK_CREATED",
		"message": "新しいタスクが作成されました",
		"userId":  "user-1",
	}
	w := doRequest(router, http.MethodPost, "/notifications", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("通知作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var eventName, data string
	deadline := time.After(5 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("イベントを受信する前にストリームが終了しました")
			}
			if strings.HasPrefix(line, "event:") {
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
			if strings.HasPrefix(line, "data:") {
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		case <-deadline:
			t.Fatal("イベントの受信がタイムアウトしました")
		}
	}

	if eventName != "notification" {
		t.Errorf("イベント名: got %s, want notification", eventName)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("イベントペイロードのデコードに失敗: %v, data=%s", err, data)
	}
	if payload["message"] != "新しいタスクが作成されました" {
		t.Errorf("message: got %v, want 新しいタスクが作成されました", payload["message"])
	}
	if payload["status"] != "UNREAD" {
		t.Errorf("status: got %v, want UNREAD", payload["status"])
	}

	// 切断すると購読がレジストリから削除される
	cancel()
	waitFor(t, func() bool { return s.streams.count("user-1") == 0 })
}

// waitFor は条件が成立するまでポーリングし、タイムアウトでテストを失敗させる。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("条件の成立を待機中にタイムアウトしました")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
