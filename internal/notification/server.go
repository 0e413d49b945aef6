package notification

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	notificationdb "github.com/nao1215/taskhub/internal/notification/db"
	"github.com/nao1215/taskhub/pkg/middleware"
	"github.com/nao1215/taskhub/pkg/notice"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries は通知テーブルへのクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// streams は宛先IDごとの購読ストリームを保持するレジストリ。
	streams *StreamRegistry
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/notification.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		port:    port,
		queries: notificationdb.New(sqlDB),
		db:      sqlDB,
		streams: NewStreamRegistry(),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 通知APIはサービス間の内部呼び出しとダッシュボードの両方から使われるため、
// 認証はゲートウェイ側に任せてここでは課さない。
func (s *Server) setupRoutes() {
	notifications := s.router.Group("/notifications")
	{
		// 通知作成（作成と同時に購読ストリームへプッシュ）
		notifications.POST("", s.handleCreate())
		// 宛先ごとの通知一覧取得
		notifications.GET("/:userId", s.handleList())
		// 通知を既読にする
		notifications.PATCH("/:id/read", s.handleMarkAsRead())
		// Server-Sent Eventsによる購読
		notifications.GET("/subscribe/:userId", s.handleSubscribe())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// notificationResponse は通知のJSONレスポンス構造。
// ダッシュボードのフロントエンドが読むためキーはcamelCaseで揃える。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
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
	// Status は既読状態（UNREAD / READ）。
	Status string `json:"status"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"createdAt"`
	// UpdatedAt は通知の更新日時（RFC3339形式）。
	UpdatedAt string `json:"updatedAt"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n notificationdb.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		Status:    n.Status,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
		UpdatedAt: n.UpdatedAt.Format(time.RFC3339),
	}
	if n.UserID.Valid {
		resp.UserID = n.UserID.String
	}
	if n.ClientID.Valid {
		resp.ClientID = n.ClientID.String
	}
	if n.Data.Valid {
		resp.Data = json.RawMessage(n.Data.String)
	}
	return resp
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []notificationdb.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// createRequest は通知作成リクエストのJSON構造。
// UserIDとClientIDはどちらか一方のみ指定する。
type createRequest struct {
	// Type は通知の種類。
	Type string `json:"type" binding:"required"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required"`
	// UserID は通知先のユーザーID。
	UserID string `json:"userId"`
	// ClientID は通知先のクライアントID。
	ClientID string `json:"clientId"`
	// Data は通知タイプごとの構造化ペイロード。
	Data json.RawMessage `json:"data"`
}

// handleCreate は通知を作成し、宛先の購読ストリームへプッシュするハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request body: %v", err)})
			return
		}

		// 宛先はuserIdまたはclientIdのどちらか一方のみ
		if (req.UserID == "") == (req.ClientID == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Either userId or clientId must be provided"})
			return
		}

		params := notificationdb.CreateNotificationParams{
			ID:      uuid.New().String(),
			Type:    req.Type,
			Message: req.Message,
		}
		if req.UserID != "" {
			params.UserID = sql.NullString{String: req.UserID, Valid: true}
		} else {
			params.ClientID = sql.NullString{String: req.ClientID, Valid: true}
		}
		if len(req.Data) > 0 {
			params.Data = sql.NullString{String: string(req.Data), Valid: true}
		}

		if err := s.queries.CreateNotification(c.Request.Context(), params); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
			log.Printf("通知作成エラー: %v", err)
			return
		}

		created, err := s.queries.GetNotificationByID(c.Request.Context(), params.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
			log.Printf("作成済み通知の取得エラー: %v", err)
			return
		}
		resp := toNotificationResponse(created)

		// 開いている購読ストリームへのプッシュはベストエフォート。
		// 失敗しても通知レコード自体は永続化済みなので作成成功として扱う。
		identity := req.UserID
		if identity == "" {
			identity = req.ClientID
		}
		if err := s.streams.Publish(identity, resp); err != nil {
			log.Printf("購読ストリームへのプッシュに失敗: %v", err)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// handleList は宛先の通知一覧を返すハンドラ。
// roleがCLIENTの場合はclientId、それ以外の有効なロールはuserIdで絞り込む。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("userId")
		if identity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		role := c.Query("role")
		if !notice.ValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid role: %s", role)})
			return
		}

		var (
			notifications []notificationdb.Notification
			err           error
		)
		if notice.Role(role) == notice.RoleClient {
			notifications, err = s.queries.ListNotificationsByClientID(c.Request.Context(), identity)
		} else {
			notifications, err = s.queries.ListNotificationsByUserID(c.Request.Context(), identity)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
			log.Printf("通知一覧取得エラー: %v", err)
			return
		}

		responses := toNotificationResponses(notifications)
		c.JSON(http.StatusOK, gin.H{
			"notifications": responses,
			"total":         len(responses),
		})
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
// 既読済みの通知に対して呼んでも成功を返す（冪等）。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationID := c.Param("id")
		if _, err := uuid.Parse(notificationID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID format - must be a valid UUID"})
			return
		}

		// 存在しないIDへの既読化はデータベースエラーとして扱う
		if _, err := s.queries.GetNotificationByID(c.Request.Context(), notificationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to mark notification as read",
				"message": err.Error(),
			})
			log.Printf("通知取得エラー: %v", err)
			return
		}

		if err := s.queries.MarkNotificationRead(c.Request.Context(), notificationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to mark notification as read",
				"message": err.Error(),
			})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":     notificationID,
			"status": string(notice.StatusRead),
		})
	}
}

// handleSubscribe はServer-Sent Eventsで通知をプッシュ配信するハンドラ。
// クライアントが切断するまでストリームを開いたまま維持する。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("userId")
		if identity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		events, cancel := s.streams.Subscribe(identity)
		defer cancel()

		for {
			select {
			case <-c.Request.Context().Done():
				// クライアント切断
				return
			case msg, ok := <-events:
				if !ok {
					// レジストリ側で切断扱いになった（バッファ溢れなど）
					return
				}
				c.SSEvent("notification", msg)
				c.Writer.Flush()
			}
		}
	}
}
