package gateway

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/taskhub/pkg/middleware"
	"github.com/nao1215/taskhub/pkg/notice"
)

// Server はAPI GatewayサービスのHTTPサーバー。
// 内部状態を持たないステートレスなサービスで、データベースは使用しない。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret string
	// serviceURLs は内部サービスのURL。
	serviceURLs serviceURLConfig
}

// serviceURLConfig は内部サービスのURL設定。
type serviceURLConfig struct {
	// Task はタスクサービスのベースURL。
	Task string
	// Notification は通知サービスのベースURL。
	Notification string
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(port string) (*Server, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	urls := serviceURLConfig{
		Task:         getEnvOr("TASK_URL", "http://localhost:8082"),
		Notification: getEnvOr("NOTIFICATION_URL", "http://localhost:8083"),
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:      router,
		port:        port,
		jwtSecret:   jwtSecret,
		serviceURLs: urls,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/auth")
	{
		// 開発用トークン発行
		auth.POST("/dev-token", s.handleDevToken())
	}

	// 認証必須のAPIエンドポイント
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		// ユーザー情報
		api.GET("/me", s.handleGetCurrentUser())

		// タスク（プロキシ）
		api.POST("/tasks", s.handleProxy(s.serviceURLs.Task, "/api/v1/tasks"))
		api.GET("/tasks", s.handleProxy(s.serviceURLs.Task, "/api/v1/tasks"))
		api.GET("/tasks/:id", s.handleProxyWithParam(s.serviceURLs.Task, "/api/v1/tasks/", "id"))
		api.PUT("/tasks/:id", s.handleProxyWithParam(s.serviceURLs.Task, "/api/v1/tasks/", "id"))
		api.DELETE("/tasks/:id", s.handleProxyWithParam(s.serviceURLs.Task, "/api/v1/tasks/", "id"))
		api.POST("/tasks/:id/comments", s.handleProxyWithParam(s.serviceURLs.Task, "/api/v1/tasks/", "id", "/comments"))
		api.GET("/tasks/:id/comments", s.handleProxyWithParam(s.serviceURLs.Task, "/api/v1/tasks/", "id", "/comments"))

		// ユーザー・スキル（プロキシ）
		api.POST("/users", s.handleProxy(s.serviceURLs.Task, "/api/v1/users"))
		api.GET("/users", s.handleProxy(s.serviceURLs.Task, "/api/v1/users"))
		api.POST("/skills", s.handleProxy(s.serviceURLs.Task, "/api/v1/skills"))
		api.GET("/skills", s.handleProxy(s.serviceURLs.Task, "/api/v1/skills"))

		// 通知（プロキシ）。SSE購読はストリーミングのためプロキシせず、
		// ダッシュボードが通知サービスへ直接接続する
		api.POST("/notifications", s.handleProxy(s.serviceURLs.Notification, "/notifications"))
		api.GET("/notifications/:user_id", s.handleProxyWithParam(s.serviceURLs.Notification, "/notifications/", "user_id"))
		api.PATCH("/notifications/:user_id/read", s.handleProxyWithParam(s.serviceURLs.Notification, "/notifications/", "user_id", "/read"))
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// devTokenRequest は開発用トークン発行リクエストのJSON構造。
type devTokenRequest struct {
	// UserID はトークンに含めるユーザーID。
	UserID string `json:"user_id" binding:"required"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
	// Role はダッシュボード上のロール。
	Role string `json:"role" binding:"required"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// 本番環境では無効化すべき。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if !notice.ValidRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不明なロール: %s", req.Role)})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, req.UserID, req.Email, req.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			log.Printf("JWT生成エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": req.UserID,
		})
	}
}

// handleGetCurrentUser は認証済みユーザーのクレーム情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		email, _ := c.Get("email")
		c.JSON(http.StatusOK, gin.H{
			"id":    userID,
			"email": email,
			"role":  middleware.GetRole(c),
		})
	}
}

// handleProxy は指定されたサービスにリクエストをプロキシするハンドラを返す。
func (s *Server) handleProxy(baseURL, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, proxyURL)
	}
}

// handleProxyWithParam はURLパラメータを含むプロキシハンドラを返す。
func (s *Server) handleProxyWithParam(baseURL, pathPrefix, paramName string, pathSuffix ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + pathPrefix + c.Param(paramName)
		for _, suffix := range pathSuffix {
			proxyURL += suffix
		}
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, proxyURL)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// JWTトークンとユーザーIDヘッダーを転送する。
func (s *Server) doProxy(c *gin.Context, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーを転送
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.Header.Set("Authorization", c.GetHeader("Authorization"))
	req.Header.Set("X-User-ID", middleware.GetUserID(c))

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
