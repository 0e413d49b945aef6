package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	taskdb "github.com/nao1215/taskhub/internal/task/db"
	"github.com/nao1215/taskhub/pkg/httpclient"
	"github.com/nao1215/taskhub/pkg/middleware"
	"github.com/nao1215/taskhub/pkg/migration"
	"github.com/nao1215/taskhub/pkg/notice"
)

// Server はタスクサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はタスクサービスのクエリ実行オブジェクト。
	queries *taskdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// notifier は通知サービスへの通信クライアント。
	notifier *Notifier
}

// NewServer は新しいタスクサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/task.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	notificationURL := os.Getenv("NOTIFICATION_URL")
	if notificationURL == "" {
		notificationURL = "http://localhost:8083"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:   router,
		port:     port,
		queries:  taskdb.New(sqlDB),
		db:       sqlDB,
		notifier: NewNotifier(notificationURL),
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
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		tasks := api.Group("/tasks")
		{
			// タスク作成
			tasks.POST("", s.handleCreateTask())
			// タスク一覧取得
			tasks.GET("", s.handleListTasks())
			// タスク詳細取得
			tasks.GET("/:id", s.handleGetTask())
			// タスク更新（変更差分の通知もここで行う）
			tasks.PUT("/:id", s.handleUpdateTask())
			// タスク削除
			tasks.DELETE("/:id", s.handleDeleteTask())
			// コメント追加
			tasks.POST("/:id/comments", s.handleAddComment())
			// コメント一覧取得
			tasks.GET("/:id/comments", s.handleListComments())
		}

		users := api.Group("/users")
		{
			// ユーザー登録（ADMINのみ）
			users.POST("", s.handleCreateUser())
			// ユーザー一覧取得
			users.GET("", s.handleListUsers())
		}

		skills := api.Group("/skills")
		{
			// スキル登録（監督側ロールのみ）
			skills.POST("", s.handleCreateSkill())
			// スキル一覧取得
			skills.GET("", s.handleListSkills())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "task"})
	})
}

// validationError は更新内容の参照解決に失敗したことを表すエラー。
// データベース障害と区別してBadRequestを返すために使う。
type validationError struct {
	msg string
}

// Error はエラーメッセージを返す。
func (e *validationError) Error() string {
	return e.msg
}

// skillResponse はスキルのJSONレスポンス構造。
type skillResponse struct {
	// ID はスキルの一意識別子。
	ID string `json:"id"`
	// Name はスキル名。
	Name string `json:"name"`
}

// taskResponse はタスクのJSONレスポンス構造。
type taskResponse struct {
	// ID はタスクの一意識別子。
	ID string `json:"id"`
	// Title はタイトル。下書きの間は空文字列。
	Title string `json:"title"`
	// Description は説明。
	Description string `json:"description"`
	// StatusName はステータスのキー。
	StatusName string `json:"status_name"`
	// StatusLabel はステータスの表示ラベル。
	StatusLabel string `json:"status_label"`
	// PriorityName は優先度のキー。
	PriorityName string `json:"priority_name"`
	// PriorityLabel は優先度の表示ラベル。
	PriorityLabel string `json:"priority_label"`
	// CategoryName はカテゴリのキー。
	CategoryName string `json:"category_name,omitempty"`
	// CategoryLabel はカテゴリの表示ラベル。
	CategoryLabel string `json:"category_label,omitempty"`
	// ClientID は依頼元のクライアントID。
	ClientID string `json:"client_id,omitempty"`
	// CreatedByID は作成者のユーザーID。
	CreatedByID string `json:"created_by_id"`
	// CreatedByName は作成者の氏名。
	CreatedByName string `json:"created_by_name"`
	// AssignedToID は担当者のユーザーID。
	AssignedToID string `json:"assigned_to_id,omitempty"`
	// AssignedToName は担当者の氏名。
	AssignedToName string `json:"assigned_to_name,omitempty"`
	// DueDate は期日（YYYY-MM-DD）。
	DueDate string `json:"due_date,omitempty"`
	// EstimatedHours は見積もり時間。
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	// Skills は必要スキルの一覧。
	Skills []skillResponse `json:"skills"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toTaskResponse はDB行をJSONレスポンスに変換する。
func toTaskResponse(t taskdb.TaskDetail, skills []taskdb.Skill) taskResponse {
	resp := taskResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		StatusName:    t.StatusName,
		StatusLabel:   t.StatusLabel,
		PriorityName:  t.PriorityName,
		PriorityLabel: t.PriorityLabel,
		CreatedByID:   t.CreatedByID,
		CreatedByName: t.CreatedByName,
		Skills:        make([]skillResponse, 0, len(skills)),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     t.UpdatedAt.Format(time.RFC3339),
	}
	if t.CategoryName.Valid {
		resp.CategoryName = t.CategoryName.String
		resp.CategoryLabel = t.CategoryLabel.String
	}
	if t.ClientID.Valid {
		resp.ClientID = t.ClientID.String
	}
	if t.AssignedToID.Valid {
		resp.AssignedToID = t.AssignedToID.String
		resp.AssignedToName = t.AssigneeName.String
	}
	if t.DueDate.Valid {
		resp.DueDate = t.DueDate.String
	}
	if t.EstimatedHours.Valid {
		hours := t.EstimatedHours.Float64
		resp.EstimatedHours = &hours
	}
	for _, sk := range skills {
		resp.Skills = append(resp.Skills, skillResponse{ID: sk.ID, Name: sk.Name})
	}
	return resp
}

// createTaskRequest はタスク作成リクエストのJSON構造。
// タイトルが空のままでも下書きとして作成できる。
type createTaskRequest struct {
	// Title はタイトル。
	Title string `json:"title"`
	// Description は説明。
	Description string `json:"description"`
	// StatusName はステータスのキー。省略時はTODO。
	StatusName string `json:"status_name"`
	// PriorityName は優先度のキー。省略時はNORMAL。
	PriorityName string `json:"priority_name"`
	// CategoryName はカテゴリのキー。
	CategoryName string `json:"category_name"`
	// ClientID は依頼元のクライアントID。
	ClientID string `json:"client_id"`
	// AssignedToID は担当者のユーザーID。
	AssignedToID string `json:"assigned_to_id"`
	// DueDate は期日。
	DueDate string `json:"due_date"`
	// EstimatedHours は見積もり時間。
	EstimatedHours *float64 `json:"estimated_hours"`
	// SkillIDs は必要スキルのID一覧。
	SkillIDs []string `json:"skill_ids"`
}

// updateTaskRequest はタスク更新リクエストのJSON構造。
// nilのフィールドは「変更なし」を表す。
type updateTaskRequest struct {
	// Title はタイトル。
	Title *string `json:"title"`
	// Description は説明。
	Description *string `json:"description"`
	// StatusName はステータスのキー。
	StatusName *string `json:"status_name"`
	// PriorityName は優先度のキー。
	PriorityName *string `json:"priority_name"`
	// CategoryName はカテゴリのキー。
	CategoryName *string `json:"category_name"`
	// DueDate は期日。空文字列でクリアする。
	DueDate *string `json:"due_date"`
	// EstimatedHours は見積もり時間。
	EstimatedHours *float64 `json:"estimated_hours"`
	// AssignedToID は担当者のユーザーID。空文字列で担当を解除する。
	AssignedToID *string `json:"assigned_to_id"`
	// SkillIDs は必要スキルのID一覧。
	SkillIDs *[]string `json:"skill_ids"`
}

// resolveUpdateInput は更新リクエストのマスタ名・参照IDを実体に解決する。
// 未知の名前やIDはvalidationErrorとして返し、書き込み前に弾かれる。
func (s *Server) resolveUpdateInput(ctx context.Context, req updateTaskRequest) (updateInput, error) {
	in := updateInput{
		Title:          req.Title,
		Description:    req.Description,
		EstimatedHours: req.EstimatedHours,
	}

	if req.DueDate != nil {
		// 空文字列はクリア。それ以外は日付として解釈できる形式のみ受け付ける
		if *req.DueDate != "" && !validDate(normalizeDate(*req.DueDate)) {
			return in, &validationError{msg: fmt.Sprintf("不正な期日形式: %s", *req.DueDate)}
		}
		in.DueDate = req.DueDate
	}

	if req.StatusName != nil {
		st, err := s.queries.GetStatusByName(ctx, *req.StatusName)
		if errors.Is(err, sql.ErrNoRows) {
			return in, &validationError{msg: fmt.Sprintf("不明なステータス: %s", *req.StatusName)}
		}
		if err != nil {
			return in, err
		}
		in.Status = &st
	}

	if req.PriorityName != nil {
		pr, err := s.queries.GetPriorityByName(ctx, *req.PriorityName)
		if errors.Is(err, sql.ErrNoRows) {
			return in, &validationError{msg: fmt.Sprintf("不明な優先度: %s", *req.PriorityName)}
		}
		if err != nil {
			return in, err
		}
		in.Priority = &pr
	}

	if req.CategoryName != nil {
		ca, err := s.queries.GetCategoryByName(ctx, *req.CategoryName)
		if errors.Is(err, sql.ErrNoRows) {
			return in, &validationError{msg: fmt.Sprintf("不明なカテゴリ: %s", *req.CategoryName)}
		}
		if err != nil {
			return in, err
		}
		in.Category = &ca
	}

	if req.AssignedToID != nil {
		if *req.AssignedToID == "" {
			// 空文字列は担当解除
			in.Assignee = &assigneeRef{}
		} else {
			u, err := s.queries.GetUserByID(ctx, *req.AssignedToID)
			if errors.Is(err, sql.ErrNoRows) {
				return in, &validationError{msg: fmt.Sprintf("不明な担当者: %s", *req.AssignedToID)}
			}
			if err != nil {
				return in, err
			}
			in.Assignee = &assigneeRef{ID: u.ID, Name: u.Name}
		}
	}

	if req.SkillIDs != nil {
		skills := make([]taskdb.Skill, 0, len(*req.SkillIDs))
		for _, skillID := range *req.SkillIDs {
			sk, err := s.queries.GetSkillByID(ctx, skillID)
			if errors.Is(err, sql.ErrNoRows) {
				return in, &validationError{msg: fmt.Sprintf("不明なスキル: %s", skillID)}
			}
			if err != nil {
				return in, err
			}
			skills = append(skills, sk)
		}
		in.Skills = &skills
	}

	return in, nil
}

// respondResolveError は参照解決エラーを適切なステータスコードで返す。
func respondResolveError(c *gin.Context, err error) {
	var vErr *validationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "参照の解決に失敗しました"})
	log.Printf("参照解決エラー: %v", err)
}

// currentUser は認証済みユーザーのDB行を取得する。
// 取得できない場合はレスポンスを書き込み、falseを返す。
func (s *Server) currentUser(c *gin.Context) (taskdb.User, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return taskdb.User{}, false
	}

	u, err := s.queries.GetUserByID(c.Request.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーが見つかりません"})
		return taskdb.User{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
		log.Printf("ユーザー取得エラー: %v", err)
		return taskdb.User{}, false
	}
	return u, true
}

// handleCreateTask はタスク作成を処理するハンドラを返す。
// タイトルが設定されている場合はロールポリシーに従って作成通知を送る。
func (s *Server) handleCreateTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.currentUser(c)
		if !ok {
			return
		}

		var req createTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		statusName := req.StatusName
		if statusName == "" {
			statusName = "TODO"
		}
		priorityName := req.PriorityName
		if priorityName == "" {
			priorityName = "NORMAL"
		}

		ureq := updateTaskRequest{
			Title:          &req.Title,
			Description:    &req.Description,
			StatusName:     &statusName,
			PriorityName:   &priorityName,
			EstimatedHours: req.EstimatedHours,
		}
		if req.CategoryName != "" {
			ureq.CategoryName = &req.CategoryName
		}
		if req.AssignedToID != "" {
			ureq.AssignedToID = &req.AssignedToID
		}
		if req.DueDate != "" {
			ureq.DueDate = &req.DueDate
		}
		if len(req.SkillIDs) > 0 {
			ureq.SkillIDs = &req.SkillIDs
		}

		in, err := s.resolveUpdateInput(c.Request.Context(), ureq)
		if err != nil {
			respondResolveError(c, err)
			return
		}

		params := taskdb.CreateTaskParams{
			ID:          uuid.New().String(),
			Title:       req.Title,
			Description: req.Description,
			StatusID:    in.Status.ID,
			PriorityID:  in.Priority.ID,
			CreatedByID: actor.ID,
		}
		if in.Category != nil {
			params.CategoryID = sql.NullInt64{Int64: in.Category.ID, Valid: true}
		}
		if req.ClientID != "" {
			params.ClientID = sql.NullString{String: req.ClientID, Valid: true}
		}
		if in.Assignee != nil && in.Assignee.ID != "" {
			params.AssignedToID = sql.NullString{String: in.Assignee.ID, Valid: true}
		}
		if in.DueDate != nil {
			if d := normalizeDate(*in.DueDate); d != "" {
				params.DueDate = sql.NullString{String: d, Valid: true}
			}
		}
		if in.EstimatedHours != nil {
			params.EstimatedHours = sql.NullFloat64{Float64: *in.EstimatedHours, Valid: true}
		}

		if err := s.createTaskWithSkills(c.Request.Context(), params, in); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの作成に失敗しました"})
			log.Printf("タスク作成エラー: %v", err)
			return
		}

		created, skills, ok := s.fetchTaskWithSkills(c, params.ID)
		if !ok {
			return
		}

		// タイトル付きで作成された場合はこの時点で正式なタスクになる
		if created.Title != "" {
			s.dispatchTaskCreated(dispatchContext(c), created, actor)
		}

		c.JSON(http.StatusCreated, toTaskResponse(created, skills))
	}
}

// createTaskWithSkills はタスク本体とスキル集合をトランザクション内で作成する。
func (s *Server) createTaskWithSkills(ctx context.Context, params taskdb.CreateTaskParams, in updateInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	qtx := s.queries.WithTx(tx)
	if err := qtx.CreateTask(ctx, params); err != nil {
		return err
	}
	if in.Skills != nil {
		if err := qtx.ReplaceTaskSkills(ctx, params.ID, sortedSkillIDs(*in.Skills)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// handleListTasks はタスク一覧取得を処理するハンドラを返す。
func (s *Server) handleListTasks() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.currentUser(c); !ok {
			return
		}

		tasks, err := s.queries.ListTaskDetails(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスク一覧の取得に失敗しました"})
			log.Printf("タスク一覧取得エラー: %v", err)
			return
		}

		responses := make([]taskResponse, 0, len(tasks))
		for _, t := range tasks {
			skills, err := s.queries.ListTaskSkills(c.Request.Context(), t.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "スキル一覧の取得に失敗しました"})
				log.Printf("スキル一覧取得エラー: %v", err)
				return
			}
			responses = append(responses, toTaskResponse(t, skills))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetTask はタスク詳細取得を処理するハンドラを返す。
func (s *Server) handleGetTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.currentUser(c); !ok {
			return
		}

		t, skills, ok := s.fetchTaskWithSkills(c, c.Param("id"))
		if !ok {
			return
		}

		c.JSON(http.StatusOK, toTaskResponse(t, skills))
	}
}

// fetchTaskWithSkills はタスク詳細とスキル集合を取得する。
// 取得できない場合はレスポンスを書き込み、falseを返す。
func (s *Server) fetchTaskWithSkills(c *gin.Context, taskID string) (taskdb.TaskDetail, []taskdb.Skill, bool) {
	t, err := s.queries.GetTaskDetail(c.Request.Context(), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
		return taskdb.TaskDetail{}, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの取得に失敗しました"})
		log.Printf("タスク取得エラー: %v", err)
		return taskdb.TaskDetail{}, nil, false
	}

	skills, err := s.queries.ListTaskSkills(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "スキル一覧の取得に失敗しました"})
		log.Printf("スキル一覧取得エラー: %v", err)
		return taskdb.TaskDetail{}, nil, false
	}
	return t, skills, true
}

// handleUpdateTask はタスク更新を処理するハンドラを返す。
//
// 更新前のスナップショットと更新内容を比較して変更差分を計算し、
// 永続化後にベストエフォートで通知を送る。下書き（タイトルが空のタスク）に
// タイトルが付いた場合は変更差分の代わりに作成通知を送る。
// 通知の失敗は更新結果に影響しない。
func (s *Server) handleUpdateTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.currentUser(c)
		if !ok {
			return
		}

		taskID := c.Param("id")
		before, err := s.queries.GetTaskDetail(c.Request.Context(), taskID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの取得に失敗しました"})
			log.Printf("タスク取得エラー: %v", err)
			return
		}

		beforeSkills, err := s.queries.ListTaskSkills(c.Request.Context(), taskID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スキル一覧の取得に失敗しました"})
			log.Printf("スキル一覧取得エラー: %v", err)
			return
		}

		var req updateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		// 正式なタスクのタイトルを空に戻すことはできない。
		// タイトルが空かどうかは下書き判定に使われるため。
		if before.Title != "" && req.Title != nil && *req.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "タイトルを空にすることはできません"})
			return
		}

		in, err := s.resolveUpdateInput(c.Request.Context(), req)
		if err != nil {
			respondResolveError(c, err)
			return
		}

		// 下書きは変更通知の対象にならない
		isNewTask := before.Title == ""
		var changes []notice.FieldChange
		if !isNewTask {
			changes = computeChanges(before, beforeSkills, in)
		}

		if err := s.applyTaskUpdate(c.Request.Context(), before, in); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの更新に失敗しました"})
			log.Printf("タスク更新エラー: %v", err)
			return
		}

		after, skills, ok := s.fetchTaskWithSkills(c, taskID)
		if !ok {
			return
		}

		// 通知はベストエフォート。失敗しても更新は成功として返す
		ctx := dispatchContext(c)
		if isNewTask {
			if after.Title != "" {
				s.dispatchTaskCreated(ctx, after, actor)
			}
		} else {
			s.dispatchTaskUpdated(ctx, after, actor, changes)
			if in.Assignee != nil && in.Assignee.ID != "" && in.Assignee.ID != before.AssignedToID.String {
				// 担当者の変更は差分のまとめとは別に個別の割り当て通知を送る
				s.dispatchTaskAssigned(ctx, after, actor)
			}
		}

		c.JSON(http.StatusOK, toTaskResponse(after, skills))
	}
}

// applyTaskUpdate は更新内容をスナップショットにマージして永続化する。
// スキル集合の入れ替えも同一トランザクションで行う。
func (s *Server) applyTaskUpdate(ctx context.Context, before taskdb.TaskDetail, in updateInput) error {
	params := taskdb.UpdateTaskParams{
		ID:             before.ID,
		Title:          before.Title,
		Description:    before.Description,
		StatusID:       before.StatusID,
		PriorityID:     before.PriorityID,
		CategoryID:     before.CategoryID,
		AssignedToID:   before.AssignedToID,
		DueDate:        before.DueDate,
		EstimatedHours: before.EstimatedHours,
	}
	if in.Title != nil {
		params.Title = *in.Title
	}
	if in.Description != nil {
		params.Description = *in.Description
	}
	if in.Status != nil {
		params.StatusID = in.Status.ID
	}
	if in.Priority != nil {
		params.PriorityID = in.Priority.ID
	}
	if in.Category != nil {
		params.CategoryID = sql.NullInt64{Int64: in.Category.ID, Valid: true}
	}
	if in.Assignee != nil {
		if in.Assignee.ID == "" {
			params.AssignedToID = sql.NullString{}
		} else {
			params.AssignedToID = sql.NullString{String: in.Assignee.ID, Valid: true}
		}
	}
	if in.DueDate != nil {
		if d := normalizeDate(*in.DueDate); d == "" {
			params.DueDate = sql.NullString{}
		} else {
			params.DueDate = sql.NullString{String: d, Valid: true}
		}
	}
	if in.EstimatedHours != nil {
		params.EstimatedHours = sql.NullFloat64{Float64: *in.EstimatedHours, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	qtx := s.queries.WithTx(tx)
	if err := qtx.UpdateTask(ctx, params); err != nil {
		return err
	}
	if in.Skills != nil {
		if err := qtx.ReplaceTaskSkills(ctx, before.ID, sortedSkillIDs(*in.Skills)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// handleDeleteTask はタスク削除を処理するハンドラを返す。
// 削除できるのはタスクの作成者か監督側ロールのみ。
func (s *Server) handleDeleteTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.currentUser(c)
		if !ok {
			return
		}

		taskID := c.Param("id")
		t, err := s.queries.GetTaskDetail(c.Request.Context(), taskID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの取得に失敗しました"})
			log.Printf("タスク取得エラー: %v", err)
			return
		}

		if t.CreatedByID != actor.ID && !supervisoryRole(notice.Role(actor.Role)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "このタスクを削除する権限がありません"})
			return
		}

		if err := s.queries.DeleteTask(c.Request.Context(), taskID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの削除に失敗しました"})
			log.Printf("タスク削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "タスクを削除しました"})
	}
}

// commentResponse はコメントのJSONレスポンス構造。
type commentResponse struct {
	// ID はコメントの一意識別子。
	ID string `json:"id"`
	// TaskID はコメント先のタスクID。
	TaskID string `json:"task_id"`
	// AuthorID は投稿者のユーザーID。
	AuthorID string `json:"author_id"`
	// AuthorName は投稿者の氏名。
	AuthorName string `json:"author_name"`
	// Body は本文。
	Body string `json:"body"`
	// CreatedAt は投稿日時。
	CreatedAt string `json:"created_at"`
}

// toCommentResponse はDB行をJSONレスポンスに変換する。
func toCommentResponse(cm taskdb.CommentDetail) commentResponse {
	return commentResponse{
		ID:         cm.ID,
		TaskID:     cm.TaskID,
		AuthorID:   cm.AuthorID,
		AuthorName: cm.AuthorName,
		Body:       cm.Body,
		CreatedAt:  cm.CreatedAt.Format(time.RFC3339),
	}
}

// addCommentRequest はコメント追加リクエストのJSON構造。
type addCommentRequest struct {
	// Body は本文。
	Body string `json:"body" binding:"required"`
}

// handleAddComment はコメント追加を処理するハンドラを返す。
// タスクの作成者と担当者（投稿者本人を除く）へコメント通知を送る。
func (s *Server) handleAddComment() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.currentUser(c)
		if !ok {
			return
		}

		taskID := c.Param("id")
		t, err := s.queries.GetTaskDetail(c.Request.Context(), taskID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの取得に失敗しました"})
			log.Printf("タスク取得エラー: %v", err)
			return
		}

		var req addCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		commentID := uuid.New().String()
		if err := s.queries.CreateComment(c.Request.Context(), taskdb.CreateCommentParams{
			ID:       commentID,
			TaskID:   taskID,
			AuthorID: actor.ID,
			Body:     req.Body,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コメントの作成に失敗しました"})
			log.Printf("コメント作成エラー: %v", err)
			return
		}

		created, err := s.queries.GetCommentByID(c.Request.Context(), commentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したコメントの取得に失敗しました"})
			log.Printf("コメント取得エラー: %v", err)
			return
		}

		s.dispatchCommentAdded(dispatchContext(c), t, actor, created)

		c.JSON(http.StatusCreated, toCommentResponse(created))
	}
}

// handleListComments はコメント一覧取得を処理するハンドラを返す。
func (s *Server) handleListComments() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.currentUser(c); !ok {
			return
		}

		taskID := c.Param("id")
		if _, err := s.queries.GetTaskDetail(c.Request.Context(), taskID); errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "タスクが見つかりません"})
			return
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "タスクの取得に失敗しました"})
			log.Printf("タスク取得エラー: %v", err)
			return
		}

		comments, err := s.queries.ListCommentsByTaskID(c.Request.Context(), taskID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "コメント一覧の取得に失敗しました"})
			log.Printf("コメント一覧取得エラー: %v", err)
			return
		}

		responses := make([]commentResponse, 0, len(comments))
		for _, cm := range comments {
			responses = append(responses, toCommentResponse(cm))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name は氏名。
	Name string `json:"name"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Role はロール。
	Role string `json:"role"`
	// ClientID はCLIENTロールのユーザーが属するクライアントID。
	ClientID string `json:"client_id,omitempty"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u taskdb.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.ClientID.Valid {
		resp.ClientID = u.ClientID.String
	}
	return resp
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	// Name は氏名。
	Name string `json:"name" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Role はロール。
	Role string `json:"role" binding:"required"`
	// ClientID はCLIENTロールのユーザーが属するクライアントID。
	ClientID string `json:"client_id"`
}

// handleCreateUser はユーザー登録を処理するハンドラを返す。ADMINのみ実行できる。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if notice.Role(middleware.GetRole(c)) != notice.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "ユーザー登録の権限がありません"})
			return
		}

		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if !notice.ValidRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不明なロール: %s", req.Role)})
			return
		}

		params := taskdb.CreateUserParams{
			ID:    uuid.New().String(),
			Name:  req.Name,
			Email: req.Email,
			Role:  req.Role,
		}
		if req.ClientID != "" {
			params.ClientID = sql.NullString{String: req.ClientID, Valid: true}
		}

		if err := s.queries.CreateUser(c.Request.Context(), params); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("ユーザー作成エラー: %v", err)
			return
		}

		created, err := s.queries.GetUserByID(c.Request.Context(), params.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成したユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toUserResponse(created))
	}
}

// handleListUsers はユーザー一覧取得を処理するハンドラを返す。
// roleクエリパラメータで絞り込める。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			users []taskdb.User
			err   error
		)
		if role := c.Query("role"); role != "" {
			if !notice.ValidRole(role) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不明なロール: %s", role)})
				return
			}
			users, err = s.queries.ListUsersByRole(c.Request.Context(), role)
		} else {
			users, err = s.queries.ListUsers(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toUserResponse(u))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// createSkillRequest はスキル登録リクエストのJSON構造。
type createSkillRequest struct {
	// Name はスキル名。
	Name string `json:"name" binding:"required"`
}

// handleCreateSkill はスキル登録を処理するハンドラを返す。監督側ロールのみ実行できる。
func (s *Server) handleCreateSkill() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !supervisoryRole(notice.Role(middleware.GetRole(c))) {
			c.JSON(http.StatusForbidden, gin.H{"error": "スキル登録の権限がありません"})
			return
		}

		var req createSkillRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		skillID := uuid.New().String()
		if err := s.queries.CreateSkill(c.Request.Context(), skillID, req.Name); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スキルの作成に失敗しました"})
			log.Printf("スキル作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, skillResponse{ID: skillID, Name: req.Name})
	}
}

// handleListSkills はスキル一覧取得を処理するハンドラを返す。
func (s *Server) handleListSkills() gin.HandlerFunc {
	return func(c *gin.Context) {
		skills, err := s.queries.ListSkills(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スキル一覧の取得に失敗しました"})
			log.Printf("スキル一覧取得エラー: %v", err)
			return
		}

		responses := make([]skillResponse, 0, len(skills))
		for _, sk := range skills {
			responses = append(responses, skillResponse{ID: sk.ID, Name: sk.Name})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// dispatchContext は通知送信用のコンテキストを生成する。
// 操作したユーザーのIDをX-User-IDヘッダーとして下流に伝搬する。
func dispatchContext(c *gin.Context) context.Context {
	return httpclient.WithUserID(c.Request.Context(), middleware.GetUserID(c))
}

// dispatchTaskCreated は作成通知をロールポリシーに従ってファンアウトする。
// ルーティングはタスクの作成者のロールで決まる。下書きのタイトル付けを
// 作成者以外が行った場合も、通知の帰属と宛先は作成者基準のまま変わらない。
// 送信の失敗はログに記録するだけで呼び出し元には返さない。
func (s *Server) dispatchTaskCreated(ctx context.Context, t taskdb.TaskDetail, actor taskdb.User) {
	creator := actor
	if t.CreatedByID != actor.ID {
		u, err := s.queries.GetUserByID(ctx, t.CreatedByID)
		if err != nil {
			log.Printf("作成通知の作成者取得に失敗: %v", err)
			s.dispatchTaskAssigned(ctx, t, actor)
			return
		}
		creator = u
	}

	data := notice.TaskCreatedData{
		TaskID:        t.ID,
		Title:         t.Title,
		CreatedByID:   creator.ID,
		CreatedByName: creator.Name,
	}
	message := fmt.Sprintf("New task created: %s", t.Title)

	for _, role := range creationNotifyRoles(notice.Role(creator.Role)) {
		users, err := s.queries.ListUsersByRole(ctx, string(role))
		if err != nil {
			log.Printf("作成通知の宛先取得に失敗: %v", err)
			continue
		}
		for _, u := range users {
			if u.ID == actor.ID {
				continue
			}
			if err := s.notifier.Send(ctx, u, notice.TypeTaskCreated, message, data); err != nil {
				log.Printf("タスク作成通知の送信に失敗: %v", err)
			}
		}
	}

	// 作成時点で担当者が設定されている場合は個別の割り当て通知も送る
	s.dispatchTaskAssigned(ctx, t, actor)
}

// dispatchTaskAssigned は担当者への割り当て通知を送る。
// 担当者が未設定の場合と、割り当てを行った本人が担当者の場合は何もしない。
func (s *Server) dispatchTaskAssigned(ctx context.Context, t taskdb.TaskDetail, actor taskdb.User) {
	if !t.AssignedToID.Valid || t.AssignedToID.String == actor.ID {
		return
	}

	assignee, err := s.queries.GetUserByID(ctx, t.AssignedToID.String)
	if err != nil {
		log.Printf("割り当て通知の宛先取得に失敗: %v", err)
		return
	}

	data := notice.TaskAssignedData{
		TaskID:         t.ID,
		Title:          t.Title,
		AssignedByID:   actor.ID,
		AssignedByName: actor.Name,
	}
	message := fmt.Sprintf("You have been assigned to task: %s", t.Title)

	if err := s.notifier.Send(ctx, assignee, notice.TypeTaskAssigned, message, data); err != nil {
		log.Printf("割り当て通知の送信に失敗: %v", err)
	}
}

// dispatchTaskUpdated は変更差分を1件にまとめた更新通知を送る。
// 宛先はタスクの作成者と現在の担当者で、更新した本人は除外する。
func (s *Server) dispatchTaskUpdated(ctx context.Context, t taskdb.TaskDetail, actor taskdb.User, changes []notice.FieldChange) {
	if len(changes) == 0 {
		return
	}

	data := notice.TaskUpdatedData{
		TaskID:        t.ID,
		Title:         t.Title,
		UpdatedByID:   actor.ID,
		UpdatedByName: actor.Name,
		Changes:       changes,
	}
	message := fmt.Sprintf("Task updated: %s", t.Title)

	for _, id := range updateRecipientIDs(t, actor.ID) {
		u, err := s.queries.GetUserByID(ctx, id)
		if err != nil {
			log.Printf("更新通知の宛先取得に失敗: %v", err)
			continue
		}
		if err := s.notifier.Send(ctx, u, notice.TypeTaskUpdated, message, data); err != nil {
			log.Printf("更新通知の送信に失敗: %v", err)
		}
	}
}

// dispatchCommentAdded はコメント追加通知を送る。
// 宛先は更新通知と同じく、タスクの作成者と担当者から投稿者本人を除いた集合。
func (s *Server) dispatchCommentAdded(ctx context.Context, t taskdb.TaskDetail, actor taskdb.User, cm taskdb.CommentDetail) {
	data := notice.CommentAddedData{
		TaskID:     t.ID,
		CommentID:  cm.ID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
	}
	message := fmt.Sprintf("New comment on task: %s", t.Title)

	for _, id := range updateRecipientIDs(t, actor.ID) {
		u, err := s.queries.GetUserByID(ctx, id)
		if err != nil {
			log.Printf("コメント通知の宛先取得に失敗: %v", err)
			continue
		}
		if err := s.notifier.Send(ctx, u, notice.TypeCommentAdded, message, data); err != nil {
			log.Printf("コメント通知の送信に失敗: %v", err)
		}
	}
}
