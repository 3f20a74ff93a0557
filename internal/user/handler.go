package user

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ユーザーサービス固有のエラーメッセージ。
const (
	msgInvalidCredentials = "Invalid email or password"
	msgUserNotFound       = "User not found"
	msgEmailExists        = "Email already exists"
)

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// createUserRequest はユーザー作成リクエストのJSON構造。
type createUserRequest struct {
	Email     string   `json:"email" binding:"required,email"`
	Password  string   `json:"password" binding:"required,min=6"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// updateUserRequest はユーザー更新リクエストのJSON構造。
// 指定された項目だけを更新する。
type updateUserRequest struct {
	Email     *string  `json:"email" binding:"omitempty,email"`
	Password  *string  `json:"password" binding:"omitempty,min=6"`
	FirstName *string  `json:"firstName"`
	LastName  *string  `json:"lastName"`
	Roles     []string `json:"roles"`
}

// loginUser はログインレスポンスに含めるユーザー情報。
type loginUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// loginResponse はログイン成功時のJSON構造。
type loginResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    loginUser `json:"user"`
}

// userResponse はユーザーのJSONレスポンス構造。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// handleLogin はメールアドレスとパスワードを照合してJWTトークンを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		u, err := s.store.GetByEmail(c.Request.Context(), req.Email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.internalError(c, "ユーザー取得エラー", err)
			return
		}

		hash := s.dummyHash
		if u != nil {
			hash = []byte(u.PasswordHash)
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil || u == nil {
			s.logger.Warn("ログインに失敗しました",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.String("email", req.Email),
			)
			middleware.AbortWithError(c, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.JWTSecret, u.ID, u.Email, u.Roles, s.cfg.JWTExpiresIn)
		if err != nil {
			s.internalError(c, "トークン生成エラー", err)
			return
		}

		s.logger.Info("ログインに成功しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("user_id", u.ID),
			zap.Strings("roles", u.Roles),
		)
		c.JSON(http.StatusOK, loginResponse{
			Status:  "success",
			Message: "Login successful",
			Token:   token,
			User:    loginUser{ID: u.ID, Email: u.Email, Roles: u.Roles},
		})
	}
}

// handleCreate はユーザー作成を処理するハンドラを返す。
// ロールが指定されない場合はUSERを付与する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		roles := req.Roles
		if len(roles) == 0 {
			roles = []string{authz.RoleUser}
		}
		if !validRoles(roles) {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, "unknown role")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
		if err != nil {
			s.internalError(c, "パスワードハッシュ化エラー", err)
			return
		}

		now := time.Now().UTC()
		u := &User{
			ID:           uuid.NewString(),
			Email:        req.Email,
			PasswordHash: string(hash),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Roles:        roles,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.Create(c.Request.Context(), u); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				middleware.AbortWithError(c, http.StatusConflict, msgEmailExists)
				return
			}
			s.internalError(c, "ユーザー作成エラー", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status": "success",
			"data":   gin.H{"user": toUserResponse(u)},
		})
	}
}

// handleList はユーザー一覧取得を処理するハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.store.List(c.Request.Context())
		if err != nil {
			s.internalError(c, "ユーザー一覧取得エラー", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for i := range users {
			responses = append(responses, toUserResponse(&users[i]))
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   gin.H{"users": responses},
		})
	}
}

// handleGetByID はユーザー詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := s.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   gin.H{"user": toUserResponse(u)},
		})
	}
}

// handleUpdate はユーザー更新を処理するハンドラを返す。
// パスワードが指定された場合はハッシュを作り直す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}
		if req.Roles != nil && (len(req.Roles) == 0 || !validRoles(req.Roles)) {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, "unknown role")
			return
		}

		u, ok := s.lookup(c)
		if !ok {
			return
		}

		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.FirstName != nil {
			u.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			u.LastName = *req.LastName
		}
		if req.Roles != nil {
			u.Roles = req.Roles
		}
		if req.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.cfg.BcryptCost)
			if err != nil {
				s.internalError(c, "パスワードハッシュ化エラー", err)
				return
			}
			u.PasswordHash = string(hash)
		}
		u.UpdatedAt = time.Now().UTC()

		if err := s.store.Update(c.Request.Context(), u); err != nil {
			switch {
			case errors.Is(err, ErrDuplicateEmail):
				middleware.AbortWithError(c, http.StatusConflict, msgEmailExists)
			case errors.Is(err, ErrNotFound):
				middleware.AbortWithError(c, http.StatusNotFound, msgUserNotFound)
			default:
				s.internalError(c, "ユーザー更新エラー", err)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   gin.H{"user": toUserResponse(u)},
		})
	}
}

// handleDelete はユーザー削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
			if errors.Is(err, ErrNotFound) {
				middleware.AbortWithError(c, http.StatusNotFound, msgUserNotFound)
				return
			}
			s.internalError(c, "ユーザー削除エラー", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// lookup はパスパラメータのIDでユーザーを取得する。
// 見つからない場合はレスポンスを書き込んでfalseを返す。
func (s *Server) lookup(c *gin.Context) (*User, bool) {
	u, err := s.store.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		middleware.AbortWithError(c, http.StatusNotFound, msgUserNotFound)
		return nil, false
	}
	if err != nil {
		s.internalError(c, "ユーザー取得エラー", err)
		return nil, false
	}
	return u, true
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	middleware.AbortWithError(c, http.StatusInternalServerError, middleware.MsgInternalServerError)
}

func validRoles(roles []string) bool {
	for _, r := range roles {
		if !slices.Contains(authz.KnownRoles, r) {
			return false
		}
	}
	return true
}
