package customer

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"go.uber.org/zap"
)

// 顧客サービス固有のメッセージ。
const (
	msgCustomerCreated  = "Customer created successfully"
	msgCustomerUpdated  = "Customer updated successfully"
	msgCustomerDeleted  = "Customer deleted successfully"
	msgCustomerNotFound = "Customer not found"
	msgNoteNotFound     = "Note not found"
	msgEmailExists      = "Email already exists"
)

// createCustomerRequest は顧客作成リクエストのJSON構造。
type createCustomerRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

// updateCustomerRequest は顧客更新リクエストのJSON構造。
// 指定された項目だけを更新する。
type updateCustomerRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=1"`
	LastName  *string `json:"lastName" binding:"omitempty,min=1"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
}

// noteRequest はメモの追加・更新リクエストのJSON構造。
type noteRequest struct {
	Content string `json:"content" binding:"required"`
}

// noteResponse はメモのJSONレスポンス構造。
type noteResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// customerResponse は顧客のJSONレスポンス構造。
type customerResponse struct {
	ID        string         `json:"id"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	FullName  string         `json:"fullName"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	Company   string         `json:"company"`
	Notes     []noteResponse `json:"notes"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// pagination は一覧のページ情報。
type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

func toCustomerResponse(c *Customer) customerResponse {
	notes := make([]noteResponse, 0, len(c.Notes))
	for _, n := range c.Notes {
		notes = append(notes, noteResponse(n))
	}
	return customerResponse{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		FullName:  c.FullName(),
		Email:     c.Email,
		Phone:     c.Phone,
		Company:   c.Company,
		Notes:     notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// handleCreate は顧客作成を処理するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCustomerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		now := time.Now().UTC()
		cust := &Customer{
			ID:        uuid.NewString(),
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Email:     req.Email,
			Phone:     req.Phone,
			Company:   req.Company,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Create(c.Request.Context(), cust); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				middleware.AbortWithError(c, http.StatusConflict, msgEmailExists)
				return
			}
			s.internalError(c, "顧客作成エラー", err)
			return
		}

		s.logger.Info("顧客を作成しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("customer_id", cust.ID),
			zap.String("user_id", middleware.GetUserID(c)),
		)
		c.JSON(http.StatusCreated, gin.H{
			"status":  "success",
			"message": msgCustomerCreated,
			"data":    toCustomerResponse(cust),
		})
	}
}

// handleList は顧客一覧取得を処理するハンドラを返す。
// search・company・sortBy・order・page・limitのクエリに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := parseListParams(c)
		if err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		customers, total, err := s.store.List(c.Request.Context(), params)
		if err != nil {
			s.internalError(c, "顧客一覧取得エラー", err)
			return
		}

		responses := make([]customerResponse, 0, len(customers))
		for i := range customers {
			responses = append(responses, toCustomerResponse(&customers[i]))
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data": gin.H{
				"customers": responses,
				"pagination": pagination{
					Total: total,
					Page:  params.Page,
					Pages: int(math.Ceil(float64(total) / float64(params.Limit))),
				},
			},
		})
	}
}

// handleGetByID は顧客詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cust, ok := s.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": toCustomerResponse(cust)})
	}
}

// handleUpdate は顧客更新を処理するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateCustomerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		cust, ok := s.lookup(c)
		if !ok {
			return
		}
		if req.FirstName != nil {
			cust.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			cust.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Email != nil {
			cust.Email = *req.Email
		}
		if req.Phone != nil {
			cust.Phone = *req.Phone
		}
		if req.Company != nil {
			cust.Company = *req.Company
		}
		if cust.FirstName == "" || cust.LastName == "" {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, "firstName and lastName must not be blank")
			return
		}
		cust.UpdatedAt = time.Now().UTC()

		if err := s.store.Update(c.Request.Context(), cust); err != nil {
			switch {
			case errors.Is(err, ErrDuplicateEmail):
				middleware.AbortWithError(c, http.StatusConflict, msgEmailExists)
			case errors.Is(err, ErrNotFound):
				middleware.AbortWithError(c, http.StatusNotFound, msgCustomerNotFound)
			default:
				s.internalError(c, "顧客更新エラー", err)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": msgCustomerUpdated,
			"data":    toCustomerResponse(cust),
		})
	}
}

// handleDelete は顧客削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.store.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				middleware.AbortWithError(c, http.StatusNotFound, msgCustomerNotFound)
				return
			}
			s.internalError(c, "顧客削除エラー", err)
			return
		}

		s.logger.Info("顧客を削除しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("customer_id", id),
			zap.String("user_id", middleware.GetUserID(c)),
		)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": msgCustomerDeleted})
	}
}

// handleAddNote は顧客へのメモ追加を処理するハンドラを返す。
// 追加後の顧客をメモ付きで返す。
func (s *Server) handleAddNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req noteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		now := time.Now().UTC()
		note := &Note{ID: uuid.NewString(), Content: req.Content, CreatedAt: now, UpdatedAt: now}
		if err := s.store.AddNote(c.Request.Context(), c.Param("id"), note); err != nil {
			s.noteError(c, "メモ追加エラー", err)
			return
		}
		s.respondCustomer(c, http.StatusCreated)
	}
}

// handleUpdateNote はメモ更新を処理するハンドラを返す。
func (s *Server) handleUpdateNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req noteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		err := s.store.UpdateNote(c.Request.Context(), c.Param("id"), c.Param("noteId"), req.Content, time.Now().UTC())
		if err != nil {
			s.noteError(c, "メモ更新エラー", err)
			return
		}
		s.respondCustomer(c, http.StatusOK)
	}
}

// handleDeleteNote はメモ削除を処理するハンドラを返す。
func (s *Server) handleDeleteNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.store.DeleteNote(c.Request.Context(), c.Param("id"), c.Param("noteId"), time.Now().UTC())
		if err != nil {
			s.noteError(c, "メモ削除エラー", err)
			return
		}
		s.respondCustomer(c, http.StatusOK)
	}
}

// respondCustomer はメモ操作後の顧客を取得して返す。
func (s *Server) respondCustomer(c *gin.Context, status int) {
	cust, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(status, gin.H{"status": "success", "data": toCustomerResponse(cust)})
}

// lookup はパスパラメータのIDで顧客を取得する。
// 見つからない場合はレスポンスを書き込んでfalseを返す。
func (s *Server) lookup(c *gin.Context) (*Customer, bool) {
	cust, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		middleware.AbortWithError(c, http.StatusNotFound, msgCustomerNotFound)
		return nil, false
	}
	if err != nil {
		s.internalError(c, "顧客取得エラー", err)
		return nil, false
	}
	return cust, true
}

// noteError はメモ操作のエラーをレスポンスに変換する。
func (s *Server) noteError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, msgCustomerNotFound)
	case errors.Is(err, ErrNoteNotFound):
		middleware.AbortWithError(c, http.StatusNotFound, msgNoteNotFound)
	default:
		s.internalError(c, msg, err)
	}
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	middleware.AbortWithError(c, http.StatusInternalServerError, middleware.MsgInternalServerError)
}

// parseListParams はクエリ文字列から一覧取得の条件を組み立てる。
func parseListParams(c *gin.Context) (ListParams, error) {
	p := ListParams{
		Search:  strings.TrimSpace(c.Query("search")),
		Company: c.Query("company"),
		SortBy:  c.DefaultQuery("sortBy", DefaultSortBy),
		Order:   c.DefaultQuery("order", DefaultOrder),
		Page:    1,
		Limit:   DefaultLimit,
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		return ListParams{}, errors.New("sortBy must be one of createdAt, updatedAt, firstName, lastName, email, company")
	}
	if p.Order != "asc" && p.Order != "desc" {
		return ListParams{}, errors.New("order must be asc or desc")
	}

	var err error
	if p.Page, err = positiveQuery(c, "page", 1); err != nil {
		return ListParams{}, err
	}
	if p.Limit, err = positiveQuery(c, "limit", DefaultLimit); err != nil {
		return ListParams{}, err
	}
	p.Limit = min(p.Limit, MaxLimit)
	return p, nil
}

func positiveQuery(c *gin.Context, key string, defaultValue int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return n, nil
}
