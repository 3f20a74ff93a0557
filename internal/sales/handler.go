package sales

import (
	"errors"
	"fmt"
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

// 営業サービス固有のメッセージ。
const (
	msgSaleCreated      = "Sale created successfully"
	msgSaleUpdated      = "Sale updated successfully"
	msgSaleDeleted      = "Sale deleted successfully"
	msgSaleNotFound     = "Sale not found"
	msgCustomerNotFound = "Customer not found"
)

// createSaleRequest は案件作成リクエストのJSON構造。
type createSaleRequest struct {
	CustomerID    string   `json:"customerId" binding:"required"`
	CurrentStatus Status   `json:"currentStatus"`
	Notes         []string `json:"notes"`
}

// updateSaleRequest は案件更新リクエストのJSON構造。
// noteはステータス変更時に履歴へ残すメモ。
type updateSaleRequest struct {
	CurrentStatus *Status  `json:"currentStatus"`
	Note          string   `json:"note"`
	Notes         []string `json:"notes"`
}

// historyResponse はステータス履歴のJSONレスポンス構造。
type historyResponse struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// saleResponse は案件のJSONレスポンス構造。
type saleResponse struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customerId"`
	CurrentStatus Status            `json:"currentStatus"`
	History       []historyResponse `json:"history"`
	Notes         []string          `json:"notes"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// pagination は一覧のページ情報。
type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

func toSaleResponse(s *Sale) saleResponse {
	history := make([]historyResponse, 0, len(s.History))
	for _, h := range s.History {
		history = append(history, historyResponse(h))
	}
	return saleResponse{
		ID:            s.ID,
		CustomerID:    s.CustomerID,
		CurrentStatus: s.Status,
		History:       history,
		Notes:         s.Notes,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// handleCreate は案件作成を処理するハンドラを返す。
// ステータスを省略した場合はNewで作成する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSaleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}
		customerID := strings.TrimSpace(req.CustomerID)
		if customerID == "" {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, "customerId must not be blank")
			return
		}
		if req.CurrentStatus != "" && !req.CurrentStatus.Valid() {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, statusError("currentStatus", req.CurrentStatus))
			return
		}
		if !s.customerExists(c, customerID) {
			return
		}

		now := time.Now().UTC()
		sale := &Sale{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			Status:     req.CurrentStatus,
			Notes:      req.Notes,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Create(c.Request.Context(), sale); err != nil {
			s.internalError(c, "案件作成エラー", err)
			return
		}

		s.logger.Info("案件を作成しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("sale_id", sale.ID),
			zap.String("customer_id", sale.CustomerID),
			zap.String("user_id", middleware.GetUserID(c)),
		)
		c.JSON(http.StatusCreated, gin.H{
			"status":  "success",
			"message": msgSaleCreated,
			"data":    toSaleResponse(sale),
		})
	}
}

// handleList は案件一覧取得を処理するハンドラを返す。
// customerId・status・page・limitのクエリに対応する。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := parseListParams(c)
		if err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}

		sales, total, err := s.store.List(c.Request.Context(), params)
		if err != nil {
			s.internalError(c, "案件一覧取得エラー", err)
			return
		}

		responses := make([]saleResponse, 0, len(sales))
		for i := range sales {
			responses = append(responses, toSaleResponse(&sales[i]))
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data": gin.H{
				"sales": responses,
				"pagination": pagination{
					Total: total,
					Page:  params.Page,
					Pages: int(math.Ceil(float64(total) / float64(params.Limit))),
				},
			},
		})
	}
}

// handleGetByID は案件詳細取得を処理するハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		sale, err := s.store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.saleError(c, "案件取得エラー", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": toSaleResponse(sale)})
	}
}

// handleUpdate は案件更新を処理するハンドラを返す。
// ステータスが変わった場合は履歴にnoteとともに追加する。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateSaleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, err.Error())
			return
		}
		if req.CurrentStatus != nil && !req.CurrentStatus.Valid() {
			middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, statusError("currentStatus", *req.CurrentStatus))
			return
		}

		sale, err := s.store.Update(c.Request.Context(), c.Param("id"), Change{
			Status:     req.CurrentStatus,
			StatusNote: req.Note,
			Notes:      req.Notes,
		}, time.Now().UTC())
		if err != nil {
			s.saleError(c, "案件更新エラー", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": msgSaleUpdated,
			"data":    toSaleResponse(sale),
		})
	}
}

// handleDelete は案件削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.store.Delete(c.Request.Context(), id); err != nil {
			s.saleError(c, "案件削除エラー", err)
			return
		}

		s.logger.Info("案件を削除しました",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("sale_id", id),
			zap.String("user_id", middleware.GetUserID(c)),
		)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": msgSaleDeleted})
	}
}

// customerExists は顧客サービスで顧客の存在を確認する。
// 確認先がない場合は常にtrueを返す。存在しない場合や確認に失敗した場合は
// レスポンスを書き込んでfalseを返す。
func (s *Server) customerExists(c *gin.Context, customerID string) bool {
	if s.customers == nil {
		return true
	}
	ctx := withCaller(c.Request.Context(), middleware.GetPrincipal(c), middleware.GetRequestID(c))
	ok, err := s.customers.CustomerExists(ctx, customerID)
	if err != nil {
		s.logger.Warn("顧客サービスへの問い合わせに失敗",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		middleware.AbortWithError(c, http.StatusBadGateway, middleware.MsgBadGateway)
		return false
	}
	if !ok {
		middleware.AbortWithErrorDetail(c, http.StatusBadRequest, middleware.MsgValidation, msgCustomerNotFound)
		return false
	}
	return true
}

// saleError は案件操作のエラーをレスポンスに変換する。
func (s *Server) saleError(c *gin.Context, msg string, err error) {
	if errors.Is(err, ErrNotFound) {
		middleware.AbortWithError(c, http.StatusNotFound, msgSaleNotFound)
		return
	}
	s.internalError(c, msg, err)
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
	)
	middleware.AbortWithError(c, http.StatusInternalServerError, middleware.MsgInternalServerError)
}

func statusError(field string, s Status) string {
	return fmt.Sprintf("%s %q must be one of New, Contacted, Agreement, Closed", field, s)
}

// parseListParams はクエリ文字列から一覧取得の条件を組み立てる。
func parseListParams(c *gin.Context) (ListParams, error) {
	p := ListParams{
		CustomerID: c.Query("customerId"),
		Status:     Status(c.Query("status")),
		Page:       1,
		Limit:      DefaultLimit,
	}
	if p.Status != "" && !p.Status.Valid() {
		return ListParams{}, errors.New(statusError("status", p.Status))
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
