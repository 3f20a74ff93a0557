package middleware

import (
	"github.com/gin-gonic/gin"
)

// クライアントに返すエラーメッセージ。内部の詳細は含めない。
const (
	MsgInternalServerError = "Internal Server Error"
	MsgAuthRequired        = "Authentication required"
	MsgForbidden           = "Forbidden"
	MsgNotFound            = "Not Found"
	MsgBadRequest          = "Bad Request"
	MsgValidation          = "Validation error"
	MsgTooManyRequests     = "Too many requests from this IP, please try again later."
	MsgBadGateway          = "Bad Gateway"
	MsgGatewayTimeout      = "Gateway Timeout"
)

// ErrorResponse は全ステージ共通のエラーレスポンス。
type ErrorResponse struct {
	// Error は安定した人間向けのエラーメッセージ。
	Error string `json:"error"`
	// Message は診断用の補足情報。
	Message string `json:"message,omitempty"`
	// RequestID はリクエストの相関ID。
	RequestID string `json:"requestId"`
}

// AbortWithError はエラーレスポンスを書き込み、後続のハンドラを中断する。
func AbortWithError(c *gin.Context, status int, msg string) {
	AbortWithErrorDetail(c, status, msg, "")
}

// AbortWithErrorDetail は診断用メッセージ付きのエラーレスポンスを書き込み、
// 後続のハンドラを中断する。
func AbortWithErrorDetail(c *gin.Context, status int, msg, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Message:   detail,
		RequestID: GetRequestID(c),
	})
}
