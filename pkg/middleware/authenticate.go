package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"go.uber.org/zap"
)

// maxLoggedHeaderLen はログに出力するAuthorizationヘッダーの最大長。
const maxLoggedHeaderLen = 24

// Authenticate はBearerトークンを必須とするGinミドルウェアを返す。
// 検証に成功した場合は主体をコンテキストに設定し、失敗した場合は401を返す。
func Authenticate(validator *TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := verifyBearer(c, validator, logger)
		if !ok {
			return
		}
		SetPrincipal(c, p)
	}
}

// verifyBearer はAuthorizationヘッダーを検証する。
// 失敗した場合はエラーレスポンスを書き込んで false を返す。
func verifyBearer(c *gin.Context, validator *TokenValidator, logger *zap.Logger) (*authz.Principal, bool) {
	authHeader := c.GetHeader("Authorization")
	p, err := validator.Validate(authHeader)
	if err != nil {
		logger.Warn("認証に失敗しました",
			zap.String("request_id", GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.String("authorization", truncateHeader(authHeader)),
			zap.Error(err),
		)
		AbortWithErrorDetail(c, http.StatusUnauthorized, MsgAuthRequired, AuthFailureDetail(err))
		return nil, false
	}
	return p, true
}

// truncateHeader はトークン全体がログに残らないようヘッダー値を切り詰める。
func truncateHeader(v string) string {
	if len(v) <= maxLoggedHeaderLen {
		return v
	}
	return v[:maxLoggedHeaderLen] + "..."
}
