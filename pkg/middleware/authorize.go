package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"go.uber.org/zap"
)

// RequireRoles は指定ロールのいずれかを持つ主体だけを通すGinミドルウェアを返す。
// IdentityまたはGatewayの認証ステージが事前に適用されている必要がある。
// 主体がない場合は401、ロールが一致しない場合は403を返す。
// 403のレスポンスには不足しているロールを含めない。
func RequireRoles(logger *zap.Logger, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		switch authz.Authorize(roles, principal) {
		case authz.Allow:
			c.Next()
		case authz.DenyUnauthenticated:
			logger.Warn("認証されていない呼び出し元を拒否しました",
				zap.String("request_id", GetRequestID(c)),
				zap.Strings("required_roles", roles),
			)
			AbortWithError(c, http.StatusUnauthorized, MsgAuthRequired)
		default:
			logger.Warn("ロールが不足しているため拒否しました",
				zap.String("request_id", GetRequestID(c)),
				zap.String("user_id", principal.UserID),
				zap.Strings("required_roles", roles),
				zap.Strings("user_roles", principal.Roles),
			)
			AbortWithError(c, http.StatusForbidden, MsgForbidden)
		}
	}
}
