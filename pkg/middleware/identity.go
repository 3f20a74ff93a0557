package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"go.uber.org/zap"
)

// Gatewayからバックエンドへ検証済みのIDを伝播する信頼済みヘッダー。
// クライアントから送られた同名ヘッダーはGatewayが必ず削除する。
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// EncodeRoles はロールをX-User-RolesヘッダーのJSON配列に変換する。
func EncodeRoles(roles []string) string {
	if roles == nil {
		roles = []string{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		// []stringのMarshalは失敗しない
		return "[]"
	}
	return string(b)
}

// DecodeRoles はX-User-RolesヘッダーのJSON配列をロールに変換する。
func DecodeRoles(header string) ([]string, error) {
	if header == "" {
		return []string{}, nil
	}
	var roles []string
	if err := json.Unmarshal([]byte(header), &roles); err != nil {
		return nil, fmt.Errorf("ロールヘッダーのデコードに失敗: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

// PrincipalFromHeaders は信頼済みヘッダーからPrincipalを復元する。
// X-User-IDがない場合は nil を返す（未認証の呼び出し元）。
func PrincipalFromHeaders(h http.Header) (*authz.Principal, error) {
	userID := h.Get(HeaderUserID)
	if userID == "" {
		return nil, nil
	}
	roles, err := DecodeRoles(h.Get(HeaderUserRoles))
	if err != nil {
		return nil, err
	}
	return &authz.Principal{UserID: userID, Roles: roles}, nil
}

// Identity はバックエンドサービスで呼び出し元の主体を確定するGinミドルウェアを返す。
//
// Gatewayが付与した信頼済みヘッダーがあればそれを使用する。ない場合で
// Bearerトークンが送られていれば自身で検証する（多層防御）。どちらもない
// 呼び出し元は未認証として扱い、判断はRequireRolesに委ねる。
func Identity(validator *TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := PrincipalFromHeaders(c.Request.Header)
		if err != nil {
			logger.Warn("信頼済みヘッダーが不正です",
				zap.String("request_id", GetRequestID(c)),
				zap.String("roles_header", c.GetHeader(HeaderUserRoles)),
				zap.Error(err),
			)
			AbortWithError(c, http.StatusUnauthorized, MsgAuthRequired)
			return
		}
		if p != nil {
			SetPrincipal(c, p)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || validator == nil {
			c.Next()
			return
		}

		p, ok := verifyBearer(c, validator, logger)
		if !ok {
			return
		}
		SetPrincipal(c, p)
		c.Next()
	}
}
