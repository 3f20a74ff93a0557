package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// RequestID はリクエストごとに一意な相関IDを発行するGinミドルウェアを返す。
// 他のすべてのミドルウェアより先に適用すること。クライアントが送った
// X-Request-IDは信用せず、常に新しいIDを発行する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		setRequestID(c, uuid.NewString())
		c.Next()
	}
}

// ForwardedRequestID はGatewayから転送されたX-Request-IDを引き継ぐGinミドルウェアを返す。
// Gatewayの背後にあるバックエンドサービスで使用する。UUIDとして不正な値や
// ヘッダーがない場合は新しいIDを発行する。
func ForwardedRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if err := uuid.Validate(id); err != nil {
			id = uuid.NewString()
		}
		setRequestID(c, id)
		c.Next()
	}
}

func setRequestID(c *gin.Context, id string) {
	c.Set(contextKeyRequestID, id)
	c.Header(HeaderRequestID, id)
}
