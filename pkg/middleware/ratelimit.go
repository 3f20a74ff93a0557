package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimit はクライアントIPごとに固定ウィンドウでリクエスト数を制限するGinミドルウェアを返す。
// 上限を超えたリクエストには429を返し、後続のステージを実行しない。
// カウンタの保持先が利用できない場合はリクエストを通す（フェイルオープン）。
func RateLimit(limiter *ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("レート制限の判定に失敗したためリクエストを通します",
				zap.String("request_id", GetRequestID(c)),
				zap.String("client_ip", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		resetSeconds := secondsUntil(decision.ResetAt)
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.FormatInt(resetSeconds, 10))
			logger.Info("レート制限を超過しました",
				zap.String("request_id", GetRequestID(c)),
				zap.String("client_ip", key),
				zap.Int("limit", decision.Limit),
			)
			AbortWithError(c, http.StatusTooManyRequests, MsgTooManyRequests)
			return
		}

		c.Next()
	}
}

// secondsUntil は指定時刻までの秒数を切り上げで返す。過去の時刻なら0を返す。
func secondsUntil(t time.Time) int64 {
	d := time.Until(t)
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
