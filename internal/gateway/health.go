package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpclient"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout はバックエンド1件あたりの死活確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// バックエンドの死活状態。
const (
	serviceUp   = "up"
	serviceDown = "down"
)

// handleHealth はGatewayのヘルスチェックハンドラを返す。
// deep=1 が指定された場合は全バックエンドの /health を確認し、
// 1つでも応答しなければ503を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("deep") != "1" {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
			return
		}

		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		services := s.checkBackends(ctx)

		status, code := "ok", http.StatusOK
		for _, state := range services {
			if state != serviceUp {
				status, code = "degraded", http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, gin.H{"status": status, "service": "gateway", "services": services})
	}
}

// checkBackends はレジストリの転送先ホストごとに1回だけ死活確認を行い、
// ルート名ごとの状態を返す。
func (s *Server) checkBackends(ctx context.Context) map[string]string {
	byBase := make(map[string][]string)
	for _, route := range s.registry.Routes() {
		base := route.Target.Scheme + "://" + route.Target.Host
		byBase[base] = append(byBase[base], route.Name)
	}

	var (
		mu       sync.Mutex
		services = make(map[string]string, len(s.registry.Routes()))
		g        errgroup.Group
	)
	for base, names := range byBase {
		g.Go(func() error {
			state := serviceUp
			client := httpclient.New(base, httpclient.WithTimeout(healthCheckTimeout))
			if err := client.Ping(ctx, "/health"); err != nil {
				state = serviceDown
				s.logger.Warn("バックエンドの死活確認に失敗しました",
					zap.String("target", base),
					zap.Strings("routes", names),
					zap.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, name := range names {
				services[name] = state
			}
			return nil
		})
	}
	_ = g.Wait()
	return services
}
