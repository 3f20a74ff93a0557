package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"go.uber.org/zap"
)

// forwardKey は転送先の情報をリクエストのコンテキストに格納するためのキー。
type forwardKey struct{}

// forwardTarget は1リクエスト分の転送先と伝播する主体。
type forwardTarget struct {
	route     *Route
	subPath   string
	principal *authz.Principal
	requestID string
}

// proxy はレジストリで解決したバックエンドへリクエストを転送する。
type proxy struct {
	rp      *httputil.ReverseProxy
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

// newProxy はリバースプロキシを生成する。
func newProxy(timeout time.Duration, logger *zap.Logger, metrics *Metrics) *proxy {
	p := &proxy{
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.handleError,
		ErrorLog:       zap.NewStdLog(logger.Named("reverseproxy")),
	}
	return p
}

// forward はリクエストを転送先へ送り、レスポンスを書き込む。
// タイムアウトはクライアントの切断と同様に転送先へのリクエストを取り消す。
func (p *proxy) forward(w http.ResponseWriter, r *http.Request, t *forwardTarget) {
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, forwardKey{}, t)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite は転送先URLと信頼済みヘッダーを設定する。
// クライアントが送ったX-User-ID/X-User-Rolesは常に削除し、認証が必要な
// ルートで主体が確定している場合のみGatewayが付与し直す。
func (p *proxy) rewrite(pr *httputil.ProxyRequest) {
	t := pr.In.Context().Value(forwardKey{}).(*forwardTarget)
	target := t.route.Target

	pr.Out.URL.Scheme = target.Scheme
	pr.Out.URL.Host = target.Host
	setEscapedPath(pr.Out.URL, joinPath(target.EscapedPath(), t.subPath))
	pr.Out.Host = ""
	pr.SetXForwarded()

	pr.Out.Header.Del(middleware.HeaderUserID)
	pr.Out.Header.Del(middleware.HeaderUserRoles)
	pr.Out.Header.Set(middleware.HeaderRequestID, t.requestID)
	if t.route.RequiresAuth && t.principal != nil {
		pr.Out.Header.Set(middleware.HeaderUserID, t.principal.UserID)
		pr.Out.Header.Set(middleware.HeaderUserRoles, middleware.EncodeRoles(t.principal.Roles))
	}
}

// modifyResponse はGatewayが管理するヘッダーをバックエンドのレスポンスから削除する。
// X-Request-IDはGatewayのミドルウェアが設定済みのため、バックエンドの値は使わない。
func (p *proxy) modifyResponse(resp *http.Response) error {
	for _, h := range middleware.ManagedHeaderNames() {
		resp.Header.Del(h)
	}
	resp.Header.Del(middleware.HeaderRequestID)
	return nil
}

// handleError は転送の失敗を共通のエラーレスポンスに変換する。
// タイムアウトは504、それ以外は502を返す。
func (p *proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	t := r.Context().Value(forwardKey{}).(*forwardTarget)

	status, msg, reason := http.StatusBadGateway, middleware.MsgBadGateway, "unavailable"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status, msg, reason = http.StatusGatewayTimeout, middleware.MsgGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}
	p.metrics.RecordUpstreamFailure(t.route.Name, reason)

	fields := []zap.Field{
		zap.String("request_id", t.requestID),
		zap.String("route", t.route.Name),
		zap.String("target", t.route.Target.String()),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if reason == "canceled" {
		p.logger.Info("クライアントが切断したため転送を中止しました", fields...)
	} else {
		p.logger.Error("バックエンドサービスへの転送に失敗しました", fields...)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(middleware.ErrorResponse{
		Error:     msg,
		RequestID: t.requestID,
	})
}

// setEscapedPath はエスケープされたパスをPathとRawPathの両方に設定する。
// "%2F" などのエスケープは転送先でもそのまま残る。
func setEscapedPath(u *url.URL, escaped string) {
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		u.Path, u.RawPath = escaped, ""
		return
	}
	u.Path, u.RawPath = unescaped, escaped
}

// joinPath は転送先URLのパスと接頭辞を除いた残りのパスを連結する。
// 残りのパスが空の場合は転送先のパスをそのまま使う。
func joinPath(base, sub string) string {
	if sub == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return strings.TrimSuffix(base, "/") + sub
}
