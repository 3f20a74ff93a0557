package sales

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/httpclient"
)

// CustomerChecker は案件の顧客IDが存在するかを確認する。
type CustomerChecker interface {
	CustomerExists(ctx context.Context, id string) (bool, error)
}

// customerClient は顧客サービスに問い合わせるCustomerChecker。
// 呼び出し元の主体とリクエストIDをそのまま伝播する。
type customerClient struct {
	client *httpclient.Client
}

// newCustomerClient は顧客サービスのベースURLからCustomerCheckerを生成する。
func newCustomerClient(baseURL string, opts ...httpclient.Option) *customerClient {
	return &customerClient{client: httpclient.New(baseURL, opts...)}
}

// CustomerExists は顧客サービスの GET /:id で顧客の存在を確認する。
func (c *customerClient) CustomerExists(ctx context.Context, id string) (bool, error) {
	err := c.client.Ping(ctx, "/"+url.PathEscape(id))
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// withCaller はサービス間通信に呼び出し元の主体とリクエストIDを載せる。
func withCaller(ctx context.Context, p *authz.Principal, requestID string) context.Context {
	return httpclient.WithPrincipal(httpclient.WithRequestID(ctx, requestID), p)
}
