package customer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/authz"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/middleware"
	"github.com/yusufkaraasln/mindset-ms-case/pkg/sqlitedb"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-for-unit-tests"

// newTestServer はインメモリSQLiteで顧客サーバーを構築する。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := sqlitedb.Open(sqlitedb.MemoryPath)
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{Port: "0", Env: "test", LogLevel: "debug", DBPath: sqlitedb.MemoryPath, JWTSecret: testSecret}
	s, err := newServer(context.Background(), cfg, zaptest.NewLogger(t), db)
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	return s
}

// asRoles はGatewayが付与する信頼済みヘッダーを返す。
func asRoles(roles ...string) http.Header {
	h := http.Header{}
	h.Set(middleware.HeaderUserID, "user-1")
	h.Set(middleware.HeaderUserRoles, middleware.EncodeRoles(roles))
	return h
}

var (
	admin    = asRoles(authz.RoleAdmin)
	salesRep = asRoles(authz.RoleSalesRep)
)

// doRequest はJSONボディ付きのリクエストを送る。
func doRequest(t *testing.T, s *Server, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("リクエストボディのエンコードに失敗: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v: %s", err, w.Body.String())
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var resp middleware.ErrorResponse
	decodeJSON(t, w, &resp)
	return resp
}

// customerEnvelope は {"status", "message", "data": customer} 形式のレスポンス。
type customerEnvelope struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    customerResponse `json:"data"`
}

// listEnvelope は一覧レスポンス。
type listEnvelope struct {
	Data struct {
		Customers  []customerResponse `json:"customers"`
		Pagination pagination         `json:"pagination"`
	} `json:"data"`
}

// createCustomer は顧客を作成して返す。
func createCustomer(t *testing.T, s *Server, first, last, email, company string) customerResponse {
	t.Helper()

	w := doRequest(t, s, http.MethodPost, "/", map[string]string{
		"firstName": first,
		"lastName":  last,
		"email":     email,
		"company":   company,
	}, salesRep)
	if w.Code != http.StatusCreated {
		t.Fatalf("顧客作成のステータスコード = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp customerEnvelope
	decodeJSON(t, w, &resp)
	return resp.Data
}

// TestAuthorization はロールによる認可を検証する。
func TestAuthorization(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "Acme")

	tests := []struct {
		name       string
		method     string
		path       string
		header     http.Header
		wantStatus int
	}{
		{name: "主体がない場合は401", method: http.MethodGet, path: "/", header: nil, wantStatus: http.StatusUnauthorized},
		{name: "USERロールは403", method: http.MethodGet, path: "/", header: asRoles(authz.RoleUser), wantStatus: http.StatusForbidden},
		{name: "SALES_REPは一覧を取得できる", method: http.MethodGet, path: "/", header: salesRep, wantStatus: http.StatusOK},
		{name: "ADMINは一覧を取得できる", method: http.MethodGet, path: "/", header: admin, wantStatus: http.StatusOK},
		{name: "SALES_REPは削除できない", method: http.MethodDelete, path: "/" + created.ID, header: salesRep, wantStatus: http.StatusForbidden},
		{name: "ヘルスチェックは認証不要", method: http.MethodGet, path: "/health", header: nil, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name+"であること", func(t *testing.T) {
			t.Parallel()

			w := doRequest(t, s, tt.method, tt.path, nil, tt.header)
			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	t.Run("Bearerトークンでも認可されること", func(t *testing.T) {
		t.Parallel()

		token, err := middleware.GenerateJWT(testSecret, "user-2", "rep@example.com", []string{authz.RoleSalesRep}, time.Minute)
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)
		if w := doRequest(t, s, http.MethodGet, "/", nil, h); w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestCustomerCRUD は顧客の作成・取得・更新・削除を検証する。
func TestCustomerCRUD(t *testing.T) {
	t.Parallel()

	t.Run("作成した顧客を取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/", map[string]string{
			"firstName": "  Jane ",
			"lastName":  "Doe",
			"email":     "Jane@Example.com",
			"phone":     "555-0100",
		}, salesRep)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		var created customerEnvelope
		decodeJSON(t, w, &created)
		if created.Message != msgCustomerCreated {
			t.Errorf("message = %q, want %q", created.Message, msgCustomerCreated)
		}
		if created.Data.Email != "jane@example.com" {
			t.Errorf("email = %q, want %q", created.Data.Email, "jane@example.com")
		}
		if created.Data.FullName != "Jane Doe" {
			t.Errorf("fullName = %q, want %q", created.Data.FullName, "Jane Doe")
		}
		if created.Data.Notes == nil {
			t.Error("notesがnull")
		}

		w = doRequest(t, s, http.MethodGet, "/"+created.Data.ID, nil, salesRep)
		if w.Code != http.StatusOK {
			t.Fatalf("取得のステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var got customerEnvelope
		decodeJSON(t, w, &got)
		if got.Data.ID != created.Data.ID || got.Data.Phone != "555-0100" {
			t.Errorf("取得した顧客 = %+v", got.Data)
		}
	})

	t.Run("必須項目がない場合は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/", map[string]string{
			"firstName": "Jane",
			"email":     "jane@example.com",
		}, salesRep)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := decodeError(t, w).Error; got != middleware.MsgValidation {
			t.Errorf("error = %q, want %q", got, middleware.MsgValidation)
		}
	})

	t.Run("メールアドレスが重複する場合は409を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")
		w := doRequest(t, s, http.MethodPost, "/", map[string]string{
			"firstName": "Other",
			"lastName":  "Person",
			"email":     "JANE@example.com",
		}, salesRep)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("指定した項目だけが更新されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "Acme")

		w := doRequest(t, s, http.MethodPut, "/"+created.ID, map[string]string{"company": "Globex"}, salesRep)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		var got customerEnvelope
		decodeJSON(t, w, &got)
		if got.Message != msgCustomerUpdated {
			t.Errorf("message = %q, want %q", got.Message, msgCustomerUpdated)
		}
		if got.Data.Company != "Globex" || got.Data.FirstName != "Jane" {
			t.Errorf("更新後の顧客 = %+v", got.Data)
		}
		if !got.Data.UpdatedAt.After(created.UpdatedAt) {
			t.Errorf("updatedAt = %v, want after %v", got.Data.UpdatedAt, created.UpdatedAt)
		}
	})

	t.Run("氏名を空にする更新は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")

		w := doRequest(t, s, http.MethodPut, "/"+created.ID, map[string]string{"lastName": "   "}, salesRep)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("ADMINは顧客を削除できること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")

		w := doRequest(t, s, http.MethodDelete, "/"+created.ID, nil, admin)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if w := doRequest(t, s, http.MethodGet, "/"+created.ID, nil, admin); w.Code != http.StatusNotFound {
			t.Errorf("削除後の取得のステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	notFound := []struct {
		name   string
		method string
		body   any
	}{
		{name: "取得", method: http.MethodGet},
		{name: "更新", method: http.MethodPut, body: map[string]string{"company": "x"}},
		{name: "削除", method: http.MethodDelete},
	}
	for _, tt := range notFound {
		t.Run("存在しない顧客の"+tt.name+"は404を返すこと", func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t)
			w := doRequest(t, s, tt.method, "/missing", tt.body, admin)
			if w.Code != http.StatusNotFound {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
			}
			if got := decodeError(t, w).Error; got != msgCustomerNotFound {
				t.Errorf("error = %q, want %q", got, msgCustomerNotFound)
			}
		})
	}
}

// TestListCustomers は一覧の検索・絞り込み・並び替え・ページングを検証する。
func TestListCustomers(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	createCustomer(t, s, "Alice", "Smith", "alice@example.com", "Acme")
	createCustomer(t, s, "Bob", "Jones", "bob@example.com", "Globex")
	createCustomer(t, s, "Carol", "Smithers", "carol@example.com", "Acme")

	list := func(t *testing.T, query string) listEnvelope {
		t.Helper()
		w := doRequest(t, s, http.MethodGet, "/"+query, nil, salesRep)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		var resp listEnvelope
		decodeJSON(t, w, &resp)
		return resp
	}
	firstNames := func(resp listEnvelope) []string {
		names := make([]string, 0, len(resp.Data.Customers))
		for _, c := range resp.Data.Customers {
			names = append(names, c.FirstName)
		}
		return names
	}

	tests := []struct {
		name      string
		query     string
		want      []string
		wantTotal int
		wantPages int
	}{
		{name: "既定では作成日時の降順", query: "", want: []string{"Carol", "Bob", "Alice"}, wantTotal: 3, wantPages: 1},
		{name: "名前の昇順", query: "?sortBy=firstName&order=asc", want: []string{"Alice", "Bob", "Carol"}, wantTotal: 3, wantPages: 1},
		{name: "検索は大文字小文字を区別しない", query: "?search=SMITH&sortBy=firstName&order=asc", want: []string{"Alice", "Carol"}, wantTotal: 2, wantPages: 1},
		{name: "会社名で絞り込む", query: "?company=Globex", want: []string{"Bob"}, wantTotal: 1, wantPages: 1},
		{name: "2ページ目", query: "?sortBy=firstName&order=asc&page=2&limit=2", want: []string{"Carol"}, wantTotal: 3, wantPages: 2},
		{name: "ワイルドカードは文字として扱う", query: "?search=%25", want: []string{}, wantTotal: 0, wantPages: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name+"で取得できること", func(t *testing.T) {
			t.Parallel()

			resp := list(t, tt.query)
			got := firstNames(resp)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("顧客 = %v, want %v", got, tt.want)
			}
			if resp.Data.Pagination.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Data.Pagination.Total, tt.wantTotal)
			}
			if resp.Data.Pagination.Pages != tt.wantPages {
				t.Errorf("pages = %d, want %d", resp.Data.Pagination.Pages, tt.wantPages)
			}
		})
	}

	invalid := []string{"?sortBy=password", "?order=up", "?page=0", "?limit=abc"}
	for _, query := range invalid {
		t.Run(query+"は400を返すこと", func(t *testing.T) {
			t.Parallel()

			w := doRequest(t, s, http.MethodGet, "/"+query, nil, salesRep)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestNotes は顧客メモの追加・更新・削除を検証する。
func TestNotes(t *testing.T) {
	t.Parallel()

	t.Run("メモの追加・更新・削除が顧客に反映されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")

		w := doRequest(t, s, http.MethodPost, "/"+created.ID+"/notes", map[string]string{"content": "初回訪問"}, salesRep)
		if w.Code != http.StatusCreated {
			t.Fatalf("追加のステータスコード = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		var added customerEnvelope
		decodeJSON(t, w, &added)
		if len(added.Data.Notes) != 1 || added.Data.Notes[0].Content != "初回訪問" {
			t.Fatalf("notes = %+v", added.Data.Notes)
		}
		noteID := added.Data.Notes[0].ID

		w = doRequest(t, s, http.MethodPut, "/"+created.ID+"/notes/"+noteID, map[string]string{"content": "再訪問"}, salesRep)
		if w.Code != http.StatusOK {
			t.Fatalf("更新のステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var updated customerEnvelope
		decodeJSON(t, w, &updated)
		if updated.Data.Notes[0].Content != "再訪問" {
			t.Errorf("content = %q, want %q", updated.Data.Notes[0].Content, "再訪問")
		}

		w = doRequest(t, s, http.MethodDelete, "/"+created.ID+"/notes/"+noteID, nil, salesRep)
		if w.Code != http.StatusOK {
			t.Fatalf("削除のステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var deleted customerEnvelope
		decodeJSON(t, w, &deleted)
		if len(deleted.Data.Notes) != 0 {
			t.Errorf("notes = %+v, want empty", deleted.Data.Notes)
		}
	})

	t.Run("存在しない顧客へのメモ追加は404を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := doRequest(t, s, http.MethodPost, "/missing/notes", map[string]string{"content": "x"}, salesRep)
		if w.Code != http.StatusNotFound {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := decodeError(t, w).Error; got != msgCustomerNotFound {
			t.Errorf("error = %q, want %q", got, msgCustomerNotFound)
		}
	})

	t.Run("存在しないメモの更新は404を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")
		w := doRequest(t, s, http.MethodPut, "/"+created.ID+"/notes/missing", map[string]string{"content": "x"}, salesRep)
		if w.Code != http.StatusNotFound {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
		if got := decodeError(t, w).Error; got != msgNoteNotFound {
			t.Errorf("error = %q, want %q", got, msgNoteNotFound)
		}
	})

	t.Run("他の顧客のメモは操作できないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		jane := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")
		john := createCustomer(t, s, "John", "Doe", "john@example.com", "")

		w := doRequest(t, s, http.MethodPost, "/"+jane.ID+"/notes", map[string]string{"content": "x"}, salesRep)
		var added customerEnvelope
		decodeJSON(t, w, &added)
		noteID := added.Data.Notes[0].ID

		w = doRequest(t, s, http.MethodDelete, "/"+john.ID+"/notes/"+noteID, nil, salesRep)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("本文がない場合は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		created := createCustomer(t, s, "Jane", "Doe", "jane@example.com", "")
		w := doRequest(t, s, http.MethodPost, "/"+created.ID+"/notes", map[string]string{}, salesRep)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
