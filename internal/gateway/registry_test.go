package gateway

import (
	"errors"
	"net/url"
	"slices"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// TestRegistryMatch はRegistry.Matchを検証する。
func TestRegistryMatch(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(testRoutes("http://backend:3000"))
	if err != nil {
		t.Fatalf("NewRegistry()でエラーが発生: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		wantRoute string
		wantSub   string
		wantOK    bool
	}{
		{name: "接頭辞と完全一致すること", path: "/api/customers", wantRoute: "customers", wantSub: "", wantOK: true},
		{name: "接頭辞以下のパスに一致すること", path: "/api/customers/42/notes", wantRoute: "customers", wantSub: "/42/notes", wantOK: true},
		{name: "末尾のスラッシュは残りのパスとして保持されること", path: "/api/customers/", wantRoute: "customers", wantSub: "/", wantOK: true},
		{name: "残りのパスの連続したスラッシュは保持されること", path: "/api/customers/x//y", wantRoute: "customers", wantSub: "/x//y", wantOK: true},
		{name: "残りのパスのエスケープは保持されること", path: "/api/customers/a%2Fb", wantRoute: "customers", wantSub: "/a%2Fb", wantOK: true},
		{name: "接頭辞部分の空セグメントは読み飛ばされること", path: "/api//customers/1", wantRoute: "customers", wantSub: "/1", wantOK: true},
		{name: "接頭辞部分のエスケープはデコードして照合されること", path: "/api/%63ustomers/1", wantRoute: "customers", wantSub: "/1", wantOK: true},
		{name: "エスケープされたスラッシュは区切りとして扱わないこと", path: "/api%2Fcustomers", wantOK: false},
		{name: "より長い接頭辞が優先されること", path: "/api/auth/login", wantRoute: "auth-login", wantSub: "", wantOK: true},
		{name: "短い接頭辞にも一致すること", path: "/api/auth/users", wantRoute: "auth", wantSub: "/users", wantOK: true},
		{name: "セグメントの途中では一致しないこと", path: "/api/customersX", wantOK: false},
		{name: "ログインの接頭辞の途中では一致しないこと", path: "/api/auth/loginx", wantRoute: "auth", wantSub: "/loginx", wantOK: true},
		{name: "未登録のパスは一致しないこと", path: "/api/unknown", wantOK: false},
		{name: "ルートパスは一致しないこと", path: "/", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			route, sub, ok := registry.Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if !ok {
				if route != nil {
					t.Errorf("一致しない場合のルート = %+v, want nil", route)
				}
				return
			}
			if route.Name != tt.wantRoute {
				t.Errorf("ルート = %q, want %q", route.Name, tt.wantRoute)
			}
			if sub != tt.wantSub {
				t.Errorf("残りのパス = %q, want %q", sub, tt.wantSub)
			}
		})
	}
}

// TestNewRegistry はレジストリ生成時の検証を確認する。
func TestNewRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		configs []RouteConfig
		wantErr bool
	}{
		{
			name: "正規化後に重複する接頭辞はエラーになること",
			configs: []RouteConfig{
				{Name: "a", Prefix: "/api/a", Target: "http://a:1"},
				{Name: "b", Prefix: "api/a/", Target: "http://b:1"},
			},
			wantErr: true,
		},
		{
			name:    "転送先URLにスキームがない場合はエラーになること",
			configs: []RouteConfig{{Name: "a", Prefix: "/api/a", Target: "backend:3000"}},
			wantErr: true,
		},
		{
			name:    "ルート名が空の場合はエラーになること",
			configs: []RouteConfig{{Prefix: "/api/a", Target: "http://a:1"}},
			wantErr: true,
		},
		{
			name: "ルート \"/\" は全パスに一致するルートとして登録できること",
			configs: []RouteConfig{
				{Name: "root", Prefix: "/", Target: "http://a:1"},
				{Name: "a", Prefix: "/api/a", Target: "http://a:1"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(tt.configs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("errors.Is(err, ErrInvalidConfig) = false: %v", err)
			}
		})
	}

	t.Run("設定のロールを変更してもルートに影響しないこと", func(t *testing.T) {
		t.Parallel()

		roles := []string{"ADMIN"}
		registry, err := NewRegistry([]RouteConfig{{Name: "a", Prefix: "/a", Target: "http://a:1", RequiresAuth: true, Roles: roles}})
		if err != nil {
			t.Fatalf("NewRegistry()でエラーが発生: %v", err)
		}
		roles[0] = "USER"
		if got := registry.Routes()[0].Roles[0]; got != "ADMIN" {
			t.Errorf("ロール = %q, want ADMIN", got)
		}
	})

	t.Run("ルート \"/\" は他に一致しないパスを受け取ること", func(t *testing.T) {
		t.Parallel()

		registry, err := NewRegistry([]RouteConfig{
			{Name: "root", Prefix: "/", Target: "http://a:1"},
			{Name: "a", Prefix: "/api/a", Target: "http://a:1"},
		})
		if err != nil {
			t.Fatalf("NewRegistry()でエラーが発生: %v", err)
		}
		route, sub, ok := registry.Match("/other/path")
		if !ok || route.Name != "root" || sub != "/other/path" {
			t.Errorf("Match() = %v, %q, %v", route, sub, ok)
		}
	})
}

// TestRegistryMatchProperties は任意の接頭辞とパスで最長一致の性質を検証する。
// パスには空セグメント、末尾のスラッシュ、エスケープされたスラッシュを含める。
func TestRegistryMatchProperties(t *testing.T) {
	t.Parallel()

	prefixSegment := rapid.SampledFrom([]string{"api", "auth", "login", "customers", "sales", "x", "customersX"})
	pathSegment := rapid.SampledFrom([]string{"api", "auth", "login", "customers", "sales", "x", "customersX", "", "a%2Fb", "%63ustomers"})

	rapid.Check(t, func(t *rapid.T) {
		prefixes := rapid.SliceOfNDistinct(
			rapid.Map(rapid.SliceOfN(prefixSegment, 1, 3), func(s []string) string { return "/" + strings.Join(s, "/") }),
			1, 6, func(s string) string { return s },
		).Draw(t, "prefixes")

		configs := make([]RouteConfig, len(prefixes))
		for i, p := range prefixes {
			configs[i] = RouteConfig{Name: p, Prefix: p, Target: "http://backend:1"}
		}
		registry, err := NewRegistry(configs)
		if err != nil {
			t.Fatalf("NewRegistry()でエラーが発生: %v", err)
		}

		path := "/" + strings.Join(rapid.SliceOfN(pathSegment, 0, 6).Draw(t, "path"), "/")
		route, sub, ok := registry.Match(path)

		// 空セグメントを除いてデコードしたセグメント列で期待する最長一致を求める
		logical := decodedSegments(path)
		var want string
		for _, p := range prefixes {
			ps := strings.Split(p[1:], "/")
			if len(ps) <= len(logical) && slices.Equal(ps, logical[:len(ps)]) && len(p) > len(want) {
				want = p
			}
		}

		if want == "" {
			if ok {
				t.Fatalf("Match(%q) = %q, want 不一致", path, route.Prefix)
			}
			return
		}
		if !ok {
			t.Fatalf("Match(%q) が不一致, want %q", path, want)
		}
		if route.Prefix != want {
			t.Fatalf("Match(%q) = %q, want %q", path, route.Prefix, want)
		}
		// 残りのパスは元のパスの末尾そのものであること
		if !strings.HasSuffix(path, sub) {
			t.Fatalf("残り %q が %q の末尾ではない", sub, path)
		}
		head := strings.TrimSuffix(path, sub)
		if got := "/" + strings.Join(decodedSegments(head), "/"); got != want {
			t.Fatalf("接頭辞部分 %q = %q, want %q", head, got, want)
		}
	})
}

// decodedSegments は空セグメントを除き、各セグメントをデコードして返す。
func decodedSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		d, err := url.PathUnescape(seg)
		if err != nil {
			d = seg
		}
		out = append(out, d)
	}
	return out
}

// TestHasDotSegment はドットセグメントの検出を検証する。
func TestHasDotSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "通常のパスは検出しないこと", path: "/api/customers/1", want: false},
		{name: "\"..\" を検出すること", path: "/api/health-check/../customers", want: true},
		{name: "\".\" を検出すること", path: "/api/./customers", want: true},
		{name: "エスケープされた \"..\" を検出すること", path: "/api/%2E%2E/customers", want: true},
		{name: "ドットを含む名前は検出しないこと", path: "/api/files/a..b/.env", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := hasDotSegment(tt.path); got != tt.want {
				t.Errorf("hasDotSegment(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
