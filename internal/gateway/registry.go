package gateway

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
)

// Route はサービスレジストリの1エントリ。NewRegistry以降は変更しない。
type Route struct {
	// Name はルートの識別名。
	Name string
	// Prefix は正規化済みの接頭辞（先頭に "/"、末尾に "/" なし）。
	Prefix string
	// Target は転送先のURL。
	Target *url.URL
	// RequiresAuth は認証が必要かどうか。
	RequiresAuth bool
	// Roles はアクセスに必要なロール（いずれか1つ）。空なら認証のみ。
	Roles []string
}

// Registry はパスの接頭辞からバックエンドサービスを解決する。
// 複数の接頭辞に一致する場合は最も長い接頭辞を優先する。
type Registry struct {
	// routes は接頭辞の長い順に並べたルート。
	routes []*Route
}

// NewRegistry はルート設定を検証してレジストリを生成する。
// 接頭辞の重複や不正な転送先URLは設定エラーとして扱う。
func NewRegistry(configs []RouteConfig) (*Registry, error) {
	seen := make(map[string]string, len(configs))
	routes := make([]*Route, 0, len(configs))

	for _, rc := range configs {
		if rc.Name == "" {
			return nil, fmt.Errorf("%w: ルート名が空です (prefix=%q)", ErrInvalidConfig, rc.Prefix)
		}
		prefix := normalizePrefix(rc.Prefix)
		if other, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("%w: 接頭辞 %q が重複しています (%s, %s)", ErrInvalidConfig, displayPrefix(prefix), other, rc.Name)
		}
		seen[prefix] = rc.Name

		target, err := url.Parse(rc.Target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("%w: ルート %s の転送先 %q が不正です", ErrInvalidConfig, rc.Name, rc.Target)
		}

		routes = append(routes, &Route{
			Name:         rc.Name,
			Prefix:       prefix,
			Target:       target,
			RequiresAuth: rc.RequiresAuth,
			Roles:        slices.Clone(rc.Roles),
		})
	}

	slices.SortStableFunc(routes, func(a, b *Route) int {
		return len(b.Prefix) - len(a.Prefix)
	})
	return &Registry{routes: routes}, nil
}

// Match はエスケープされたままのリクエストパスに一致するルートと、
// 接頭辞を除いた残りのパスをエスケープされた形のまま返す。
// 接頭辞はセグメント単位で照合し、接頭辞部分の空セグメントは読み飛ばす。
// "%2F" はセグメントの区切りとして扱わない。
func (r *Registry) Match(escapedPath string) (*Route, string, bool) {
	segments := strings.Split(strings.TrimPrefix(escapedPath, "/"), "/")
	for _, route := range r.routes {
		if rest, ok := matchSegments(route.Prefix, segments); ok {
			return route, rest, true
		}
	}
	return nil, "", false
}

// matchSegments は接頭辞がセグメント列の先頭に一致するか判定し、
// 残りのセグメントを "/" で連結して返す。
func matchSegments(prefix string, segments []string) (string, bool) {
	i := 0
	if prefix != "" {
		for _, want := range strings.Split(prefix[1:], "/") {
			for i < len(segments) && segments[i] == "" {
				i++
			}
			if i == len(segments) {
				return "", false
			}
			got, err := url.PathUnescape(segments[i])
			if err != nil || got != want {
				return "", false
			}
			i++
		}
	}
	if i == len(segments) {
		return "", true
	}
	return "/" + strings.Join(segments[i:], "/"), true
}

// hasDotSegment はパスに "." または ".." のセグメントが含まれるか判定する。
// "%2E" のようにエスケープされたものも含む。
func hasDotSegment(escapedPath string) bool {
	for _, seg := range strings.Split(escapedPath, "/") {
		if got, err := url.PathUnescape(seg); err == nil && (got == "." || got == "..") {
			return true
		}
	}
	return false
}

// Routes は登録済みのルートを接頭辞の長い順に返す。
func (r *Registry) Routes() []*Route {
	return slices.Clone(r.routes)
}

// normalizePrefix は接頭辞を先頭 "/" あり、末尾 "/" なしの形にそろえる。
// ルート "/" は空文字列になり、全てのパスに一致する。
func normalizePrefix(prefix string) string {
	return strings.TrimSuffix(cleanPath(prefix), "/")
}

// cleanPath は "." や ".." を解決したパスを返す。接頭辞の正規化に使う。
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// displayPrefix はログ出力用の接頭辞を返す。
func displayPrefix(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}
