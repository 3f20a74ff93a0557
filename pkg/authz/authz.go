package authz

import "slices"

// ロール名。ユーザーサービスが発行するトークンのrolesクレームに含まれる。
const (
	RoleAdmin    = "ADMIN"
	RoleUser     = "USER"
	RoleSalesRep = "SALES_REP"
)

// KnownRoles はシステムで定義されているロールの一覧。
var KnownRoles = []string{RoleAdmin, RoleUser, RoleSalesRep}

// Principal は検証済みトークンから得られた認証済みの主体。
// 1リクエストの間だけ存在し、永続化されない。
type Principal struct {
	// UserID はユーザーの一意識別子。
	UserID string
	// Roles はユーザーが持つロールの集合。
	Roles []string
}

// HasRole はPrincipalが指定ロールを持つかを返す。
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

// Decision は認可判定の結果。
type Decision int

const (
	// Allow はアクセスを許可する。
	Allow Decision = iota
	// DenyUnauthenticated は認証済みの主体が存在しないため拒否する。
	DenyUnauthenticated
	// DenyForbidden は認証済みだが必要なロールを持たないため拒否する。
	DenyForbidden
)

// String はDecisionの文字列表現を返す。ログ出力に使用する。
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "unknown"
	}
}

// Authorize は要求ロールと主体のロールを比較して認可判定を行う。
//
// required が空の場合は常に許可する。principal が nil の場合は
// DenyUnauthenticated を返す。それ以外は、主体のロールのいずれか1つが
// required に含まれていれば許可する（OR条件）。
func Authorize(required []string, principal *Principal) Decision {
	if len(required) == 0 {
		return Allow
	}
	if principal == nil {
		return DenyUnauthenticated
	}
	for _, role := range principal.Roles {
		if slices.Contains(required, role) {
			return Allow
		}
	}
	return DenyForbidden
}
