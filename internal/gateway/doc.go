// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。全リクエストにリクエストIDを付与し、セキュリティヘッダー、
// レート制限、JWT認証、ロール認可を適用したうえで、パスの接頭辞に
// 対応するバックエンドサービスへリバースプロキシで転送する。
// 検証済みの主体はX-User-ID/X-User-Rolesヘッダーとして伝播する。
package gateway
