// Package authz はロールベースの認可判定を提供する。
//
// Gatewayのルート単位の粗い認可と、各バックエンドサービスの
// オペレーション単位の細かい認可が同じ判定関数を共有することで、
// Gatewayが許可したリクエストがバックエンドでロールを理由に
// 予期せず拒否されることを防ぐ。
package authz
