// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// リクエストIDの付与、セキュリティヘッダー、CORS、レート制限、
// Bearerトークンの検証、ロールによる認可、パニックリカバリ、
// アクセスログなど、Gatewayと各バックエンドサービスで共通して
// 使用するミドルウェアを含む。エラーレスポンスはすべて
// {"error", "message", "requestId"} の形式に統一する。
package middleware
