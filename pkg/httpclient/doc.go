// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 呼び出し元のリクエストIDと検証済みの主体をコンテキストから取り出し、
// X-Request-ID、X-User-ID、X-User-Rolesヘッダーとして伝播する。
// Gatewayのバックエンド死活確認もこのクライアントを使用する。
package httpclient
