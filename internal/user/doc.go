// Package user はユーザーサービスを実装する。
//
// ログインでJWTトークンを発行し、ADMINロールを持つユーザーに対して
// ユーザーの作成・一覧・更新・削除を提供する。ユーザーはSQLiteに保存し、
// パスワードはbcryptでハッシュ化する。
//
// /users 配下はGatewayが付与する X-User-ID / X-User-Roles ヘッダー、
// またはBearerトークンから主体を復元し、ロールで認可する。
package user
