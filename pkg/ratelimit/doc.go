// Package ratelimit はクライアントキー単位の固定ウィンドウ方式レート制限を提供する。
//
// カウンタの保持はStoreインターフェースに委譲する。単一インスタンスでは
// MemoryStore、Gatewayを水平スケールする場合はRedisStoreを注入することで、
// 複数インスタンス間でウィンドウを共有できる。
package ratelimit
