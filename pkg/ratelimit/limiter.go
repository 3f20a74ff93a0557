package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// デフォルト値。
const (
	DefaultWindow = 15 * time.Minute
	DefaultMax    = 100
)

// Window は1つのクライアントキーに対する固定ウィンドウの状態。
type Window struct {
	// Start はウィンドウの開始時刻。
	Start time.Time
	// Count はウィンドウ内のリクエスト数（今回のリクエストを含む）。
	Count int
}

// Store はウィンドウの保持先。
// Increment はキーごとに不可分でなければならない。ウィンドウが存在しないか
// 期限切れならカウント1で新しいウィンドウを開始し、そうでなければ加算する。
type Store interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error)
}

// Decision はレート制限の判定結果。
type Decision struct {
	// Allowed はリクエストを許可するかどうか。
	Allowed bool
	// Limit はウィンドウあたりの最大リクエスト数。
	Limit int
	// Remaining はウィンドウ内で残っているリクエスト数。
	Remaining int
	// ResetAt はウィンドウがリセットされる時刻。
	ResetAt time.Time
}

// Limiter は固定ウィンドウ方式のレートリミッタ。
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
}

// Option はLimiterの設定を変更する関数。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テストで使用する。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// ErrInvalidConfig は不正なレート制限設定を表す。
var ErrInvalidConfig = errors.New("レート制限の設定が不正です")

// New は新しいLimiterを生成する。
func New(store Store, limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: storeがnilです", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: max=%d", ErrInvalidConfig, limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window=%s", ErrInvalidConfig, window)
	}

	l := &Limiter{
		store:  store,
		max:    limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Max はウィンドウあたりの最大リクエスト数を返す。
func (l *Limiter) Max() int {
	return l.max
}

// Window はウィンドウの長さを返す。
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow はキーに対するリクエストを1件数え、許可するかどうかを判定する。
// 加算後のカウントがmaxを超えた場合に拒否する。
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	w, err := l.store.Increment(ctx, key, l.now(), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("レート制限カウンタの更新に失敗: %w", err)
	}

	return Decision{
		Allowed:   w.Count <= l.max,
		Limit:     l.max,
		Remaining: max(0, l.max-w.Count),
		ResetAt:   w.Start.Add(l.window),
	}, nil
}
