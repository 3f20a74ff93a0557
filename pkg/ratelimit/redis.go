package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript はINCRとPEXPIREを不可分に実行し、カウントと残りTTL(ms)を返す。
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// defaultKeyPrefix はRedisキーの接頭辞。
const defaultKeyPrefix = "ratelimit:"

// RedisStore はRedisにウィンドウを保持するStore。
// 複数のGatewayインスタンスで同じカウンタを共有する。
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore は新しいRedisStoreを生成する。
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}
}

// Increment はLuaスクリプトでキーのカウンタを更新する。
// ウィンドウの期限はRedisのTTLで管理する。
func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (Window, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("Redisスクリプトの実行に失敗: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("Redisスクリプトの応答が不正です: %v", res)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	return Window{
		Start: now.Add(ttl - window),
		Count: int(count),
	}, nil
}
