package utils

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetRedis(rc)
	t.Cleanup(func() {
		SetRedis(nil)
		_ = rc.Close()
	})
	return mr
}

func TestCache_SetGetTTL(t *testing.T) {
	mr := withRedis(t)

	CacheSetBytes("cache:x", []byte(`{"a":1}`), time.Minute)
	b, ok := CacheGetBytes("cache:x")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(b))
	assert.Equal(t, time.Minute, mr.TTL("cache:x"))

	CacheSetJSON("cache:y", map[string]int{"n": 2}, 0)
	assert.Equal(t, defaultCacheTTL, mr.TTL("cache:y"))

	mr.FastForward(defaultCacheTTL + time.Second)
	_, ok = CacheGetBytes("cache:y")
	assert.False(t, ok)
}

func TestCache_InvalidateListing(t *testing.T) {
	mr := withRedis(t)

	keep := ListCacheKey("event", "", "new", false, 1, 10)
	CacheSetBytes(ListCacheKey("post", "", "new", false, 1, 10), []byte("1"), time.Minute)
	CacheSetBytes(ListCacheKey("post", "free", "hot", false, 2, 10), []byte("1"), time.Minute)
	CacheSetBytes(DetailCacheKey("post", 3), []byte("1"), time.Minute)
	CacheSetBytes(DetailCacheKey("post", 4), []byte("1"), time.Minute)
	CacheSetBytes(CacheStatsKey+":site", []byte("1"), time.Minute)
	CacheSetBytes(keep, []byte("1"), time.Minute)

	InvalidateListing("post", 3)

	assert.False(t, mr.Exists(ListCacheKey("post", "", "new", false, 1, 10)))
	assert.False(t, mr.Exists(ListCacheKey("post", "free", "hot", false, 2, 10)))
	assert.False(t, mr.Exists(DetailCacheKey("post", 3)))
	assert.False(t, mr.Exists(CacheStatsKey+":site"))
	assert.True(t, mr.Exists(DetailCacheKey("post", 4)))
	assert.True(t, mr.Exists(keep))
}

func TestTokenBlacklist_Redis(t *testing.T) {
	mr := withRedis(t)

	BlacklistToken("tok-r", time.Now().Add(time.Minute))
	assert.True(t, mr.Exists("jwt:blacklist:tok-r"))
	assert.True(t, IsTokenBlacklisted("tok-r"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, IsTokenBlacklisted("tok-r"))
}

func TestState_RedisConsumesOnce(t *testing.T) {
	mr := withRedis(t)

	state := NewState(time.Minute)
	assert.True(t, mr.Exists("oauth:state:"+state))
	assert.True(t, ConsumeState(state))
	assert.False(t, ConsumeState(state))
}

func TestCaptcha_Redis(t *testing.T) {
	mr := withRedis(t)

	require.NoError(t, captchaStore.Set("cid", "12345"))
	assert.Equal(t, captchaTTL, mr.TTL("captcha:cid"))
	assert.False(t, VerifyCaptcha("cid", ""))
	assert.True(t, VerifyCaptcha("cid", "12345"))
	assert.False(t, VerifyCaptcha("cid", "12345"))
}
