package cache

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionBaseTTL   = 10 * time.Minute // 基础过期时间
	versionTTLJitter = 2 * time.Minute  // 随机抖动范围，防止缓存雪崩
	emptyCacheMarker = -1               // 空值标记，防止缓存穿透
)

// VersionCache 条目当前版本号的读缓存
// 客户端靠轮询这个接口发现"别人保存过了"；冲突判定本身永远走数据库行锁，
// 这里只服务展示层，不参与一致性
type VersionCache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewVersionCache(rdb *redis.Client) *VersionCache {
	return &VersionCache{rdb: rdb}
}

func randomTTL() time.Duration {
	return versionBaseTTL + time.Duration(rand.Int63n(int64(versionTTLJitter)))
}

type versionResult struct {
	version uint64
	exists  bool
}

// readCache 三种结果：未命中（hit=false）、命中空值标记（hit=true, exists=false）、
// 命中真实版本
func (c *VersionCache) readCache(ctx context.Context, key string) (res versionResult, hit bool, err error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return versionResult{}, false, nil
		}
		return versionResult{}, false, err
	}
	// 不能用 ParseUint：空值标记是 -1
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return versionResult{}, false, err
	}
	if v == emptyCacheMarker {
		return versionResult{exists: false}, true, nil
	}
	return versionResult{version: uint64(v), exists: true}, true, nil
}

// GetVersion 读缓存，miss 时经 singleflight 回源 fetchDB
// fetchDB 返回 (版本, 是否存在, 错误)；不存在写空值标记防穿透，
// 并把"不存在"原样返回给调用方，和直接查库的答案保持一致
func (c *VersionCache) GetVersion(ctx context.Context, entryID uint64, fetchDB func() (uint64, bool, error)) (uint64, bool, error) {
	key := versionKey(entryID)
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		res, hit, err := c.readCache(ctx, key)
		if err != nil {
			return versionResult{}, err
		}
		if hit {
			return res, nil
		}

		ver, exists, err := fetchDB()
		if err != nil {
			return versionResult{}, err
		}
		if !exists {
			c.rdb.Set(ctx, key, emptyCacheMarker, 5*time.Minute)
			return versionResult{exists: false}, nil
		}
		c.rdb.Set(ctx, key, ver, randomTTL())
		return versionResult{version: ver, exists: true}, nil
	})
	if err != nil {
		return 0, false, err
	}
	if res, ok := val.(versionResult); ok {
		return res.version, res.exists, nil
	}
	return 0, false, errors.New("internal type error")
}

// Invalidate 保存成功后直接写入新版本，轮询端立即可见
func (c *VersionCache) Invalidate(ctx context.Context, entryID, newVersion uint64) error {
	return c.rdb.Set(ctx, versionKey(entryID), strconv.FormatUint(newVersion, 10), randomTTL()).Err()
}
