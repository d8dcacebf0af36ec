package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// EditorPresence 记录"谁正在编辑这个条目"
// 每次自动保存/心跳都会刷新编辑者的逻辑 TTL
type EditorPresence interface {
	AddEditor(ctx context.Context, entryID, userID uint64, username string, ttl time.Duration) error
	GetAliveEditors(ctx context.Context, entryID uint64) ([]Editor, error)
}

type Editor struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

// 具体实现：基于 redis 的 EditorPresence
type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) EditorPresence {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) AddEditor(ctx context.Context, entryID, userID uint64, username string, ttl time.Duration) error {
	// 刷新 TTL 也直接再调一次 AddEditor
	tx := p.rdb.TxPipeline()
	// ZSET score 使用 expireAt（Unix 秒），表达"逻辑 TTL"
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, editorsKey(entryID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(entryID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) GetAliveEditors(ctx context.Context, entryID uint64) ([]Editor, error) {
	// step1: 清理过期编辑者。约定 score=expireAt，expireAt <= now 视为过期
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = editorsKey(entryID)
	-- KEYS[2] = namesKey(entryID)
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
		redis.call("HDEL", KEYS[2], unpack(expired))
	end
	return #expired
	`
	script := redis.NewScript(luaScript)
	_, err := script.Run(ctx, p.rdb, []string{editorsKey(entryID), namesKey(entryID)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	// step2: 查询在线编辑者
	aliveIDs, err := p.rdb.ZRangeByScore(ctx, editorsKey(entryID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	// step3: 批量取名字
	names, err := p.rdb.HMGet(ctx, namesKey(entryID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	editors := make([]Editor, 0, len(aliveIDs))
	for i, raw := range aliveIDs {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		editors = append(editors, Editor{UserID: uid, Username: name})
	}
	return editors, nil
}
