package cache

import (
	"context"
	"time"

	"verify-platform/internal/consensus"
)

// Store 核查结果缓存接口；命中返回的 *consensus.Result 为只读共享对象
type Store interface {
	// Get 获取缓存，过期视为未命中
	Get(ctx context.Context, key string) (*consensus.Result, bool, error)
	// Set 写入缓存（整体替换，不做局部更新）
	Set(ctx context.Context, key string, value *consensus.Result) error
	// Delete 删除缓存
	Delete(ctx context.Context, key string) error
	// Len 当前条目数
	Len(ctx context.Context) (int, error)
	// Close 关闭缓存连接
	Close() error
}

// Entry 缓存条目
type Entry struct {
	Key       string
	Result    *consensus.Result
	CreatedAt time.Time
	TTL       time.Duration
	HitCount  int64
}

// Expired now - created_at >= ttl 即过期；ttl <= 0 永不过期
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) >= e.TTL
}
