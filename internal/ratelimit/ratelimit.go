// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit 按数据源的令牌桶限流：令牌不足时延迟放行，从不拒绝。
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"verify-platform/pkg/metrics"
)

// Bucket 令牌桶参数
type Bucket struct {
	Capacity     int     `json:"capacity"`
	RefillPerSec float64 `json:"refill_per_sec"`
}

// Snapshot 令牌桶当前状态；Tokens 始终在 [0, Capacity] 内
type Snapshot struct {
	Source       string    `json:"source"`
	Capacity     int       `json:"capacity"`
	RefillPerSec float64   `json:"refill_per_sec"`
	Tokens       float64   `json:"tokens"`
	LastRefill   time.Time `json:"last_refill"`
}

type bucket struct {
	cfg     Bucket
	limiter *rate.Limiter

	mu         sync.Mutex
	lastRefill time.Time
}

// Limiter 每个数据源一个令牌桶，懒创建
type Limiter struct {
	defaults  Bucket
	overrides map[string]Bucket

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// New 创建限流器；defaults 非法时回落到 capacity 5、每秒 1 个
func New(defaults Bucket, overrides map[string]Bucket) *Limiter {
	defaults = sanitize(defaults, Bucket{Capacity: 5, RefillPerSec: 1})
	ov := make(map[string]Bucket, len(overrides))
	for name, b := range overrides {
		ov[name] = sanitize(b, defaults)
	}
	return &Limiter{
		defaults:  defaults,
		overrides: ov,
		buckets:   make(map[string]*bucket),
	}
}

func sanitize(b, fallback Bucket) Bucket {
	if b.Capacity <= 0 {
		b.Capacity = fallback.Capacity
	}
	if b.RefillPerSec <= 0 {
		b.RefillPerSec = fallback.RefillPerSec
	}
	return b
}

func (l *Limiter) get(source string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[source]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[source]; ok {
		return b
	}
	cfg := l.defaults
	if o, ok := l.overrides[source]; ok {
		cfg = o
	}
	b = &bucket{
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RefillPerSec), cfg.Capacity),
		lastRefill: time.Now(),
	}
	l.buckets[source] = b
	return b
}

// Wait 获取一个令牌，令牌不足时挂起调用方直到可用或 ctx 结束。
// 返回实际等待时间；ctx 在令牌可用前结束时返回错误。
func (l *Limiter) Wait(ctx context.Context, source string) (time.Duration, error) {
	b := l.get(source)
	start := time.Now()

	r := b.limiter.Reserve()
	if !r.OK() {
		return 0, fmt.Errorf("rate limiter for %s cannot grant a token", source)
	}
	delay := r.Delay()
	if delay > 0 {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			r.Cancel()
			return 0, fmt.Errorf("rate limit wait %s for %s exceeds remaining budget", delay, source)
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return time.Since(start), fmt.Errorf("rate limit wait for %s: %w", source, ctx.Err())
		}
	}

	b.mu.Lock()
	b.lastRefill = time.Now()
	b.mu.Unlock()

	waited := time.Since(start)
	metrics.RateLimitWait.WithLabelValues(source).Observe(waited.Seconds())
	return waited, nil
}

// Snapshot 返回数据源令牌桶状态
func (l *Limiter) Snapshot(source string) Snapshot {
	b := l.get(source)
	tokens := b.limiter.Tokens()
	if tokens < 0 {
		tokens = 0
	}
	if max := float64(b.cfg.Capacity); tokens > max {
		tokens = max
	}
	b.mu.Lock()
	last := b.lastRefill
	b.mu.Unlock()
	return Snapshot{
		Source:       source,
		Capacity:     b.cfg.Capacity,
		RefillPerSec: b.cfg.RefillPerSec,
		Tokens:       tokens,
		LastRefill:   last,
	}
}

// Snapshots 所有已创建令牌桶的状态，按名称排序
func (l *Limiter) Snapshots() []Snapshot {
	l.mu.RLock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, l.Snapshot(name))
	}
	return out
}
