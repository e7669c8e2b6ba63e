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

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"verify-platform/internal/consensus"
)

// MemoryStore 进程内 LRU + TTL 缓存，保存结果指针供所有读者共享
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List // front = 最近使用
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryStore 创建内存缓存；maxEntries <= 0 时不限条目数
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock 注入时钟（测试用）
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get 命中时移到 LRU 头部并累加 hit_count；过期条目在此淘汰
func (s *MemoryStore) Get(ctx context.Context, key string) (*consensus.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*Entry)
	if entry.Expired(s.now()) {
		s.removeElement(el)
		return nil, false, nil
	}
	entry.HitCount++
	s.lru.MoveToFront(el)
	return entry.Result, true, nil
}

// Set 替换已有条目，超出容量时淘汰最久未使用的条目
func (s *MemoryStore) Set(ctx context.Context, key string, value *consensus.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{Key: key, Result: value, CreatedAt: s.now(), TTL: s.ttl}
	if el, ok := s.items[key]; ok {
		el.Value = entry
		s.lru.MoveToFront(el)
		return nil
	}
	s.items[key] = s.lru.PushFront(entry)
	for s.maxEntries > 0 && s.lru.Len() > s.maxEntries {
		s.removeElement(s.lru.Back())
	}
	return nil
}

// Delete 删除缓存
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		s.removeElement(el)
	}
	return nil
}

// Len 当前条目数（含尚未被读到的过期条目）
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len(), nil
}

// Peek 查看条目元数据，不影响 LRU 顺序与 hit_count
func (s *MemoryStore) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	return *el.Value.(*Entry), true
}

// Close 内存缓存无需关闭
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.lru.Remove(el)
	delete(s.items, el.Value.(*Entry).Key)
}
