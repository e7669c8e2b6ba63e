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

package history

import (
	"context"
	"sync"
	"time"

	"verify-platform/internal/consensus"
	"verify-platform/pkg/retention"
)

const defaultMemLimit = 10000

// StoreMem 内存实现，超过 limit 时丢弃最早的记录
type StoreMem struct {
	mu    sync.RWMutex
	byID  map[string]*consensus.Result
	order []string
	limit int
}

// NewStoreMem 创建内存历史存储
func NewStoreMem(limit int) *StoreMem {
	if limit <= 0 {
		limit = defaultMemLimit
	}
	return &StoreMem{byID: make(map[string]*consensus.Result), limit: limit}
}

func (s *StoreMem) Save(ctx context.Context, r *consensus.Result) error {
	if r == nil || r.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.byID[r.ID] = r
	for len(s.order) > s.limit {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *StoreMem) Get(ctx context.Context, id string) (*consensus.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id], nil
}

func (s *StoreMem) List(ctx context.Context, limit int) ([]*consensus.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*consensus.Result, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out, nil
}

func (s *StoreMem) Prune(ctx context.Context, before time.Time, sel retention.Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	n := 0
	for _, id := range s.order {
		r := s.byID[id]
		if r.Timestamp.Before(before) && sel.Match(string(r.FinalVerdict)) {
			delete(s.byID, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

func (s *StoreMem) Close() {}
