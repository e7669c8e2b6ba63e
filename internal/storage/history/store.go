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

// Package history 保存已完成的核查结果，供按 ID 回查。
package history

import (
	"context"
	"fmt"
	"time"

	"verify-platform/internal/consensus"
	"verify-platform/pkg/config"
	"verify-platform/pkg/retention"
)

// Store 核查历史存储
type Store interface {
	// Save 保存结果；ID 为空时忽略
	Save(ctx context.Context, r *consensus.Result) error
	// Get 按 ID 获取；不存在时返回 (nil, nil)
	Get(ctx context.Context, id string) (*consensus.Result, error)
	// List 按时间倒序返回最近的结果
	List(ctx context.Context, limit int) ([]*consensus.Result, error)
	// Prune 删除 timestamp 早于 before 且结论被 sel 选中的记录
	Prune(ctx context.Context, before time.Time, sel retention.Selector) (int, error)
	Close()
}

// NewStore 根据配置创建历史存储
func NewStore(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewStoreMem(defaultMemLimit), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("history.dsn is required for postgres")
		}
		return NewStorePg(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported history type: %s", cfg.Type)
	}
}
