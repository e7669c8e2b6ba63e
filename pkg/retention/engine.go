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

package retention

import (
	"context"
	"slices"
	"time"

	"verify-platform/pkg/log"
)

// Selector 选择参与清理的记录：Verdicts 为空时匹配全部，Exclude 为 true 时取反
type Selector struct {
	Verdicts []string
	Exclude  bool
}

// Match 判断某个结论是否被选中
func (s Selector) Match(verdict string) bool {
	if len(s.Verdicts) == 0 {
		return !s.Exclude
	}
	return slices.Contains(s.Verdicts, verdict) != s.Exclude
}

// Pruner 可按时间清理的存储
type Pruner interface {
	// Prune 删除 timestamp 早于 before 且被 sel 选中的记录，返回删除条数
	Prune(ctx context.Context, before time.Time, sel Selector) (int, error)
}

// Engine 留存引擎
type Engine struct {
	config Config
	pruner Pruner
	now    func() time.Time
	logger *log.Logger
}

// NewEngine 创建留存引擎
func NewEngine(config Config, pruner Pruner, logger *log.Logger) *Engine {
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultConfig().ScanInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		config: config,
		pruner: pruner,
		now:    time.Now,
		logger: logger,
	}
}

// ShouldDelete 判断记录是否已过期
func (e *Engine) ShouldDelete(ts time.Time, verdict string) bool {
	age := e.config.MaxAgeFor(verdict)
	if age <= 0 {
		return false
	}
	return ts.Before(e.now().Add(-age))
}

// RunScan 执行一次清理，返回删除条数
func (e *Engine) RunScan(ctx context.Context) (int, error) {
	if !e.config.Enable || e.pruner == nil {
		return 0, nil
	}
	now := e.now()
	total := 0
	for _, p := range e.config.Policies() {
		n, err := e.pruner.Prune(ctx, now.Add(-p.MaxAge), p.Selector)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Start 按 ScanInterval 周期清理，直到 ctx 结束
func (e *Engine) Start(ctx context.Context) {
	if !e.config.Enable || e.pruner == nil {
		return
	}
	ticker := time.NewTicker(e.config.ScanInterval)
	defer ticker.Stop()
	for {
		if n, err := e.RunScan(ctx); err != nil {
			e.logger.Warn("核查历史清理失败", "error", err, "deleted", n)
		} else if n > 0 {
			e.logger.Info("核查历史清理完成", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
