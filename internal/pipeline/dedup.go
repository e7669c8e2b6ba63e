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

package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"verify-platform/internal/consensus"
	"verify-platform/pkg/metrics"
)

// ExecFunc 一次真正的 fan-out 执行
type ExecFunc func(ctx context.Context) (*consensus.Result, error)

// Deduplicator 同一 key 同一时刻至多一个执行；并发调用方共享同一个结果对象
type Deduplicator struct {
	group singleflight.Group
}

// NewDeduplicator 创建去重器
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Do 首个调用方成为 owner 并执行 fn，其余调用方等待同一结果（成功与失败一致）。
// fn 运行在脱离调用方取消的 ctx 上，仅受 timeout 约束；某个调用方 ctx 结束只让它自己停止等待。
// 返回值 joined 表示本调用方加入了他人的执行。
func (d *Deduplicator) Do(ctx context.Context, key string, timeout time.Duration, fn ExecFunc) (res *consensus.Result, joined bool, err error) {
	owner := false
	ch := d.group.DoChan(key, func() (interface{}, error) {
		owner = true
		execCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(execCtx, timeout)
			defer cancel()
		}
		return fn(execCtx)
	})

	select {
	case r := <-ch:
		if !owner {
			metrics.DedupJoins.Inc()
		}
		res, _ = r.Val.(*consensus.Result)
		return res, !owner, r.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
