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
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"verify-platform/internal/breaker"
	"verify-platform/internal/ratelimit"
	"verify-platform/internal/source"
	"verify-platform/pkg/log"
	"verify-platform/pkg/metrics"
	"verify-platform/pkg/tracing"
)

// minAttemptWindow 剩余预算不足以容纳 backoff + 该窗口时不再重试
const minAttemptWindow = 50 * time.Millisecond

// SchedulerConfig 扇出调度参数
type SchedulerConfig struct {
	MaxConcurrentCalls int           // 进程内同时进行的数据源调用上限，<=0 表示 16
	PerSourceTimeout   time.Duration // 单次调用上限
	MaxRetries         int           // 最大重试次数（不含首次），<0 关闭重试
	RetryBackoff       time.Duration // 首次重试前的等待
}

// Outcome 单个数据源在一次执行中的最终结果；Result 与 Err 二选一
type Outcome struct {
	Source   string
	Class    source.ProviderClass
	Result   *source.Result
	Err      *source.Error
	Attempts int
	Elapsed  time.Duration
}

// Scheduler 扇出调度器：熔断 -> 限流 -> 并发槽位 -> 带超时调用 -> 预算内重试。
// 并发槽位在所有请求之间共享。
type Scheduler struct {
	cfg      SchedulerConfig
	breakers *breaker.Registry
	limiter  *ratelimit.Limiter
	slots    *semaphore.Weighted
	logger   *log.Logger
}

// NewScheduler 创建调度器
func NewScheduler(cfg SchedulerConfig, breakers *breaker.Registry, limiter *ratelimit.Limiter, logger *log.Logger) *Scheduler {
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 16
	}
	if cfg.PerSourceTimeout <= 0 {
		cfg.PerSourceTimeout = 8 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		cfg:      cfg,
		breakers: breakers,
		limiter:  limiter,
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		logger:   logger,
	}
}

// Run 对每个 adapter 启动一个调用，按完成顺序输出 Outcome。
// 所有 adapter 结束或 budget 耗尽后关闭 channel；不遵守 ctx 的 adapter 在截止时被放弃。
func (s *Scheduler) Run(ctx context.Context, req source.Request, adapters []source.Adapter, budget time.Duration) <-chan Outcome {
	out := make(chan Outcome, len(adapters))

	var cancel context.CancelFunc
	if budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, budget)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a source.Adapter) {
			defer wg.Done()
			out <- s.runOne(ctx, req, a)
		}(a)
	}
	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out
}

func (s *Scheduler) runOne(ctx context.Context, req source.Request, a source.Adapter) (oc Outcome) {
	name := a.Name()
	oc = Outcome{Source: name, Class: a.Class()}
	start := time.Now()
	defer func() {
		oc.Elapsed = time.Since(start)
		outcome := "ok"
		if oc.Err != nil {
			outcome = string(oc.Err.Kind)
		}
		metrics.SourceCallsTotal.WithLabelValues(name, outcome).Inc()
	}()

	if !s.breakers.CanExecute(name) {
		oc.Err = &source.Error{Kind: source.KindCircuitOpen, Source: name, Cause: "circuit open"}
		return oc
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryBackoff
	bo.MaxInterval = 10 * s.cfg.RetryBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		oc.Attempts = attempt
		res, serr, cut := s.attempt(ctx, req, a, attempt)
		if serr == nil {
			s.breakers.RecordSuccess(name)
			oc.Result = res
			oc.Err = nil
			return oc
		}
		oc.Err = serr
		if cut {
			// 整体截止导致的中断不计入熔断
			return oc
		}
		s.breakers.RecordFailure(name)

		if attempt > s.cfg.MaxRetries || !serr.Retryable() {
			return oc
		}
		wait := bo.NextBackOff()
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait+minAttemptWindow {
			return oc
		}
		if !s.breakers.CanExecute(name) {
			return oc
		}
		s.logger.Debug("重试数据源", "source", name, "attempt", attempt+1, "backoff", wait, "error", serr.Cause)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return oc
		}
	}
}

type reply struct {
	res *source.Result
	err error
}

// attempt 单次调用。cut 为 true 表示因整体截止（或等待期间 ctx 结束）而中断，不应计入熔断。
func (s *Scheduler) attempt(ctx context.Context, req source.Request, a source.Adapter, n int) (*source.Result, *source.Error, bool) {
	name := a.Name()

	if _, err := s.limiter.Wait(ctx, name); err != nil {
		return nil, &source.Error{Kind: source.KindRateLimited, Source: name, Cause: err.Error()}, true
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, &source.Error{Kind: source.KindTimeout, Source: name, Cause: "deadline exceeded waiting for a call slot"}, true
	}

	timeout := s.cfg.PerSourceTimeout
	bounded := false // 本次调用的超时由整体截止决定
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
			bounded = true
		}
	}
	if timeout <= 0 {
		s.slots.Release(1)
		return nil, &source.Error{Kind: source.KindTimeout, Source: name, Cause: "no budget left"}, true
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	callCtx, span := tracing.StartSourceSpan(callCtx, name, n)

	start := time.Now()
	ch := make(chan reply, 1)
	// 槽位随 Call 真正返回才释放，被放弃的调用仍占用并发额度
	go func() {
		defer s.slots.Release(1)
		defer func() {
			if p := recover(); p != nil {
				ch <- reply{err: &source.Error{Kind: source.KindTransport, Source: name, Cause: fmt.Sprintf("adapter panic: %v", p)}}
			}
		}()
		res, err := a.Call(callCtx, req.Claim, req.Context, timeout)
		ch <- reply{res: res, err: err}
	}()

	var rep reply
	select {
	case rep = <-ch:
	case <-callCtx.Done():
		rep = reply{err: callCtx.Err()}
	}
	elapsed := time.Since(start)
	metrics.SourceLatency.WithLabelValues(name).Observe(elapsed.Seconds())

	if rep.err != nil {
		serr := source.Classify(name, rep.err)
		tracing.EndSpan(span, serr)
		cut := serr.Kind == source.KindTimeout && (ctx.Err() != nil || (bounded && callCtx.Err() != nil))
		return nil, serr, cut
	}
	if err := rep.res.Validate(); err != nil {
		serr := &source.Error{Kind: source.KindInvalid, Source: name, Cause: err.Error()}
		tracing.EndSpan(span, serr)
		return nil, serr, false
	}
	tracing.EndSpan(span, nil)

	res := *rep.res
	res.Evidence = append([]string(nil), rep.res.Evidence...)
	res.Normalize()
	if res.LatencyMs == 0 {
		res.LatencyMs = elapsed.Milliseconds()
	}
	return &res, nil, false
}
