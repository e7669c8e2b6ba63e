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

// Package pipeline 核查流水线：缓存 -> 去重 -> 扇出调度 -> 共识聚合 -> 回写缓存与历史。
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"verify-platform/internal/consensus"
	"verify-platform/internal/source"
	"verify-platform/internal/storage/cache"
	"verify-platform/internal/storage/history"
	"verify-platform/pkg/config"
	"verify-platform/pkg/log"
	"verify-platform/pkg/metrics"
	"verify-platform/pkg/tracing"
)

// persistTimeout 单次结果回写（缓存 + 历史）的时间上限
const persistTimeout = 5 * time.Second

// EventType 流式事件类型
type EventType string

const (
	EventResult   EventType = "result"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event StreamVerify 输出的事件
type Event struct {
	Type      EventType         `json:"type"`
	Source    string            `json:"source,omitempty"`
	Result    *source.Result    `json:"result,omitempty"`
	Error     *source.Error     `json:"error,omitempty"`
	Consensus *consensus.Result `json:"consensus,omitempty"`
	// Message 调用方自身 ctx 结束等导致没有共识结果时的说明
	Message string `json:"message,omitempty"`
}

// Config 流水线参数
type Config struct {
	MaxClaimLength  int
	OverallDeadline time.Duration
	BatchSize       int
	BatchPause      time.Duration // <0 表示批次之间不停顿
	Tiers           map[string]config.TierConfig
}

// Pipeline 核查流水线；Cache 必填，History 可为 nil
type Pipeline struct {
	cfg        Config
	scheduler  *Scheduler
	aggregator *consensus.Aggregator
	cache      cache.Store
	history    history.Store
	dedup      *Deduplicator
	logger     *log.Logger
}

// New 创建流水线
func New(cfg Config, scheduler *Scheduler, aggregator *consensus.Aggregator, cacheStore cache.Store, hist history.Store, logger *log.Logger) *Pipeline {
	if cfg.MaxClaimLength <= 0 {
		cfg.MaxClaimLength = 2000
	}
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		cfg:        cfg,
		scheduler:  scheduler,
		aggregator: aggregator,
		cache:      cacheStore,
		history:    hist,
		dedup:      NewDeduplicator(),
		logger:     logger,
	}
}

// Tier 解析 tier 名称；未知或为空时使用 standard，deadline 缺省为 overall_deadline
func (p *Pipeline) Tier(name string) (string, config.TierConfig) {
	t, ok := p.cfg.Tiers[name]
	if !ok {
		name = config.TierStandard
		t = p.cfg.Tiers[name]
	}
	if t.Deadline <= 0 {
		t.Deadline = p.cfg.OverallDeadline
	}
	return name, t
}

// Verify 阻塞式核查。只有输入非法（或调用方 ctx 结束）才返回 error；
// 有效来源不足时返回 ERROR 结论。
func (p *Pipeline) Verify(ctx context.Context, req source.Request, adapters []source.Adapter) (*consensus.Result, error) {
	if err := req.Validate(p.cfg.MaxClaimLength); err != nil {
		return nil, err
	}
	res, _, err := p.run(ctx, req, adapters, nil)
	return res, err
}

// StreamVerify 流式核查：执行 owner 实时收到每个数据源的 result/error 事件，
// 命中缓存或加入他人执行的调用方只收到 complete。channel 在 complete 后关闭。
func (p *Pipeline) StreamVerify(ctx context.Context, req source.Request, adapters []source.Adapter) (<-chan Event, error) {
	if err := req.Validate(p.cfg.MaxClaimLength); err != nil {
		return nil, err
	}

	events := make(chan Event, len(adapters)+1)
	var (
		mu     sync.Mutex
		closed bool
	)
	emit := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case events <- e:
		default:
		}
	}

	go func() {
		res, _, err := p.run(ctx, req, adapters, emit)
		done := Event{Type: EventComplete, Consensus: res}
		if err != nil {
			done.Message = err.Error()
		}
		emit(done)

		mu.Lock()
		closed = true
		close(events)
		mu.Unlock()
	}()
	return events, nil
}

// BatchVerify 将 claims 按 batchSize 分批，批内并发、批间停顿；结果与输入一一对应。
// 单条 claim 的输入错误转为同位置的 ERROR 结论。
func (p *Pipeline) BatchVerify(ctx context.Context, claims []string, batchSize int, tier string, adapters []source.Adapter) []*consensus.Result {
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}
	results := make([]*consensus.Result, len(claims))

	for start := 0; start < len(claims); start += batchSize {
		if start > 0 && p.cfg.BatchPause > 0 {
			select {
			case <-time.After(p.cfg.BatchPause):
			case <-ctx.Done():
			}
		}
		end := min(start+batchSize, len(claims))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				req := source.NewRequest(claims[i], nil, tier, "")
				res, err := p.Verify(ctx, req, adapters)
				if err != nil {
					res = errorResult(req, err)
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func (p *Pipeline) run(ctx context.Context, req source.Request, adapters []source.Adapter, emit func(Event)) (*consensus.Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	tierName, tier := p.Tier(req.Tier)
	req.Tier = tierName
	key := KeyFor(req.Claim)

	if res := p.cacheGet(ctx, key); res != nil {
		return res, true, nil
	}

	res, joined, err := p.dedup.Do(ctx, key, tier.Deadline, func(execCtx context.Context) (*consensus.Result, error) {
		// 上一个 owner 可能刚写入缓存
		if res := p.cacheGet(execCtx, key); res != nil {
			return res, nil
		}
		res := p.execute(execCtx, req, adapters, tier.Deadline, emit)
		p.persist(execCtx, key, res)
		return res, nil
	})
	return res, joined, err
}

// persist 回写缓存与历史；不继承 execCtx 的截止，上限为 persistTimeout
func (p *Pipeline) persist(execCtx context.Context, key string, res *consensus.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(execCtx), persistTimeout)
	defer cancel()

	if !res.IsError() {
		if err := p.cache.Set(ctx, key, res); err != nil {
			p.logger.Warn("写入结果缓存失败", "key", key, "error", err)
		}
	}
	if p.history != nil {
		if err := p.history.Save(ctx, res); err != nil {
			p.logger.Warn("保存核查历史失败", "id", res.ID, "error", err)
		}
	}
}

func (p *Pipeline) cacheGet(ctx context.Context, key string) *consensus.Result {
	res, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("读取结果缓存失败", "key", key, "error", err)
		return nil
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return res
}

func (p *Pipeline) execute(ctx context.Context, req source.Request, adapters []source.Adapter, budget time.Duration, emit func(Event)) *consensus.Result {
	ctx, span := tracing.StartVerifySpan(ctx, req.CorrelationID, req.Tier)
	defer span.End()
	start := time.Now()

	var (
		valid     []consensus.Input
		outcomes  []consensus.SourceOutcome
		totalCost float64
	)
	for oc := range p.scheduler.Run(ctx, req, adapters, budget) {
		outcomes = append(outcomes, consensus.SourceOutcome{
			Source:   oc.Source,
			Class:    oc.Class,
			Result:   oc.Result,
			Error:    oc.Err,
			Attempts: oc.Attempts,
		})
		if oc.Err != nil {
			if emit != nil {
				emit(Event{Type: EventError, Source: oc.Source, Error: oc.Err})
			}
			continue
		}
		valid = append(valid, consensus.Input{Source: oc.Source, Class: oc.Class, Result: oc.Result})
		totalCost += oc.Result.Cost
		if emit != nil {
			emit(Event{Type: EventResult, Source: oc.Source, Result: oc.Result})
		}
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Source < outcomes[j].Source })

	agg := p.aggregator.Aggregate(valid)
	res := &agg
	res.ID = uuid.New().String()
	res.Claim = req.Claim
	res.Sources = outcomes
	res.TotalCost = totalCost
	res.TotalElapsedMs = time.Since(start).Milliseconds()
	res.Timestamp = time.Now().UTC()
	res.Tier = req.Tier
	res.CorrelationID = req.CorrelationID

	metrics.VerifyTotal.WithLabelValues(string(res.FinalVerdict), req.Tier).Inc()
	metrics.VerifyDuration.WithLabelValues(req.Tier).Observe(time.Since(start).Seconds())
	p.logger.Info("核查完成",
		"id", res.ID,
		"correlation_id", req.CorrelationID,
		"verdict", string(res.FinalVerdict),
		"confidence", res.Confidence,
		"valid_sources", res.ValidSourceCount,
		"total_sources", len(adapters),
		"elapsed_ms", res.TotalElapsedMs,
	)
	return res
}

func errorResult(req source.Request, err error) *consensus.Result {
	return &consensus.Result{
		ID:            uuid.New().String(),
		Claim:         req.Claim,
		FinalVerdict:  source.VerdictError,
		Reasoning:     err.Error(),
		Timestamp:     time.Now().UTC(),
		Tier:          req.Tier,
		CorrelationID: req.CorrelationID,
	}
}
