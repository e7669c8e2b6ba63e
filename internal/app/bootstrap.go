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

package app

import (
	"context"
	"fmt"

	"verify-platform/internal/breaker"
	"verify-platform/internal/consensus"
	"verify-platform/internal/pipeline"
	"verify-platform/internal/ratelimit"
	"verify-platform/internal/source"
	"verify-platform/internal/source/factcheck"
	"verify-platform/internal/source/llm"
	"verify-platform/internal/storage/cache"
	"verify-platform/internal/storage/history"
	"verify-platform/pkg/config"
	"verify-platform/pkg/log"
	"verify-platform/pkg/retention"
	"verify-platform/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内写业务与 pipeline
type Bootstrap struct {
	Config    *config.Config
	Logger    *log.Logger
	Secrets   secrets.Store
	Sources   *source.Registry
	Breakers  *breaker.Registry
	Limiter   *ratelimit.Limiter
	Cache     cache.Store
	History   history.Store
	Scheduler *pipeline.Scheduler
	Pipeline  *pipeline.Pipeline
	Retention *retention.Engine
}

// NewBootstrap 根据配置创建 Bootstrap（日志、数据源、熔断、限流、缓存、历史、流水线）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	store, err := secrets.NewStore(secrets.Config(cfg.Secrets))
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store failed: %w", err)
	}

	registry := source.NewRegistry(store, logger)
	registry.RegisterFactory("static", source.StaticFactory)
	registry.RegisterFactory("openai", llm.OpenAIFactory)
	registry.RegisterFactory("claude", llm.ClaudeFactory)
	registry.RegisterFactory("factcheck", factcheck.Factory)
	if err := registry.SetClassWeights(cfg.Consensus.ClassWeights); err != nil {
		return nil, fmt.Errorf("consensus.class_weights: %w", err)
	}
	if err := registry.Build(ctx, cfg.Sources); err != nil {
		return nil, fmt.Errorf("初始化数据源failed: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		RecoveryTimeout:  cfg.Circuit.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.Circuit.HalfOpenMaxCalls,
	}, breaker.WithLogger(logger))

	overrides := make(map[string]ratelimit.Bucket, len(cfg.RateLimit.Sources))
	for name, o := range cfg.RateLimit.Sources {
		overrides[name] = ratelimit.Bucket{Capacity: o.Capacity, RefillPerSec: o.RefillPerSec}
	}
	limiter := ratelimit.New(ratelimit.Bucket{
		Capacity:     cfg.RateLimit.Capacity,
		RefillPerSec: cfg.RateLimit.RefillPerSec,
	}, overrides)

	resultCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化结果缓存failed: %w", err)
	}
	hist, err := history.NewStore(ctx, cfg.History)
	if err != nil {
		_ = resultCache.Close()
		return nil, fmt.Errorf("初始化核查历史failed: %w", err)
	}

	aggregator := consensus.New(consensus.Config{
		MinValidSources:   cfg.Pipeline.MinValidSources,
		ClassWeights:      registry.ClassWeights(),
		IntervalBase:      cfg.Consensus.IntervalBase,
		IntervalStdFactor: cfg.Consensus.IntervalStdFactor,
	})
	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		MaxConcurrentCalls: cfg.Pipeline.MaxConcurrentCalls,
		PerSourceTimeout:   cfg.Pipeline.PerSourceTimeout,
		MaxRetries:         cfg.Pipeline.MaxRetries,
		RetryBackoff:       cfg.Pipeline.RetryBackoff,
	}, breakers, limiter, logger)
	p := pipeline.New(pipeline.Config{
		MaxClaimLength:  cfg.Pipeline.MaxClaimLength,
		OverallDeadline: cfg.Pipeline.OverallDeadline,
		BatchSize:       cfg.Pipeline.BatchSize,
		BatchPause:      cfg.Pipeline.BatchPause,
		Tiers:           cfg.Tiers,
	}, scheduler, aggregator, resultCache, hist, logger)

	logger.Info("bootstrap 完成",
		"sources", len(registry.List()),
		"cache", cfg.Cache.Type,
		"history", cfg.History.Type,
	)
	return &Bootstrap{
		Config:    cfg,
		Logger:    logger,
		Secrets:   store,
		Sources:   registry,
		Breakers:  breakers,
		Limiter:   limiter,
		Cache:     resultCache,
		History:   hist,
		Scheduler: scheduler,
		Pipeline:  p,
		Retention: retention.NewEngine(cfg.History.Retention, hist, logger),
	}, nil
}

// Close 释放缓存与历史存储连接
func (b *Bootstrap) Close() {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			b.Logger.Warn("关闭结果缓存失败", "error", err)
		}
	}
	if b.History != nil {
		b.History.Close()
	}
}
