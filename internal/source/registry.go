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

package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"verify-platform/pkg/config"
	"verify-platform/pkg/errors"
	"verify-platform/pkg/log"
	"verify-platform/pkg/secrets"
)

// Factory 按 kind 构建 adapter；cfg.APIKey 已完成 secret 解析
type Factory func(ctx context.Context, cfg config.SourceConfig) (Adapter, error)

// Registry 启动期构建、按引用注入 pipeline 的 adapter 注册表
type Registry struct {
	mu           sync.RWMutex
	factories    map[string]Factory
	adapters     map[string]Adapter
	classWeights map[ProviderClass]float64
	secrets      secrets.Store
	logger       *log.Logger
}

// NewRegistry 创建注册表；store 为 nil 时 secret:<key> 引用无法解析
func NewRegistry(store secrets.Store, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		factories:    make(map[string]Factory),
		adapters:     make(map[string]Adapter),
		classWeights: DefaultClassWeights(),
		secrets:      store,
		logger:       logger,
	}
}

// RegisterFactory 注册 kind 对应的构造函数
func (r *Registry) RegisterFactory(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Build 根据配置构建并注册所有启用的数据源
func (r *Registry) Build(ctx context.Context, cfgs []config.SourceConfig) error {
	for _, cfg := range cfgs {
		if !cfg.IsEnabled() {
			r.logger.Info("数据源已禁用", "source", cfg.Name)
			continue
		}
		if cfg.Name == "" {
			return errors.Invalidf("source of kind %q has no name", cfg.Kind)
		}
		r.mu.RLock()
		factory, ok := r.factories[cfg.Kind]
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("source %s: %w: kind %q", cfg.Name, errors.ErrUnsupported, cfg.Kind)
		}

		key, err := secrets.Resolve(ctx, r.secrets, cfg.APIKey)
		if err != nil {
			return errors.Wrapf(err, "source %s: resolve api key", cfg.Name)
		}
		cfg.APIKey = key

		adapter, err := factory(ctx, cfg)
		if err != nil {
			return errors.Wrapf(err, "source %s: build", cfg.Name)
		}
		if cfg.Class != "" {
			class, err := ParseClass(cfg.Class)
			if err != nil {
				return errors.Wrapf(err, "source %s", cfg.Name)
			}
			adapter = withClass(adapter, class)
		}
		if err := r.Register(adapter); err != nil {
			return err
		}
		r.logger.Info("数据源已注册", "source", adapter.Name(), "kind", cfg.Kind, "class", string(adapter.Class()))
	}
	return nil
}

// Register 注册一个已构建的 adapter，名称重复时报错
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return errors.Invalidf("duplicate source name %q", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get 按名称获取
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// List 按名称排序返回全部 adapter
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SetClassWeights 覆盖类别权重（未出现的类别保留默认值）
func (r *Registry) SetClassWeights(weights map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, w := range weights {
		class, err := ParseClass(k)
		if err != nil {
			return err
		}
		if w < 0 {
			return errors.Invalidf("class weight for %s is negative", k)
		}
		r.classWeights[class] = w
	}
	return nil
}

// ClassWeights 返回当前类别权重副本
func (r *Registry) ClassWeights() map[ProviderClass]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ProviderClass]float64, len(r.classWeights))
	for k, v := range r.classWeights {
		out[k] = v
	}
	return out
}

// Select 选择本次参与核查的 adapter。
// 指定 names 时按给定顺序取；否则取全部，按类别权重降序、名称升序排列。
// max > 0 时截断到 max 个。
func (r *Registry) Select(max int, names ...string) ([]Adapter, error) {
	var out []Adapter
	if len(names) > 0 {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			a, ok := r.Get(n)
			if !ok {
				return nil, fmt.Errorf("source %q: %w", n, errors.ErrNotFound)
			}
			out = append(out, a)
		}
	} else {
		out = r.List()
		weights := r.ClassWeights()
		sort.SliceStable(out, func(i, j int) bool {
			wi, wj := weights[out[i].Class()], weights[out[j].Class()]
			if wi != wj {
				return wi > wj
			}
			return out[i].Name() < out[j].Name()
		})
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

type classOverride struct {
	Adapter
	class ProviderClass
}

func (c classOverride) Class() ProviderClass { return c.class }

func withClass(a Adapter, class ProviderClass) Adapter {
	if a.Class() == class {
		return a
	}
	return classOverride{Adapter: a, class: class}
}
