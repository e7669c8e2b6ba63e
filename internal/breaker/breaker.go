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

// Package breaker 按数据源维护熔断状态机：CLOSED -> OPEN -> HALF_OPEN -> CLOSED。
package breaker

import (
	"sort"
	"sync"
	"time"

	"verify-platform/pkg/log"
	"verify-platform/pkg/metrics"
)

// State 熔断状态
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func (s State) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	}
	return 0
}

// Config 熔断参数
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
}

// Snapshot 某个数据源熔断器的只读视图
type Snapshot struct {
	Source               string    `json:"source"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
	TotalCalls           int64     `json:"total_calls"`
	TotalSuccesses       int64     `json:"total_successes"`
	TotalFailures        int64     `json:"total_failures"`
	Rejections           int64     `json:"rejections"`
}

type circuit struct {
	mu   sync.Mutex
	snap Snapshot
}

// Registry 每个数据源一个熔断器，懒创建，进程内常驻
type Registry struct {
	cfg    Config
	now    func() time.Time
	logger *log.Logger

	mu       sync.RWMutex
	circuits map[string]*circuit
}

// Option Registry 选项
type Option func(*Registry)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger 记录状态迁移
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry 创建熔断器注册表；非法参数回落到默认值 5 / 30s / 2
func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 2
	}
	r := &Registry{
		cfg:      cfg,
		now:      time.Now,
		logger:   log.Nop(),
		circuits: make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(source string) *circuit {
	r.mu.RLock()
	c, ok := r.circuits[source]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.circuits[source]; ok {
		return c
	}
	c = &circuit{snap: Snapshot{Source: source, State: StateClosed}}
	r.circuits[source] = c
	metrics.CircuitState.WithLabelValues(source).Set(StateClosed.gauge())
	return c
}

// 调用方持有 c.mu
func (r *Registry) transition(c *circuit, to State) {
	from := c.snap.State
	if from == to {
		return
	}
	c.snap.State = to
	metrics.CircuitState.WithLabelValues(c.snap.Source).Set(to.gauge())
	r.logger.Info("熔断状态变更", "source", c.snap.Source, "from", string(from), "to", string(to),
		"consecutive_failures", c.snap.ConsecutiveFailures)
}

// CanExecute 判断是否允许调用。OPEN 且已过恢复时间时转为 HALF_OPEN 并放行；
// 被拒绝的调用只计入 rejections。
func (r *Registry) CanExecute(source string) bool {
	c := r.get(source)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.snap.State {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if r.now().Sub(c.snap.LastFailure) >= r.cfg.RecoveryTimeout {
			c.snap.ConsecutiveSuccesses = 0
			r.transition(c, StateHalfOpen)
			return true
		}
	}
	c.snap.Rejections++
	return false
}

// RecordSuccess 记录一次成功调用
func (r *Registry) RecordSuccess(source string) {
	c := r.get(source)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.TotalCalls++
	c.snap.TotalSuccesses++
	c.snap.ConsecutiveFailures = 0

	if c.snap.State == StateHalfOpen {
		c.snap.ConsecutiveSuccesses++
		if c.snap.ConsecutiveSuccesses >= r.cfg.HalfOpenMaxCalls {
			c.snap.ConsecutiveSuccesses = 0
			r.transition(c, StateClosed)
		}
		return
	}
	c.snap.ConsecutiveSuccesses++
}

// RecordFailure 记录一次失败调用；HALF_OPEN 下任何失败立即重新打开
func (r *Registry) RecordFailure(source string) {
	c := r.get(source)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.TotalCalls++
	c.snap.TotalFailures++
	c.snap.ConsecutiveFailures++
	c.snap.ConsecutiveSuccesses = 0
	c.snap.LastFailure = r.now()

	switch c.snap.State {
	case StateHalfOpen:
		r.transition(c, StateOpen)
	case StateClosed:
		if c.snap.ConsecutiveFailures >= r.cfg.FailureThreshold {
			r.transition(c, StateOpen)
		}
	}
}

// State 返回数据源当前快照（未见过的数据源为 CLOSED）
func (r *Registry) State(source string) Snapshot {
	c := r.get(source)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Snapshots 所有已知数据源的快照，按名称排序
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	circuits := make([]*circuit, 0, len(r.circuits))
	for _, c := range r.circuits {
		circuits = append(circuits, c)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(circuits))
	for _, c := range circuits {
		c.mu.Lock()
		out = append(out, c.snap)
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Reset 将数据源恢复为全新的 CLOSED 状态
func (r *Registry) Reset(source string) {
	c := r.get(source)
	c.mu.Lock()
	defer c.mu.Unlock()
	r.transition(c, StateClosed)
	c.snap = Snapshot{Source: source, State: StateClosed}
}
