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
	"strconv"
	"strings"
	"time"

	"verify-platform/pkg/config"
)

// Static 返回固定结论的数据源，用于演示与测试
type Static struct {
	name     string
	class    ProviderClass
	result   Result
	latency  time.Duration
	failKind ErrorKind
}

// NewStatic 创建固定结果的 adapter
func NewStatic(name string, class ProviderClass, result Result, latency time.Duration) *Static {
	return &Static{name: name, class: class, result: result, latency: latency}
}

// Failing 让 adapter 每次调用都以 kind 失败
func (s *Static) Failing(kind ErrorKind) *Static {
	s.failKind = kind
	return s
}

// StaticFactory 从配置构建 static adapter。
// options: verdict, confidence, latency, reasoning, evidence（逗号分隔）, fail
func StaticFactory(_ context.Context, cfg config.SourceConfig) (Adapter, error) {
	opts := cfg.Options
	verdict := VerdictUnverifiable
	if v := opts["verdict"]; v != "" {
		parsed, err := ParseVerdict(v)
		if err != nil {
			return nil, err
		}
		verdict = parsed
	}
	confidence := 50.0
	if c := opts["confidence"]; c != "" {
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, fmt.Errorf("confidence: %w", err)
		}
		confidence = f
	}
	var latency time.Duration
	if l := opts["latency"]; l != "" {
		d, err := time.ParseDuration(l)
		if err != nil {
			return nil, fmt.Errorf("latency: %w", err)
		}
		latency = d
	}
	var evidence []string
	if e := opts["evidence"]; e != "" {
		for _, item := range strings.Split(e, ",") {
			if item = strings.TrimSpace(item); item != "" {
				evidence = append(evidence, item)
			}
		}
	}
	result := Result{
		Verdict:    verdict,
		Confidence: confidence,
		Reasoning:  opts["reasoning"],
		Cost:       cfg.Cost,
		Evidence:   evidence,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	s := NewStatic(cfg.Name, ClassModel, result, latency)
	if f := opts["fail"]; f != "" {
		s.failKind = ErrorKind(f)
	}
	return s, nil
}

func (s *Static) Name() string         { return s.name }
func (s *Static) Class() ProviderClass { return s.class }

// Call 等待 latency 后返回固定结果；ctx 结束或 deadline 先到时返回 timeout
func (s *Static) Call(ctx context.Context, _ string, _ map[string]string, deadline time.Duration) (*Result, error) {
	start := time.Now()
	if s.latency > 0 {
		if deadline > 0 && s.latency > deadline {
			select {
			case <-time.After(deadline):
			case <-ctx.Done():
			}
			return nil, &Error{Kind: KindTimeout, Source: s.name, Cause: "deadline exceeded"}
		}
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, &Error{Kind: KindTimeout, Source: s.name, Cause: ctx.Err().Error()}
		}
	}
	if s.failKind != "" {
		return nil, &Error{Kind: s.failKind, Source: s.name, Cause: "static failure"}
	}
	out := s.result
	out.Evidence = append([]string(nil), s.result.Evidence...)
	out.LatencyMs = time.Since(start).Milliseconds()
	return &out, nil
}
