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

// Package source 定义数据源 adapter 契约、单源结果与错误类型，以及启动期构建的 adapter 注册表。
package source

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Verdict 单源或共识结论
type Verdict string

const (
	VerdictTrue         Verdict = "TRUE"
	VerdictFalse        Verdict = "FALSE"
	VerdictMisleading   Verdict = "MISLEADING"
	VerdictUnverifiable Verdict = "UNVERIFIABLE"
	// VerdictError 仅出现在共识结果中，表示有效来源不足
	VerdictError Verdict = "ERROR"
)

// Verdicts 单源可返回的结论，顺序即共识平票时的固定优先级
var Verdicts = []Verdict{VerdictTrue, VerdictFalse, VerdictMisleading, VerdictUnverifiable}

// Valid 是否为单源可返回的结论
func (v Verdict) Valid() bool {
	switch v {
	case VerdictTrue, VerdictFalse, VerdictMisleading, VerdictUnverifiable:
		return true
	}
	return false
}

// ParseVerdict 宽松解析，接受大小写与空格/连字符变体
func ParseVerdict(s string) (Verdict, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "TRUE", "CORRECT", "ACCURATE":
		return VerdictTrue, nil
	case "FALSE", "INCORRECT", "FAKE":
		return VerdictFalse, nil
	case "MISLEADING", "PARTLY_TRUE", "PARTIALLY_TRUE", "HALF_TRUE", "MIXED":
		return VerdictMisleading, nil
	case "UNVERIFIABLE", "UNKNOWN", "UNPROVEN":
		return VerdictUnverifiable, nil
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

// ProviderClass 数据源类别，决定共识中的权重
type ProviderClass string

const (
	ClassAcademic    ProviderClass = "academic"
	ClassFactChecker ProviderClass = "fact_checker"
	ClassKnowledge   ProviderClass = "knowledge"
	ClassSearch      ProviderClass = "search"
	ClassModel       ProviderClass = "model"
)

// DefaultClassWeights 默认类别权重
func DefaultClassWeights() map[ProviderClass]float64 {
	return map[ProviderClass]float64{
		ClassFactChecker: 2.0,
		ClassAcademic:    1.5,
		ClassKnowledge:   1.2,
		ClassModel:       1.0,
		ClassSearch:      0.8,
	}
}

// ParseClass 解析 provider class
func ParseClass(s string) (ProviderClass, error) {
	c := ProviderClass(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ClassAcademic, ClassFactChecker, ClassKnowledge, ClassSearch, ClassModel:
		return c, nil
	}
	return "", fmt.Errorf("unknown provider class %q", s)
}

const (
	// MaxReasoningRunes reasoning 截断长度
	MaxReasoningRunes = 2000
	// MaxEvidence 每个结果保留的证据条数上限
	MaxEvidence = 20
)

// Result 单个数据源的判断
type Result struct {
	Verdict    Verdict  `json:"verdict"`
	Confidence float64  `json:"confidence"` // 0-100
	Reasoning  string   `json:"reasoning,omitempty"`
	Cost       float64  `json:"cost"`
	LatencyMs  int64    `json:"latency_ms"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Normalize 截断 reasoning 与 evidence
func (r *Result) Normalize() {
	if utf8.RuneCountInString(r.Reasoning) > MaxReasoningRunes {
		r.Reasoning = string([]rune(r.Reasoning)[:MaxReasoningRunes])
	}
	if len(r.Evidence) > MaxEvidence {
		r.Evidence = r.Evidence[:MaxEvidence]
	}
}

// Validate 检查结论与数值范围
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("nil result")
	}
	if !r.Verdict.Valid() {
		return fmt.Errorf("invalid verdict %q", r.Verdict)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence %v out of [0,100]", r.Confidence)
	}
	if math.IsNaN(r.Cost) || r.Cost < 0 {
		return fmt.Errorf("negative cost %v", r.Cost)
	}
	if r.LatencyMs < 0 {
		return fmt.Errorf("negative latency %d", r.LatencyMs)
	}
	return nil
}

// Adapter 数据源调用契约；Call 必须遵守 ctx 与 deadline，不得无限阻塞
type Adapter interface {
	Name() string
	Class() ProviderClass
	Call(ctx context.Context, claim string, claimCtx map[string]string, deadline time.Duration) (*Result, error)
}
