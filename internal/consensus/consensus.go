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

// Package consensus 将多个数据源的 (verdict, confidence) 融合为一个带置信区间的结论。
package consensus

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"verify-platform/internal/source"
)

// ReasonInsufficient 有效来源不足时的 reasoning
const ReasonInsufficient = "insufficient valid sources"

// verdictWeight 结论的符号权重
var verdictWeight = map[source.Verdict]float64{
	source.VerdictTrue:         1.0,
	source.VerdictFalse:        -1.0,
	source.VerdictMisleading:   -0.5,
	source.VerdictUnverifiable: 0.0,
}

// Input 一个有效的单源结果
type Input struct {
	Source string
	Class  source.ProviderClass
	Result *source.Result
}

// Interval 置信区间
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// SourceOutcome 单源的最终结果（成功或错误二选一）
type SourceOutcome struct {
	Source   string               `json:"source"`
	Class    source.ProviderClass `json:"class"`
	Result   *source.Result       `json:"result,omitempty"`
	Error    *source.Error        `json:"error,omitempty"`
	Attempts int                  `json:"attempts"`
}

// Result 一次核查的共识结论；产生后只读，被所有去重调用方共享
type Result struct {
	ID                  string          `json:"id"`
	Claim               string          `json:"claim"`
	FinalVerdict        source.Verdict  `json:"final_verdict"`
	Confidence          float64         `json:"confidence"`
	Interval            Interval        `json:"confidence_interval"`
	AgreementPercentage float64         `json:"agreement_percentage"`
	ModalVerdict        source.Verdict  `json:"modal_verdict,omitempty"`
	WeightedMean        float64         `json:"weighted_mean"`
	StdDev              float64         `json:"std_dev"`
	Sources             []SourceOutcome `json:"sources"`
	ValidSourceCount    int             `json:"valid_source_count"`
	TotalCost           float64         `json:"total_cost"`
	TotalElapsedMs      int64           `json:"total_elapsed_ms"`
	Reasoning           string          `json:"reasoning"`
	Timestamp           time.Time       `json:"timestamp"`
	Tier                string          `json:"tier,omitempty"`
	CorrelationID       string          `json:"correlation_id,omitempty"`
}

// IsError 有效来源不足
func (r *Result) IsError() bool {
	return r.FinalVerdict == source.VerdictError
}

// Config 聚合参数
type Config struct {
	MinValidSources   int
	ClassWeights      map[source.ProviderClass]float64
	IntervalBase      float64
	IntervalStdFactor float64
}

// Aggregator 纯计算，无状态，可并发使用
type Aggregator struct {
	cfg Config
}

// New 创建聚合器；未设置的参数使用默认值
func New(cfg Config) *Aggregator {
	if cfg.MinValidSources <= 0 {
		cfg.MinValidSources = 2
	}
	weights := source.DefaultClassWeights()
	for k, v := range cfg.ClassWeights {
		weights[k] = v
	}
	cfg.ClassWeights = weights
	if cfg.IntervalBase <= 0 {
		cfg.IntervalBase = 20
	}
	if cfg.IntervalStdFactor <= 0 {
		cfg.IntervalStdFactor = 10
	}
	return &Aggregator{cfg: cfg}
}

// MinValidSources 最少有效来源数
func (a *Aggregator) MinValidSources() int { return a.cfg.MinValidSources }

type scored struct {
	in      Input
	weight  float64 // class weight
	score   float64
	support float64 // confidence/100 × class weight
}

// Aggregate 计算共识。只填充数值字段，ID/Claim/Sources 等由调用方补齐。
// 输入先排成规范顺序再求和，结果与输入顺序无关。
func (a *Aggregator) Aggregate(valid []Input) Result {
	items := make([]scored, 0, len(valid))
	for _, in := range valid {
		if in.Result == nil || !in.Result.Verdict.Valid() {
			continue
		}
		w := a.cfg.ClassWeights[in.Class]
		conf := in.Result.Confidence / 100
		items = append(items, scored{
			in:      in,
			weight:  w,
			score:   verdictWeight[in.Result.Verdict] * conf * w,
			support: conf * w,
		})
	}

	n := len(items)
	if n < a.cfg.MinValidSources || n == 0 {
		return Result{
			FinalVerdict:     source.VerdictError,
			ValidSourceCount: n,
			Reasoning:        fmt.Sprintf("%s: %d valid, %d required", ReasonInsufficient, n, a.cfg.MinValidSources),
		}
	}

	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })

	var sumScore, sumWeight float64
	counts := make(map[source.Verdict]int, 4)
	support := make(map[source.Verdict]float64, 4)
	for _, it := range items {
		sumScore += it.score
		sumWeight += it.weight
		v := it.in.Result.Verdict
		counts[v]++
		support[v] += it.support
	}

	var mean float64
	if sumWeight > 0 {
		mean = sumScore / sumWeight
	}

	var avg float64
	for _, it := range items {
		avg += it.score
	}
	avg /= float64(n)
	var variance float64
	for _, it := range items {
		d := it.score - avg
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))

	modal := modalVerdict(counts, support)
	agreement := float64(counts[modal]) / float64(n) * 100

	confidence := clamp(math.Abs(mean)*100+(agreement-50)*0.5-std*20, 0, 100)
	margin := a.cfg.IntervalBase/math.Sqrt(float64(n)) + std*a.cfg.IntervalStdFactor

	return Result{
		FinalVerdict:        thresholdVerdict(mean),
		Confidence:          confidence,
		Interval:            Interval{Lower: clamp(confidence-margin, 0, 100), Upper: clamp(confidence+margin, 0, 100)},
		AgreementPercentage: agreement,
		ModalVerdict:        modal,
		WeightedMean:        mean,
		StdDev:              std,
		ValidSourceCount:    n,
		Reasoning:           summarize(counts, n),
	}
}

func thresholdVerdict(mean float64) source.Verdict {
	switch {
	case mean > 0.5:
		return source.VerdictTrue
	case mean < -0.5:
		return source.VerdictFalse
	case mean < -0.2:
		return source.VerdictMisleading
	}
	return source.VerdictUnverifiable
}

// modalVerdict 出现次数最多的结论；平票时取累计支持度更高者，再按固定顺序
func modalVerdict(counts map[source.Verdict]int, support map[source.Verdict]float64) source.Verdict {
	best := source.Verdict("")
	for _, v := range source.Verdicts {
		if counts[v] == 0 {
			continue
		}
		if best == "" || counts[v] > counts[best] ||
			(counts[v] == counts[best] && support[v] > support[best]) {
			best = v
		}
	}
	return best
}

func less(a, b scored) bool {
	if a.in.Source != b.in.Source {
		return a.in.Source < b.in.Source
	}
	if a.in.Result.Verdict != b.in.Result.Verdict {
		return a.in.Result.Verdict < b.in.Result.Verdict
	}
	if a.score != b.score {
		return a.score < b.score
	}
	return a.weight < b.weight
}

func summarize(counts map[source.Verdict]int, n int) string {
	parts := make([]string, 0, len(source.Verdicts))
	for _, v := range source.Verdicts {
		if c := counts[v]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, v))
		}
	}
	return fmt.Sprintf("%d valid sources: %s", n, strings.Join(parts, ", "))
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
